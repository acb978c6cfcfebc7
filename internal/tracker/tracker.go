// Package tracker defines the experiment-tracker collaborator consumed by the
// training session, plus a Redis-backed implementation and a no-op.
//
// All tracker calls made by the session layer are gated to the primary rank;
// the implementations here do not gate themselves.
package tracker

import "context"

// Tracker records an experiment run with an external tracking system.
// The session layer calls Init once at startup (primary rank only), Log for
// each metrics report, Save for produced artifacts, and Finish exactly once
// at the end of the run.
type Tracker interface {
	// Init opens a tracking session for the given project. The config map
	// is the flattened experiment configuration; tags label the run.
	Init(ctx context.Context, project string, config map[string]any, tags []string) error

	// Log records one metrics report.
	Log(ctx context.Context, metrics map[string]float64) error

	// Save registers a produced artifact file with the run.
	Save(ctx context.Context, path string) error

	// Finish finalizes the run. The tracker must not be used afterwards.
	Finish(ctx context.Context) error
}

// Noop is a Tracker that records nothing. Used when tracking is disabled.
type Noop struct{}

func (Noop) Init(context.Context, string, map[string]any, []string) error { return nil }
func (Noop) Log(context.Context, map[string]float64) error                { return nil }
func (Noop) Save(context.Context, string) error                           { return nil }
func (Noop) Finish(context.Context) error                                 { return nil }
