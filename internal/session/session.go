package session

import (
	"context"
	"log"

	"github.com/dyluth/kiln/internal/diag"
	"github.com/dyluth/kiln/internal/params"
	"github.com/dyluth/kiln/internal/rank"
	"github.com/dyluth/kiln/internal/tracker"
)

// Options configures a training session.
type Options struct {
	// Gate is the process's rank gate, resolved before anything else runs.
	Gate rank.Gate

	// Config is the experiment configuration tree. Its serialization_dir
	// key names the job's output directory.
	Config params.Params

	// WorldSize is the number of cooperating rank processes.
	WorldSize int

	// Tracker records the run externally. Nil disables tracking entirely;
	// a non-nil tracker is initialized (and later finished) on the primary
	// rank only.
	Tracker tracker.Tracker

	// Project and Tags label the tracker run.
	Project string
	Tags    []string

	// CaptureRoot is where failing batch captures are persisted.
	// Empty means "error-batches" under the working directory.
	CaptureRoot string
}

// Session composes the rank gate, diagnostic router, archive manager and
// experiment tracker around an externally supplied run function. It has no
// algorithmic content beyond composition and ordering.
type Session struct {
	opts   Options
	router *diag.Router
}

// New builds a session and registers the standard diagnostic sinks:
// batch capture on every rank, tracker metrics and console metrics on the
// primary rank only.
func New(opts Options) *Session {
	if opts.WorldSize < 1 {
		opts.WorldSize = 1
	}

	router := diag.NewRouter()
	router.Register("batch-capture", diag.HasBatch, diag.NewBatchCapture(opts.CaptureRoot))
	if opts.Tracker != nil {
		router.Register("tracker-metrics", diag.HasMetrics, diag.NewTrackerMetrics(opts.Gate, opts.Tracker))
	}
	router.Register("console-metrics", diag.HasMetrics, diag.NewConsoleMetrics(opts.Gate))

	return &Session{opts: opts, router: router}
}

// Router exposes the session's diagnostic router so the run function can
// dispatch records (epoch metrics, for instance) through the same fan-out.
func (s *Session) Router() *diag.Router {
	return s.router
}

// Run executes one training session around fn and returns its result map,
// which is empty when the run failed. Run never returns an error: the host
// process must survive a failing training run.
func (s *Session) Run(ctx context.Context, fn RunFunc) map[string]float64 {
	gate := s.opts.Gate
	serializationDir := s.opts.Config.GetString("serialization_dir")

	log.Printf("[INFO] Starting training session: rank=%d world_size=%d dir=%s",
		gate.Rank(), s.opts.WorldSize, serializationDir)

	// Tracker session opens on the primary rank before the run so sinks
	// can log metrics while it trains.
	activeTracker := s.opts.Tracker
	if activeTracker != nil {
		err := gate.RunIfPrimary(func() error {
			return activeTracker.Init(ctx, s.opts.Project, s.opts.Config.Flat(), s.opts.Tags)
		})
		if err != nil {
			// A dead tracker should not kill the training run; drop it
			// and carry on without external tracking.
			log.Printf("[ERROR] Tracker init failed, continuing without tracking: %v", err)
			activeTracker = nil
		}
	}

	capture := NewCapture(gate, s.router, activeTracker, serializationDir)
	return capture.Run(ctx, fn, s.opts.Config, s.opts.WorldSize)
}
