// Package session wraps an externally supplied training-run function with
// failure capture and primary-rank finalization, and composes the rank gate,
// diagnostic router, archive manager and experiment tracker around it.
//
// Policy: a failing training run degrades to "no result", never to a crashed
// process. Archive preconditions and hostile archives are the caller's
// problem; run-function errors are fully absorbed here.
package session

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/dyluth/kiln/internal/archive"
	"github.com/dyluth/kiln/internal/diag"
	"github.com/dyluth/kiln/internal/params"
	"github.com/dyluth/kiln/internal/rank"
	"github.com/dyluth/kiln/internal/tracker"
)

// BestModelDirName is the marker directory the trainer writes its best
// checkpoint into. Its presence under the serialization directory is what
// makes finalization pack an archive.
const BestModelDirName = "best-model"

// RunFunc is the externally supplied training run. It receives the process
// rank, the experiment configuration and the world size, and returns the
// final metrics of the run. It may return a *BatchError to hand the
// offending batch to the capture layer, or any other error.
type RunFunc func(ctx context.Context, processRank int, config params.Params, worldSize int) (map[string]float64, error)

// Capture wraps one training-run invocation with failure capture and
// finalization.
type Capture struct {
	gate             rank.Gate
	router           *diag.Router
	tracker          tracker.Tracker // nil when tracking is inactive
	serializationDir string
}

// NewCapture builds a failure-capture wrapper. tr may be nil when no tracker
// session is active; finalization then skips the upload and finish steps.
func NewCapture(gate rank.Gate, router *diag.Router, tr tracker.Tracker, serializationDir string) *Capture {
	return &Capture{
		gate:             gate,
		router:           router,
		tracker:          tr,
		serializationDir: serializationDir,
	}
}

// Run invokes fn and absorbs any failure.
//
// On error, a *BatchError additionally produces one diagnostic record
// carrying the offending batch, keyed by the serialization directory's base
// name, dispatched through the router (a registered sink persists it). The
// result is replaced with an empty map; errors never propagate to the
// caller.
//
// Finalization always runs, success or failure, on the primary rank only:
// if the best-checkpoint directory exists the archive is packed, and an
// active tracker has the archive registered and the session finished.
func (c *Capture) Run(ctx context.Context, fn RunFunc, config params.Params, worldSize int) map[string]float64 {
	result, err := fn(ctx, c.gate.Rank(), config, worldSize)
	if err != nil {
		var batchErr *BatchError
		if errors.As(err, &batchErr) {
			log.Printf("[DEBUG] Saving batch that caused an error")
			c.router.Dispatch(diag.Record{
				Message: batchErr.Message,
				Batch:   batchErr.Batch,
				JobKey:  filepath.Base(c.serializationDir),
			})
		}
		log.Printf("[ERROR] Training run failed: %v", err)
		result = map[string]float64{}
	}
	if result == nil {
		result = map[string]float64{}
	}

	c.finalize(ctx)

	return result
}

// finalize archives the best checkpoint and closes the tracker session.
// Runs on the primary rank only; finalizing on every rank would duplicate
// the archive write and corrupt the remote tracking session. Finalization
// failures are logged, never propagated - they must not mask the run result.
func (c *Capture) finalize(ctx context.Context) {
	err := c.gate.RunIfPrimary(func() error {
		bestModel := filepath.Join(c.serializationDir, BestModelDirName)
		archived := ""

		if info, err := os.Stat(bestModel); err == nil && info.IsDir() {
			path, err := archive.Pack(c.serializationDir, bestModel, "")
			if err != nil {
				log.Printf("[ERROR] Failed to archive best checkpoint: %v", err)
			} else {
				archived = path
			}
		}

		if c.tracker != nil {
			if archived != "" {
				if err := c.tracker.Save(ctx, archived); err != nil {
					log.Printf("[ERROR] Failed to register archive with tracker: %v", err)
				}
			}
			if err := c.tracker.Finish(ctx); err != nil {
				log.Printf("[ERROR] Failed to finish tracker session: %v", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] Finalization failed: %v", err)
	}
}
