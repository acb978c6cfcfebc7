// Package launch starts one local worker process per rank for development
// and single-machine jobs. It plays the role an external cluster launcher
// plays in production: each child is handed its rank through the environment
// (RANK, LOCAL_RANK, WORLD_SIZE) and resolves it itself at startup.
package launch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
)

// maxOutputSize is the maximum number of bytes retained from each worker's
// combined stdout/stderr (10MB).
const maxOutputSize = 10 * 1024 * 1024

// Options configures a local launch.
type Options struct {
	// Command is the worker command and its arguments. Required.
	Command []string

	// WorldSize is the number of rank processes to start. Required, >= 1.
	WorldSize int

	// Dir is the working directory for the workers. Empty means inherit.
	Dir string

	// Env is extra environment entries ("KEY=value") appended after the
	// parent environment and the rank variables.
	Env []string
}

// Result is the outcome of one rank's worker process.
type Result struct {
	Rank     int
	ExitCode int    // -1 when the process could not be started
	Output   string // combined stdout/stderr, truncated at 10MB
	Err      error  // nil on clean exit
}

// Run starts WorldSize worker processes, one per rank, and waits for all of
// them. Results come back ordered by rank. The returned error is the first
// rank failure (by rank order), with every rank's Result still populated so
// the caller can report all of them.
func Run(ctx context.Context, opts Options) ([]Result, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("worker command is required")
	}
	if opts.WorldSize < 1 {
		return nil, fmt.Errorf("world_size must be >= 1, got %d", opts.WorldSize)
	}

	results := make([]Result, opts.WorldSize)

	var wg sync.WaitGroup
	for processRank := 0; processRank < opts.WorldSize; processRank++ {
		wg.Add(1)
		go func(processRank int) {
			defer wg.Done()
			results[processRank] = runWorker(ctx, opts, processRank)
		}(processRank)
	}
	wg.Wait()

	for _, result := range results {
		if result.Err != nil {
			return results, fmt.Errorf("rank %d failed: %w", result.Rank, result.Err)
		}
	}
	return results, nil
}

func runWorker(ctx context.Context, opts Options, processRank int) Result {
	log.Printf("[INFO] Starting worker: rank=%d world_size=%d command=%v",
		processRank, opts.WorldSize, opts.Command)

	cmd := exec.CommandContext(ctx, opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("RANK=%d", processRank),
		fmt.Sprintf("LOCAL_RANK=%d", processRank),
		fmt.Sprintf("WORLD_SIZE=%d", opts.WorldSize),
	)
	cmd.Env = append(cmd.Env, opts.Env...)

	buf := &bytes.Buffer{}
	limited := &limitedWriter{w: buf, limit: maxOutputSize}
	cmd.Stdout = limited
	cmd.Stderr = limited

	if err := cmd.Start(); err != nil {
		return Result{Rank: processRank, ExitCode: -1, Err: fmt.Errorf("failed to start worker: %w", err)}
	}

	err := cmd.Wait()
	result := Result{Rank: processRank, Output: buf.String()}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			result.Err = fmt.Errorf("worker exited with code %d", result.ExitCode)
		} else {
			result.ExitCode = -1
			result.Err = err
		}
		log.Printf("[ERROR] Worker failed: rank=%d error=%v", processRank, result.Err)
		return result
	}

	log.Printf("[INFO] Worker finished: rank=%d", processRank)
	return result
}

// limitedWriter wraps a writer and enforces a size limit.
// Once the limit is reached, further writes are discarded.
type limitedWriter struct {
	w       io.Writer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		// Already hit limit, discard this write
		return len(p), nil
	}

	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
	}

	n, err = lw.w.Write(toWrite)
	lw.written += n
	return len(p), err // Return len(p) to satisfy the writer interface
}
