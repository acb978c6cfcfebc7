package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dyluth/kiln/internal/printer"
	"github.com/dyluth/kiln/internal/rank"
	"github.com/dyluth/kiln/internal/tracker"
)

// captureTimeFormat stamps capture files with wall-clock time for humans;
// the uuid suffix is what guarantees uniqueness.
const captureTimeFormat = "02-01-2006_15-04-05"

// BatchCapture persists failing batch payloads to disk for offline debugging.
//
// Captures land in <root>/<jobKey>/batch_<stamp>_<id>.json so each job's
// failures stay together and a capture never overwrites a prior one. The
// sink acts on every rank: a crash dump is useful wherever the crash
// happened, and each rank writes its own uniquely named file.
type BatchCapture struct {
	root string
}

// NewBatchCapture returns a capture sink rooted at dir.
// An empty dir defaults to "error-batches" under the working directory.
func NewBatchCapture(dir string) *BatchCapture {
	if dir == "" {
		dir = "error-batches"
	}
	return &BatchCapture{root: dir}
}

// capturePayload is the on-disk capture format.
type capturePayload struct {
	Message string `json:"message"`
	Batch   []byte `json:"batch"` // base64 in JSON
}

// Deliver writes one capture file for a record carrying a batch payload.
func (s *BatchCapture) Deliver(rec Record) error {
	if !rec.HasBatch() {
		return nil
	}

	jobKey := rec.JobKey
	if jobKey == "" {
		jobKey = "unknown-job"
	}

	dir := filepath.Join(s.root, jobKey)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create capture directory: %w", err)
	}

	name := fmt.Sprintf("batch_%s_%s.json",
		time.Now().Format(captureTimeFormat), uuid.New().String()[:8])

	data, err := json.MarshalIndent(capturePayload{
		Message: rec.Message,
		Batch:   rec.Batch,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal capture: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write capture file: %w", err)
	}

	log.Printf("[INFO] Saved failing batch capture: path=%s job=%s", path, jobKey)
	return nil
}

// Capture is one durable failure capture read back from disk.
type Capture struct {
	Path    string    `json:"path"`
	JobKey  string    `json:"job_key"`
	Message string    `json:"message"`
	Size    int64     `json:"size_bytes"`
	ModTime time.Time `json:"captured_at"`
}

// ListCaptures reads back the captures recorded for one job key, newest first.
// Malformed capture files are skipped with a warning rather than failing the
// whole listing.
func ListCaptures(root, jobKey string) ([]Capture, error) {
	if root == "" {
		root = "error-batches"
	}
	dir := filepath.Join(root, jobKey)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read capture directory: %w", err)
	}

	var captures []Capture
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[WARN] Skipping unreadable capture %s: %v", path, err)
			continue
		}
		var payload capturePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Printf("[WARN] Skipping malformed capture %s: %v", path, err)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		captures = append(captures, Capture{
			Path:    path,
			JobKey:  jobKey,
			Message: payload.Message,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	// Newest first for "what just broke" workflows.
	sort.Slice(captures, func(i, j int) bool {
		return captures[i].ModTime.After(captures[j].ModTime)
	})
	return captures, nil
}

// ReadCaptureBatch returns the decoded batch payload of one capture file.
func ReadCaptureBatch(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture file: %w", err)
	}

	var payload capturePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse capture file: %w", err)
	}
	return payload.Batch, nil
}

// TrackerMetrics forwards metrics records to the experiment tracker.
// It acts on the primary rank only: every rank computes the same aggregate
// metrics, and reporting them N times would corrupt the remote run.
type TrackerMetrics struct {
	gate rank.Gate
	tr   tracker.Tracker
}

// NewTrackerMetrics returns a tracker sink gated on the given rank gate.
func NewTrackerMetrics(gate rank.Gate, tr tracker.Tracker) *TrackerMetrics {
	return &TrackerMetrics{gate: gate, tr: tr}
}

// Deliver forwards the record's metrics payload on the primary rank.
func (s *TrackerMetrics) Deliver(rec Record) error {
	return s.gate.RunIfPrimary(func() error {
		return s.tr.Log(context.Background(), rec.Metrics)
	})
}

// ConsoleMetrics pretty-prints metrics records to the console on the primary
// rank only, so N ranks don't interleave identical blocks.
type ConsoleMetrics struct {
	gate rank.Gate
}

// NewConsoleMetrics returns a console metrics sink gated on the given gate.
func NewConsoleMetrics(gate rank.Gate) *ConsoleMetrics {
	return &ConsoleMetrics{gate: gate}
}

// Deliver prints the record's message as a title and its metrics as an
// aligned block.
func (s *ConsoleMetrics) Deliver(rec Record) error {
	return s.gate.RunIfPrimary(func() error {
		printer.Metrics(rec.Message, rec.Metrics)
		return nil
	})
}
