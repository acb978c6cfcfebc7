package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/kiln/internal/archive"
	"github.com/dyluth/kiln/internal/diag"
	"github.com/dyluth/kiln/internal/params"
	"github.com/dyluth/kiln/internal/rank"
)

// fakeTracker records the calls the session layer makes.
type fakeTracker struct {
	initProject string
	initConfig  map[string]any
	initTags    []string
	initErr     error
	logged      []map[string]float64
	saved       []string
	finished    int
}

func (f *fakeTracker) Init(_ context.Context, project string, config map[string]any, tags []string) error {
	if f.initErr != nil {
		return f.initErr
	}
	f.initProject = project
	f.initConfig = config
	f.initTags = tags
	return nil
}

func (f *fakeTracker) Log(_ context.Context, m map[string]float64) error {
	f.logged = append(f.logged, m)
	return nil
}

func (f *fakeTracker) Save(_ context.Context, path string) error {
	f.saved = append(f.saved, path)
	return nil
}

func (f *fakeTracker) Finish(context.Context) error {
	f.finished++
	return nil
}

// writeTrainedTree lays out a serialization dir with a completed best
// checkpoint, ready for finalization to archive.
func writeTrainedTree(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	best := filepath.Join(dir, BestModelDirName)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "vocabulary"), 0755))
	require.NoError(t, os.MkdirAll(best, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"seed": 1}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(best, "model.pt"), []byte("weights"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(best, "metrics.json"), []byte(`{"loss": 0.5}`), 0644))
	return dir
}

func sessionConfig(serializationDir string) params.Params {
	return params.Params{
		"serialization_dir": serializationDir,
		"model":             map[string]any{"type": "vae"},
	}
}

func TestSession_SuccessfulRun(t *testing.T) {
	dir := writeTrainedTree(t)

	s := New(Options{
		Gate:        rank.NewGate(0),
		Config:      sessionConfig(dir),
		CaptureRoot: filepath.Join(t.TempDir(), "error-batches"),
	})

	result := s.Run(context.Background(), func(_ context.Context, processRank int, config params.Params, worldSize int) (map[string]float64, error) {
		assert.Equal(t, 0, processRank)
		assert.Equal(t, 1, worldSize)
		assert.Equal(t, dir, config.GetString("serialization_dir"))
		return map[string]float64{"loss": 0.5}, nil
	})

	assert.Equal(t, map[string]float64{"loss": 0.5}, result)

	// Finalization packed the best checkpoint.
	assert.FileExists(t, filepath.Join(dir, archive.DefaultArchiveName))
}

func TestSession_BatchErrorCapturedAndAbsorbed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "job-42"), 0755))
	serializationDir := filepath.Join(dir, "job-42")
	captureRoot := filepath.Join(t.TempDir(), "error-batches")

	s := New(Options{
		Gate:        rank.NewGate(0),
		Config:      sessionConfig(serializationDir),
		CaptureRoot: captureRoot,
	})

	result := s.Run(context.Background(), func(context.Context, int, params.Params, int) (map[string]float64, error) {
		return nil, &BatchError{Message: "bad batch", Batch: []byte{9, 9, 9}}
	})

	// Empty result, no panic, no error surfaced.
	assert.Empty(t, result)
	assert.NotNil(t, result)

	// Exactly one durable capture, keyed by the job directory's base name.
	entries, err := os.ReadDir(filepath.Join(captureRoot, "job-42"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSession_GenericErrorAbsorbedWithoutCapture(t *testing.T) {
	captureRoot := filepath.Join(t.TempDir(), "error-batches")

	s := New(Options{
		Gate:        rank.NewGate(0),
		Config:      sessionConfig(t.TempDir()),
		CaptureRoot: captureRoot,
	})

	result := s.Run(context.Background(), func(context.Context, int, params.Params, int) (map[string]float64, error) {
		return nil, errors.New("optimizer exploded")
	})

	assert.Empty(t, result)
	_, err := os.Stat(captureRoot)
	assert.True(t, os.IsNotExist(err))
}

func TestSession_FinalizationOnPrimaryWithTracker(t *testing.T) {
	dir := writeTrainedTree(t)
	tr := &fakeTracker{}

	s := New(Options{
		Gate:        rank.NewGate(0),
		Config:      sessionConfig(dir),
		Tracker:     tr,
		Project:     "vae-lm",
		Tags:        []string{"baseline"},
		CaptureRoot: filepath.Join(t.TempDir(), "error-batches"),
	})

	s.Run(context.Background(), func(context.Context, int, params.Params, int) (map[string]float64, error) {
		return map[string]float64{"loss": 0.5}, nil
	})

	// Tracker saw init with the flattened config, the packed archive, and
	// exactly one finish.
	assert.Equal(t, "vae-lm", tr.initProject)
	assert.Equal(t, "vae", tr.initConfig["model.type"])
	assert.Equal(t, []string{"baseline"}, tr.initTags)
	require.Len(t, tr.saved, 1)
	assert.Equal(t, filepath.Join(dir, archive.DefaultArchiveName), tr.saved[0])
	assert.Equal(t, 1, tr.finished)
}

func TestSession_NonPrimaryRankSkipsFinalization(t *testing.T) {
	dir := writeTrainedTree(t)
	tr := &fakeTracker{}

	s := New(Options{
		Gate:        rank.NewGate(1),
		Config:      sessionConfig(dir),
		Tracker:     tr,
		Project:     "vae-lm",
		CaptureRoot: filepath.Join(t.TempDir(), "error-batches"),
	})

	result := s.Run(context.Background(), func(context.Context, int, params.Params, int) (map[string]float64, error) {
		return map[string]float64{"loss": 0.5}, nil
	})

	assert.Equal(t, map[string]float64{"loss": 0.5}, result)

	// No archive written, no tracker session opened or closed.
	assert.NoFileExists(t, filepath.Join(dir, archive.DefaultArchiveName))
	assert.Empty(t, tr.initProject)
	assert.Zero(t, tr.finished)
}

func TestSession_TrackerInitFailureDoesNotKillRun(t *testing.T) {
	dir := writeTrainedTree(t)
	tr := &fakeTracker{initErr: errors.New("redis down")}

	s := New(Options{
		Gate:        rank.NewGate(0),
		Config:      sessionConfig(dir),
		Tracker:     tr,
		Project:     "vae-lm",
		CaptureRoot: filepath.Join(t.TempDir(), "error-batches"),
	})

	result := s.Run(context.Background(), func(context.Context, int, params.Params, int) (map[string]float64, error) {
		return map[string]float64{"loss": 0.5}, nil
	})

	assert.Equal(t, map[string]float64{"loss": 0.5}, result)
	// Run continued untracked; the archive still got packed.
	assert.FileExists(t, filepath.Join(dir, archive.DefaultArchiveName))
	assert.Zero(t, tr.finished)
}

func TestSession_NoBestCheckpointMeansNoArchive(t *testing.T) {
	dir := t.TempDir()

	s := New(Options{
		Gate:        rank.NewGate(0),
		Config:      sessionConfig(dir),
		CaptureRoot: filepath.Join(t.TempDir(), "error-batches"),
	})

	s.Run(context.Background(), func(context.Context, int, params.Params, int) (map[string]float64, error) {
		return nil, nil
	})

	assert.NoFileExists(t, filepath.Join(dir, archive.DefaultArchiveName))
}

func TestSession_RouterDispatchesMetricsDuringRun(t *testing.T) {
	dir := writeTrainedTree(t)
	tr := &fakeTracker{}

	s := New(Options{
		Gate:        rank.NewGate(0),
		Config:      sessionConfig(dir),
		Tracker:     tr,
		Project:     "vae-lm",
		CaptureRoot: filepath.Join(t.TempDir(), "error-batches"),
	})

	s.Run(context.Background(), func(context.Context, int, params.Params, int) (map[string]float64, error) {
		s.Router().Dispatch(diag.Record{Message: "Train", Metrics: map[string]float64{"loss": 1.2}})
		return map[string]float64{"loss": 1.2}, nil
	})

	require.Len(t, tr.logged, 1)
	assert.Equal(t, map[string]float64{"loss": 1.2}, tr.logged[0])
}
