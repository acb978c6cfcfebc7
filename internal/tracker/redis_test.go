package tracker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTracker(t *testing.T) (*RedisTracker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	tr := NewRedisTracker(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { tr.Close() })

	return tr, mr
}

func TestRedisTracker_Init(t *testing.T) {
	tr, mr := setupTracker(t)
	ctx := context.Background()

	err := tr.Init(ctx, "vae-lm", map[string]any{"encoder.dim": 128}, []string{"baseline"})
	require.NoError(t, err)
	require.NotEmpty(t, tr.RunID())

	meta := mr.HGet(metaKey(tr.RunID()), "project")
	assert.Equal(t, "vae-lm", meta)
	assert.Contains(t, mr.HGet(metaKey(tr.RunID()), "tags"), "baseline")
	assert.Contains(t, mr.HGet(metaKey(tr.RunID()), "config"), "encoder.dim")
	assert.NotEmpty(t, mr.HGet(metaKey(tr.RunID()), "started_at"))
}

func TestRedisTracker_Init_EmptyProject(t *testing.T) {
	tr, _ := setupTracker(t)

	err := tr.Init(context.Background(), "", nil, nil)
	assert.Error(t, err)
	assert.Empty(t, tr.RunID())
}

func TestRedisTracker_Init_Twice(t *testing.T) {
	tr, _ := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Init(ctx, "vae-lm", nil, nil))
	err := tr.Init(ctx, "vae-lm", nil, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")
}

func TestRedisTracker_Log(t *testing.T) {
	tr, mr := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Init(ctx, "vae-lm", nil, nil))
	require.NoError(t, tr.Log(ctx, map[string]float64{"loss": 1.25, "acc": 98.7}))
	require.NoError(t, tr.Log(ctx, map[string]float64{"loss": 1.10}))

	entries, err := mr.Stream(metricsKey(tr.RunID()))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRedisTracker_Log_BeforeInit(t *testing.T) {
	tr, _ := setupTracker(t)

	err := tr.Log(context.Background(), map[string]float64{"loss": 1.0})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestRedisTracker_Save(t *testing.T) {
	tr, mr := setupTracker(t)
	ctx := context.Background()

	artifact := filepath.Join(t.TempDir(), "model.tar.gz")
	content := []byte("archive bytes")
	require.NoError(t, os.WriteFile(artifact, content, 0644))

	require.NoError(t, tr.Init(ctx, "vae-lm", nil, nil))
	require.NoError(t, tr.Save(ctx, artifact))

	digest := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(digest[:]), mr.HGet(artifactsKey(tr.RunID()), "model.tar.gz"))
}

func TestRedisTracker_Save_MissingFile(t *testing.T) {
	tr, _ := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Init(ctx, "vae-lm", nil, nil))
	err := tr.Save(ctx, filepath.Join(t.TempDir(), "missing.tar.gz"))
	assert.Error(t, err)
}

func TestRedisTracker_Finish(t *testing.T) {
	tr, mr := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Init(ctx, "vae-lm", nil, nil))
	runID := tr.RunID()

	require.NoError(t, tr.Finish(ctx))
	assert.NotEmpty(t, mr.HGet(metaKey(runID), "finished_at"))

	// Finished trackers reject further use.
	assert.Error(t, tr.Log(ctx, map[string]float64{"loss": 1.0}))
	assert.Error(t, tr.Finish(ctx))
}
