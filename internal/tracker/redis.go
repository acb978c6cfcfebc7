package tracker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key layout, namespaced per run so multiple jobs can share one server:
//
//	kiln:{run}:meta      - hash: project, tags, config, started_at, finished_at
//	kiln:{run}:metrics   - stream: one XADD entry per Log call
//	kiln:{run}:artifacts - hash: file name -> sha256 digest
func metaKey(runID string) string      { return fmt.Sprintf("kiln:%s:meta", runID) }
func metricsKey(runID string) string   { return fmt.Sprintf("kiln:%s:metrics", runID) }
func artifactsKey(runID string) string { return fmt.Sprintf("kiln:%s:artifacts", runID) }

// RedisTracker records experiment runs in Redis.
// Run metadata lives in a hash, metric reports are appended to a stream, and
// saved artifacts are registered as name -> content digest. The tracker is
// not safe for concurrent use; the session layer calls it from one goroutine.
type RedisTracker struct {
	rdb   *redis.Client
	runID string
}

// NewRedisTracker creates a tracker backed by the Redis server described by
// opts. The run ID is assigned by Init.
func NewRedisTracker(opts *redis.Options) *RedisTracker {
	return &RedisTracker{rdb: redis.NewClient(opts)}
}

// RunID returns the identifier assigned by Init, or "" before Init.
func (t *RedisTracker) RunID() string {
	return t.runID
}

// Close closes the Redis connection. Implements io.Closer.
func (t *RedisTracker) Close() error {
	return t.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for fail-fast startup checks.
func (t *RedisTracker) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

// Init opens a new run: assigns a run ID and writes the run metadata hash.
// Returns an error if project is empty or the write fails.
func (t *RedisTracker) Init(ctx context.Context, project string, config map[string]any, tags []string) error {
	if project == "" {
		return fmt.Errorf("tracker project cannot be empty")
	}
	if t.runID != "" {
		return fmt.Errorf("tracker already initialized for run %s", t.runID)
	}

	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	runID := uuid.New().String()
	meta := map[string]any{
		"project":    project,
		"tags":       string(tagsJSON),
		"config":     string(configJSON),
		"started_at": strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	if err := t.rdb.HSet(ctx, metaKey(runID), meta).Err(); err != nil {
		return fmt.Errorf("failed to write run metadata to Redis: %w", err)
	}

	t.runID = runID
	return nil
}

// Log appends one metrics report to the run's metrics stream.
func (t *RedisTracker) Log(ctx context.Context, metrics map[string]float64) error {
	if t.runID == "" {
		return fmt.Errorf("tracker not initialized")
	}
	if len(metrics) == 0 {
		return nil
	}

	values := make(map[string]any, len(metrics))
	for name, value := range metrics {
		values[name] = strconv.FormatFloat(value, 'f', -1, 64)
	}

	if err := t.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: metricsKey(t.runID),
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to append metrics to Redis stream: %w", err)
	}

	return nil
}

// Save registers an artifact file with the run: the file's base name is
// mapped to the sha256 digest of its contents, so a consumer can verify the
// artifact it fetches from shared storage is the one this run produced.
func (t *RedisTracker) Save(ctx context.Context, path string) error {
	if t.runID == "" {
		return fmt.Errorf("tracker not initialized")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	digest := sha256.Sum256(data)

	name := filepath.Base(path)
	if err := t.rdb.HSet(ctx, artifactsKey(t.runID), name, hex.EncodeToString(digest[:])).Err(); err != nil {
		return fmt.Errorf("failed to register artifact in Redis: %w", err)
	}

	return nil
}

// Finish stamps the run as finished. Further calls fail.
func (t *RedisTracker) Finish(ctx context.Context) error {
	if t.runID == "" {
		return fmt.Errorf("tracker not initialized")
	}

	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := t.rdb.HSet(ctx, metaKey(t.runID), "finished_at", stamp).Err(); err != nil {
		return fmt.Errorf("failed to finalize run in Redis: %w", err)
	}

	t.runID = ""
	return nil
}
