package diag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatch_PredicateRouting(t *testing.T) {
	router := NewRouter()

	var batchHits, metricsHits int
	router.Register("batch", HasBatch, SinkFunc(func(rec Record) error {
		batchHits++
		return nil
	}))
	router.Register("metrics", HasMetrics, SinkFunc(func(rec Record) error {
		metricsHits++
		return nil
	}))

	// Batch-only record reaches only the batch sink.
	router.Dispatch(Record{Message: "bad batch", Batch: []byte{1, 2, 3}})
	assert.Equal(t, 1, batchHits)
	assert.Equal(t, 0, metricsHits)

	// Record with both payloads reaches both sinks (multicast, not first-match).
	router.Dispatch(Record{
		Message: "both",
		Batch:   []byte{4},
		Metrics: map[string]float64{"loss": 1.0},
	})
	assert.Equal(t, 2, batchHits)
	assert.Equal(t, 1, metricsHits)

	// Plain record reaches neither.
	router.Dispatch(Record{Message: "plain"})
	assert.Equal(t, 2, batchHits)
	assert.Equal(t, 1, metricsHits)
}

func TestDispatch_RegistrationOrder(t *testing.T) {
	router := NewRouter()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		router.Register(name, Any, SinkFunc(func(Record) error {
			order = append(order, name)
			return nil
		}))
	}

	router.Dispatch(Record{Message: "hello"})
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestDispatch_FailingSinkIsIsolated(t *testing.T) {
	router := NewRouter()

	delivered := false
	router.Register("broken", Any, SinkFunc(func(Record) error {
		return errors.New("disk full")
	}))
	router.Register("healthy", Any, SinkFunc(func(Record) error {
		delivered = true
		return nil
	}))

	// Must not panic or stop delivery to the healthy sink.
	router.Dispatch(Record{Message: "event"})
	assert.True(t, delivered)
}

func TestDispatch_PanickingSinkIsIsolated(t *testing.T) {
	router := NewRouter()

	delivered := false
	router.Register("panicky", Any, SinkFunc(func(Record) error {
		panic("sink bug")
	}))
	router.Register("healthy", Any, SinkFunc(func(Record) error {
		delivered = true
		return nil
	}))

	assert.NotPanics(t, func() {
		router.Dispatch(Record{Message: "event"})
	})
	assert.True(t, delivered)
}

func TestSinkPanicError_Message(t *testing.T) {
	err := &SinkPanicError{Value: "boom"}
	assert.Contains(t, err.Error(), "boom")
}

func TestRecord_FieldTags(t *testing.T) {
	assert.False(t, Record{}.HasBatch())
	assert.False(t, Record{}.HasMetrics())
	assert.True(t, Record{Batch: []byte{}}.HasBatch())
	assert.True(t, Record{Metrics: map[string]float64{}}.HasMetrics())
}
