// Package diag routes structured diagnostic records to registered sinks.
//
// Routing is predicate-based multicast: every registered sink whose predicate
// matches a record receives it, in registration order. A failing sink is
// isolated at the dispatch boundary so one bad destination never blocks
// delivery to the others or crashes the training run that emitted the record.
package diag

// Record is a structured diagnostic record: a message plus optional tagged
// payloads. Records are ephemeral - constructed at the failure or log site,
// dispatched synchronously, then discarded. Only sinks persist them.
type Record struct {
	// Message is the human-readable description of the event.
	Message string

	// Batch is the opaque unit-of-work payload that caused a failure.
	// Nil when the record carries no batch payload.
	Batch []byte

	// JobKey partitions durable batch captures per job. Derived from the
	// serialization directory name by the failure-capture layer.
	JobKey string

	// Metrics is a flat name->value map. Nil when the record carries no
	// metrics payload.
	Metrics map[string]float64
}

// HasBatch reports whether the record carries a batch payload.
func (r Record) HasBatch() bool {
	return r.Batch != nil
}

// HasMetrics reports whether the record carries a metrics payload.
func (r Record) HasMetrics() bool {
	return r.Metrics != nil
}

// Predicate is a pure function of a record's field set.
// Predicates must not mutate the record or have side effects.
type Predicate func(Record) bool

// HasBatch matches records carrying a batch payload.
func HasBatch(r Record) bool { return r.HasBatch() }

// HasMetrics matches records carrying a metrics payload.
func HasMetrics(r Record) bool { return r.HasMetrics() }

// Any matches every record.
func Any(Record) bool { return true }
