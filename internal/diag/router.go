package diag

import "log"

// Sink is a destination for diagnostic records. A sink may consult a rank
// gate internally to decide whether to act: different diagnostics have
// different locality requirements (a crash dump is useful on every rank, a
// remote tracker upload must happen on the primary rank only). That decision
// deliberately lives in the sink, not the router.
type Sink interface {
	// Deliver processes one record. An error is isolated by the router.
	Deliver(rec Record) error
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(rec Record) error

// Deliver calls f(rec).
func (f SinkFunc) Deliver(rec Record) error {
	return f(rec)
}

type registration struct {
	name string
	pred Predicate
	sink Sink
}

// Router fans diagnostic records out to registered sinks.
//
// Sinks are registered once at process start and never removed, and dispatch
// runs synchronously in the calling goroutine, so no locking is needed. A
// slow sink blocks the dispatching call; any timeout belongs inside the sink.
type Router struct {
	sinks []registration
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Register appends a (predicate, sink) pair to the registry.
// The name identifies the sink in fallback-channel logs when it fails.
// Registration order is preserved; it only matters for log readability,
// not correctness, since dispatch is multicast.
func (r *Router) Register(name string, pred Predicate, sink Sink) {
	r.sinks = append(r.sinks, registration{name: name, pred: pred, sink: sink})
}

// Dispatch evaluates every registered predicate against the record and
// delivers the record to every sink whose predicate matches. All matching
// sinks run, not just the first. A sink that returns an error or panics is
// logged to the fallback channel and the remaining sinks still run; Dispatch
// never propagates a sink failure to its caller.
func (r *Router) Dispatch(rec Record) {
	for _, reg := range r.sinks {
		if !reg.pred(rec) {
			continue
		}
		if err := deliver(reg.sink, rec); err != nil {
			log.Printf("[ERROR] Diagnostic sink '%s' failed: %v", reg.name, err)
		}
	}
}

// deliver invokes the sink, converting a panic into an error so the dispatch
// loop can continue with the remaining sinks.
func deliver(sink Sink, rec Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &SinkPanicError{Value: p}
		}
	}()
	return sink.Deliver(rec)
}
