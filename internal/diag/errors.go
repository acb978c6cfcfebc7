package diag

import "fmt"

// SinkPanicError wraps a panic raised inside a sink's Deliver so the router
// can report it on the fallback channel like any other sink failure.
type SinkPanicError struct {
	// Value is the recovered panic value.
	Value any
}

func (e *SinkPanicError) Error() string {
	return fmt.Sprintf("sink panicked: %v", e.Value)
}
