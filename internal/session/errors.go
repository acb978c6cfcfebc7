package session

// BatchError is the tagged error a run function returns when a specific unit
// of work caused the failure. The offending batch payload is part of the
// error's explicit contract; the failure-capture layer routes it to durable
// storage for offline debugging.
type BatchError struct {
	// Message describes the failure.
	Message string

	// Batch is the opaque payload of the offending unit of work.
	Batch []byte
}

func (e *BatchError) Error() string {
	return e.Message
}
