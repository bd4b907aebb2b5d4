package cqlbin

import "github.com/google/uuid"

// NewTraceID returns a fresh, well-formed v4 UUID for use as a trace_query
// trace id or a generated query id, backed by google/uuid so callers never
// hand-roll RFC 4122 bit-twiddling.
func NewTraceID() [16]byte {
	id := uuid.New()
	var out [16]byte
	copy(out[:], id[:])
	return out
}
