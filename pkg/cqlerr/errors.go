package cqlerr

import (
	"fmt"

	"github.com/twmb/cql-go/pkg/cqlbin"
)

// Consistency mirrors the CQL consistency level enum. It is redeclared here
// rather than imported from cqlproto so that cqlerr has no dependency on the
// higher-level frame package — cqlproto depends on cqlerr, not vice versa,
// the same one-directional layering kmsg has on kerr.
type Consistency uint16

const (
	ConsistencyAny         Consistency = 0x0000
	ConsistencyOne         Consistency = 0x0001
	ConsistencyTwo         Consistency = 0x0002
	ConsistencyThree       Consistency = 0x0003
	ConsistencyQuorum      Consistency = 0x0004
	ConsistencyAll         Consistency = 0x0005
	ConsistencyLocalQuorum Consistency = 0x0006
	ConsistencyEachQuorum  Consistency = 0x0007
	ConsistencySerial      Consistency = 0x0008
	ConsistencyLocalSerial Consistency = 0x0009
	ConsistencyLocalOne    Consistency = 0x000A
)

// WriteType describes what kind of write a WriteTimeout/WriteFailure
// occurred during.
type WriteType string

const (
	WriteTypeSimple        WriteType = "SIMPLE"
	WriteTypeBatch         WriteType = "BATCH"
	WriteTypeUnloggedBatch WriteType = "UNLOGGED_BATCH"
	WriteTypeCounter       WriteType = "COUNTER"
	WriteTypeBatchLog      WriteType = "BATCH_LOG"
	WriteTypeCAS           WriteType = "CAS"
	WriteTypeView          WriteType = "VIEW"
	WriteTypeCDC           WriteType = "CDC"
)

// ServerError is the common shape every decoded CQL error carries: the code,
// the server's message, and the code-specific metadata fields named in
// spec.md §7 (only the fields relevant to that code are populated).
type ServerError struct {
	Code    Code
	Message string

	Consistency Consistency
	Received    int32
	BlockFor    int32

	// Unavailable
	Alive int32

	// WriteTimeout / WriteFailure
	WriteType WriteType

	// ReadTimeout / ReadFailure
	DataPresent bool

	// *Failure: per-endpoint failure reason codes (protocol v5, map
	// inet->reason code); kept generic as a count for v4 compatibility.
	NumFailures int32

	// Unprepared
	QueryID []byte

	// AlreadyExists
	Keyspace string
	Table    string

	// FunctionFailure
	FunctionKeyspace string
	FunctionName     string
	ArgTypes         []string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code.Name(), e.Message)
	}
	return e.Code.Name()
}

// Decode reads an ERROR body: [int] code, [string] message, then a
// code-specific tail, per spec.md §4.1/§7.
func Decode(r *cqlbin.Reader) *ServerError {
	e := &ServerError{
		Code:    Code(r.Int()),
		Message: r.String(),
	}
	switch e.Code {
	case CodeUnavailable:
		e.Consistency = Consistency(r.Short())
		e.Required(r)
	case CodeWriteTimeout:
		e.Consistency = Consistency(r.Short())
		e.Received = r.Int()
		e.BlockFor = r.Int()
		e.WriteType = WriteType(r.String())
	case CodeReadTimeout:
		e.Consistency = Consistency(r.Short())
		e.Received = r.Int()
		e.BlockFor = r.Int()
		e.DataPresent = r.Byte() != 0
	case CodeReadFailure:
		e.Consistency = Consistency(r.Short())
		e.Received = r.Int()
		e.BlockFor = r.Int()
		e.NumFailures = r.Int()
		e.DataPresent = r.Byte() != 0
	case CodeWriteFailure:
		e.Consistency = Consistency(r.Short())
		e.Received = r.Int()
		e.BlockFor = r.Int()
		e.NumFailures = r.Int()
		e.WriteType = WriteType(r.String())
	case CodeFunctionFailure:
		e.FunctionKeyspace = r.String()
		e.FunctionName = r.String()
		e.ArgTypes = r.StringList()
	case CodeAlreadyExists:
		e.Keyspace = r.String()
		e.Table = r.String()
	case CodeUnprepared:
		e.QueryID = r.ShortBytes()
	}
	return e
}

// Required is split out only so CodeUnavailable's two trailing ints have a
// documented name (blockFor is meaningless for Unavailable; the wire field
// is "required" replicas vs "alive" replicas).
func (e *ServerError) Required(r *cqlbin.Reader) {
	e.BlockFor = r.Int()
	e.Alive = r.Int()
}

// IsRetryableOnSameHost reports whether the Retry Policy should even be
// consulted for same-host retry, per spec.md §4.5's error-category table.
func (c Code) IsRetryableOnSameHost() bool {
	switch c {
	case CodeUnavailable, CodeReadTimeout, CodeWriteTimeout:
		return true
	}
	return false
}

// IsRetryableOnNextHost reports codes that spec.md §4.5 routes straight to
// the next host in the query plan rather than through the Retry Policy.
func (c Code) IsRetryableOnNextHost() bool {
	switch c {
	case CodeOverloaded, CodeIsBootstrapping, CodeTruncateError:
		return true
	}
	return false
}

// IsTerminal reports codes that are never retried or fanned out — the
// caller sees them directly.
func (c Code) IsTerminal() bool {
	switch c {
	case CodeWriteFailure, CodeReadFailure, CodeFunctionFailure, CodeAlreadyExists,
		CodeSyntaxError, CodeInvalid, CodeUnauthorized, CodeConfigError, CodeProtocolError:
		return true
	}
	return false
}
