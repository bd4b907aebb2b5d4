package cqlproto

import (
	"github.com/twmb/cql-go/pkg/cqlbin"
	"github.com/twmb/cql-go/pkg/cqlerr"
)

// Request is one of the client-to-server message kinds in spec.md §3:
// STARTUP, AUTH_RESPONSE, OPTIONS, QUERY, PREPARE, EXECUTE, BATCH,
// REGISTER.
type Request interface {
	Opcode() Opcode
	AppendBody(dst []byte, v Version) []byte
}

// StartupRequest negotiates protocol options (compression, CQL version).
type StartupRequest struct {
	Options map[string]string
}

func (*StartupRequest) Opcode() Opcode { return OpStartup }
func (r *StartupRequest) AppendBody(dst []byte, v Version) []byte {
	return cqlbin.AppendStringMap(dst, r.Options)
}

// AuthResponseRequest carries the SASL token produced by a cqlauth.Authenticator.
type AuthResponseRequest struct{ Token []byte }

func (*AuthResponseRequest) Opcode() Opcode { return OpAuthResponse }
func (r *AuthResponseRequest) AppendBody(dst []byte, v Version) []byte {
	return cqlbin.AppendBytes(dst, r.Token, true)
}

// OptionsRequest asks the server which options/algorithms it supports; also
// doubles as the Connection heartbeat ping (spec.md §4.3).
type OptionsRequest struct{}

func (OptionsRequest) Opcode() Opcode                              { return OpOptions }
func (OptionsRequest) AppendBody(dst []byte, v Version) []byte { return dst }

// QueryFlags are the CQL v4/v5 QUERY/EXECUTE parameter flags.
type QueryFlags uint32

const (
	QueryFlagValues              QueryFlags = 0x01
	QueryFlagSkipMetadata        QueryFlags = 0x02
	QueryFlagPageSize            QueryFlags = 0x04
	QueryFlagWithPagingState     QueryFlags = 0x08
	QueryFlagWithSerialConsistency QueryFlags = 0x10
	QueryFlagWithDefaultTimestamp  QueryFlags = 0x20
	QueryFlagWithNamesForValues    QueryFlags = 0x40
	QueryFlagWithKeyspace          QueryFlags = 0x80   // v5
	QueryFlagWithNowInSeconds      QueryFlags = 0x100  // v5
)

func (f QueryFlags) Has(bit QueryFlags) bool { return f&bit != 0 }

// QueryParams bundles the shared [consistency][<flags>][...] tail that
// QUERY, EXECUTE, and each BATCH sub-query serialize, per §6's
// "Request-options surface to Execution".
type QueryParams struct {
	Consistency       cqlerr.Consistency
	Flags             QueryFlags
	Values            [][]byte
	Names             []string // parallel to Values when QueryFlagWithNamesForValues
	PageSize          int32
	PagingState       []byte
	SerialConsistency cqlerr.Consistency
	Timestamp         int64
	Keyspace          string // v5
	NowInSeconds      int32  // v5
}

func appendQueryParams(dst []byte, p QueryParams) []byte {
	dst = cqlbin.AppendShort(dst, uint16(p.Consistency))
	dst = cqlbin.AppendInt(dst, int32(p.Flags))
	if p.Flags.Has(QueryFlagValues) {
		dst = cqlbin.AppendShort(dst, uint16(len(p.Values)))
		for i, v := range p.Values {
			if p.Flags.Has(QueryFlagWithNamesForValues) {
				dst = cqlbin.AppendString(dst, p.Names[i])
			}
			dst = cqlbin.AppendBytes(dst, v, v != nil)
		}
	}
	if p.Flags.Has(QueryFlagPageSize) {
		dst = cqlbin.AppendInt(dst, p.PageSize)
	}
	if p.Flags.Has(QueryFlagWithPagingState) {
		dst = cqlbin.AppendBytes(dst, p.PagingState, true)
	}
	if p.Flags.Has(QueryFlagWithSerialConsistency) {
		dst = cqlbin.AppendShort(dst, uint16(p.SerialConsistency))
	}
	if p.Flags.Has(QueryFlagWithDefaultTimestamp) {
		dst = cqlbin.AppendLong(dst, p.Timestamp)
	}
	if p.Flags.Has(QueryFlagWithKeyspace) {
		dst = cqlbin.AppendString(dst, p.Keyspace)
	}
	if p.Flags.Has(QueryFlagWithNowInSeconds) {
		dst = cqlbin.AppendInt(dst, p.NowInSeconds)
	}
	return dst
}

// QueryRequest runs a non-prepared CQL statement.
type QueryRequest struct {
	Query  string
	Params QueryParams
}

func (*QueryRequest) Opcode() Opcode { return OpQuery }
func (r *QueryRequest) AppendBody(dst []byte, v Version) []byte {
	dst = cqlbin.AppendLongString(dst, r.Query)
	return appendQueryParams(dst, r.Params)
}

// PrepareRequest asks the server to prepare a statement for later EXECUTE.
type PrepareRequest struct {
	Query    string
	Keyspace string // v5
	UseKeyspace bool
}

func (*PrepareRequest) Opcode() Opcode { return OpPrepare }
func (r *PrepareRequest) AppendBody(dst []byte, v Version) []byte {
	dst = cqlbin.AppendLongString(dst, r.Query)
	if v >= Version5 {
		flags := uint32(0)
		if r.UseKeyspace {
			flags = uint32(QueryFlagWithKeyspace)
		}
		dst = cqlbin.AppendInt(dst, int32(flags))
		if r.UseKeyspace {
			dst = cqlbin.AppendString(dst, r.Keyspace)
		}
	}
	return dst
}

// ExecuteRequest runs a previously PREPAREd statement by id.
type ExecuteRequest struct {
	QueryID          []byte
	ResultMetadataID []byte // v5, only when metadata changed
	Params           QueryParams
}

func (*ExecuteRequest) Opcode() Opcode { return OpExecute }
func (r *ExecuteRequest) AppendBody(dst []byte, v Version) []byte {
	dst = cqlbin.AppendShortBytes(dst, r.QueryID)
	if v >= Version5 && r.ResultMetadataID != nil {
		dst = cqlbin.AppendShortBytes(dst, r.ResultMetadataID)
	}
	return appendQueryParams(dst, r.Params)
}

// BatchKind is a BATCH request's batch type.
type BatchKind byte

const (
	BatchLogged   BatchKind = 0
	BatchUnlogged BatchKind = 1
	BatchCounter  BatchKind = 2
)

// BatchQuery is one statement within a BATCH: either a raw query string or a
// prepared id, plus its bound values.
type BatchQuery struct {
	IsPrepared bool
	Query      string
	QueryID    []byte
	Values     [][]byte
	Names      []string
}

// BatchRequest executes several statements atomically (spec.md §3).
type BatchRequest struct {
	Kind              BatchKind
	Queries           []BatchQuery
	Consistency       cqlerr.Consistency
	Flags             QueryFlags
	SerialConsistency cqlerr.Consistency
	Timestamp         int64
}

func (*BatchRequest) Opcode() Opcode { return OpBatch }
func (r *BatchRequest) AppendBody(dst []byte, v Version) []byte {
	dst = append(dst, byte(r.Kind))
	dst = cqlbin.AppendShort(dst, uint16(len(r.Queries)))
	withNames := r.Flags.Has(QueryFlagWithNamesForValues)
	for _, q := range r.Queries {
		if q.IsPrepared {
			dst = append(dst, 1)
			dst = cqlbin.AppendShortBytes(dst, q.QueryID)
		} else {
			dst = append(dst, 0)
			dst = cqlbin.AppendLongString(dst, q.Query)
		}
		dst = cqlbin.AppendShort(dst, uint16(len(q.Values)))
		for i, val := range q.Values {
			if withNames {
				dst = cqlbin.AppendString(dst, q.Names[i])
			}
			dst = cqlbin.AppendBytes(dst, val, val != nil)
		}
	}
	dst = cqlbin.AppendShort(dst, uint16(r.Consistency))
	dst = cqlbin.AppendInt(dst, int32(r.Flags))
	if r.Flags.Has(QueryFlagWithSerialConsistency) {
		dst = cqlbin.AppendShort(dst, uint16(r.SerialConsistency))
	}
	if r.Flags.Has(QueryFlagWithDefaultTimestamp) {
		dst = cqlbin.AppendLong(dst, r.Timestamp)
	}
	return dst
}

// RegisterRequest subscribes the connection to server EVENT notifications.
type RegisterRequest struct{ EventTypes []string }

func (*RegisterRequest) Opcode() Opcode { return OpRegister }
func (r *RegisterRequest) AppendBody(dst []byte, v Version) []byte {
	return cqlbin.AppendStringList(dst, r.EventTypes)
}
