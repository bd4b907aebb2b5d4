package cqlproto

import "github.com/twmb/cql-go/pkg/cqlbin"

// ResultKind is the sub-kind of a RESULT response body (§6).
type ResultKind int32

const (
	ResultVoid         ResultKind = 1
	ResultRows         ResultKind = 2
	ResultSetKeyspace  ResultKind = 3
	ResultPrepared     ResultKind = 4
	ResultSchemaChange ResultKind = 5
)

// ReadyBody is the (empty) READY response.
type ReadyBody struct{}

// AuthenticateBody names the authenticator the server demands.
type AuthenticateBody struct{ AuthenticatorName string }

func DecodeAuthenticate(r *cqlbin.Reader) AuthenticateBody {
	return AuthenticateBody{AuthenticatorName: r.String()}
}

// SupportedBody lists server-supported option values (compression
// algorithms, CQL versions, …).
type SupportedBody struct{ Options map[string][]string }

func DecodeSupported(r *cqlbin.Reader) SupportedBody {
	return SupportedBody{Options: r.StringMultiMap()}
}

// AuthChallengeBody carries the next SASL challenge token.
type AuthChallengeBody struct{ Token []byte }

func DecodeAuthChallenge(r *cqlbin.Reader) AuthChallengeBody {
	v, _ := r.Bytes()
	return AuthChallengeBody{Token: v}
}

// AuthSuccessBody carries the optional final SASL token.
type AuthSuccessBody struct{ Token []byte }

func DecodeAuthSuccess(r *cqlbin.Reader) AuthSuccessBody {
	v, _ := r.Bytes()
	return AuthSuccessBody{Token: v}
}

// SetKeyspaceBody names the keyspace a USE statement switched to.
type SetKeyspaceBody struct{ Keyspace string }

// PreparedBody is a RESULT/Prepared body: the opaque query id plus the
// bound-variables metadata and the result-columns metadata.
type PreparedBody struct {
	QueryID          []byte
	ResultMetadataID []byte // v5
	VarsMetadata     RowsMetadata
	ResultMetadata    RowsMetadata
}

func DecodePrepared(r *cqlbin.Reader, v Version) PreparedBody {
	p := PreparedBody{QueryID: r.ShortBytes()}
	if v >= Version5 {
		p.ResultMetadataID = r.ShortBytes()
	}
	p.VarsMetadata = DecodeRowsMetadata(r, v, true)
	p.ResultMetadata = DecodeRowsMetadata(r, v, false)
	return p
}

// SchemaChangeBody describes a CREATED/UPDATED/DROPPED schema change.
type SchemaChangeBody struct {
	ChangeType string // CREATED|UPDATED|DROPPED
	Target     string // KEYSPACE|TABLE|TYPE|FUNCTION|AGGREGATE
	Keyspace   string
	Name       string
	ArgTypes   []string // FUNCTION/AGGREGATE
}

func DecodeSchemaChange(r *cqlbin.Reader) SchemaChangeBody {
	sc := SchemaChangeBody{
		ChangeType: r.String(),
		Target:     r.String(),
	}
	sc.Keyspace = r.String()
	switch sc.Target {
	case "KEYSPACE":
	case "FUNCTION", "AGGREGATE":
		sc.Name = r.String()
		sc.ArgTypes = r.StringList()
	default:
		sc.Name = r.String()
	}
	return sc
}

// EventKind is the EVENT opcode's sub-type (§6).
type EventKind string

const (
	EventTopologyChange EventKind = "TOPOLOGY_CHANGE"
	EventStatusChange   EventKind = "STATUS_CHANGE"
	EventSchemaChange   EventKind = "SCHEMA_CHANGE"
)

// Event is a decoded server-initiated EVENT body.
type Event struct {
	Kind EventKind

	// TOPOLOGY_CHANGE
	TopologyChangeType string // NEW_NODE|REMOVED_NODE
	// STATUS_CHANGE
	StatusChangeType string // UP|DOWN

	Addr []byte
	Port int32

	Schema SchemaChangeBody
}

func DecodeEvent(r *cqlbin.Reader) Event {
	kind := EventKind(r.String())
	ev := Event{Kind: kind}
	switch kind {
	case EventTopologyChange:
		ev.TopologyChangeType = r.String()
		ev.Addr, ev.Port = r.Inet()
	case EventStatusChange:
		ev.StatusChangeType = r.String()
		ev.Addr, ev.Port = r.Inet()
	case EventSchemaChange:
		ev.Schema = DecodeSchemaChange(r)
	}
	return ev
}
