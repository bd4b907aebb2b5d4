// Package stream implements the streaming response parser (spec.md §4.2):
// it turns a connection's incoming byte stream into a sequence of logical
// Items ordered per stream id, decoding Rows results row-by-row without
// buffering the whole frame when the caller has opted into that mode for a
// given stream id.
package stream

import (
	"github.com/twmb/cql-go/pkg/cqlerr"
	"github.com/twmb/cql-go/pkg/cqlproto"
)

// ItemKind discriminates the logical item a Parser produces.
type ItemKind int

const (
	ItemReady ItemKind = iota
	ItemMustAuthenticate
	ItemAuthChallenge
	ItemAuthSuccess
	ItemSupported
	ItemEvent
	ItemError
	ItemVoid
	ItemKeyspaceSet
	ItemSchemaChange
	ItemPrepared
	ItemRowsMetadata
	ItemRow
	ItemFrameEnded
	ItemProtocolError
)

// Row is one decoded row: raw [bytes] cell payloads, decoded into concrete
// Go values by a higher layer that has the column ColumnType in hand (the
// Parser itself only owns wire decoding, not CQL-type-to-Go-type mapping).
type Row struct {
	Values [][]byte
	Null   []bool
}

// Item is one logical unit the Parser emits for a given StreamID. At most
// one of the kind-specific fields is populated, matching Kind (ItemVoid
// carries none).
type Item struct {
	StreamID int16
	Kind     ItemKind

	Ready             bool
	MustAuthenticate  bool
	AuthenticatorName string
	AuthChallenge     []byte
	AuthSuccess       []byte
	Supported         cqlproto.SupportedBody
	Event             cqlproto.Event
	Error             *cqlerr.ServerError
	KeyspaceSet       string
	SchemaChange      cqlproto.SchemaChangeBody
	Prepared          cqlproto.PreparedBody
	RowsMeta          cqlproto.RowsMetadata
	Row               Row
	FrameEnded        bool
	ProtocolErr       error

	// Extras carried by response frames that set the tracing/warning/
	// custom-payload flags (§4.1); attached to the "head" item of a frame
	// (Ready/Error/Void/RowsMetadata/…), not repeated on every Row.
	TraceID       [16]byte
	HasTraceID    bool
	Warnings      []string
	CustomPayload map[string][]byte
}
