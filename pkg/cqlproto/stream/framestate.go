package stream

import "github.com/twmb/cql-go/pkg/cqlproto"

// frameState tracks one frame's decode progress from the moment its header
// arrives until frame_ended fires for its stream id. Per spec.md §4.2, the
// Parser keeps one of these per in-flight stream id; in practice at most one
// is mid-decode at a time on a single connection, since frame bytes are
// contiguous on the wire, but nothing here assumes that.
type frameState struct {
	header Header

	// rawConsumed counts bytes consumed from the frame's body (post-header).
	// Once a compressed frame's raw bytes have been decompressed and spliced
	// back into the byte queue (decompressed==true), header.BodyLen and
	// rawConsumed both refer to the decompressed logical body instead.
	rawConsumed int
	decompressed bool

	wantRowByRow bool

	preludeConsumed bool
	extras          cqlproto.ResponseExtras

	kindKnown bool
	kind      cqlproto.ResultKind

	// Rows decode state, row-by-row mode only.
	metaDecoded bool
	meta        cqlproto.RowsMetadata
	rowCount    int32
	rowIndex    int32
	colIndex    int32
	curRow      Row

	// Accumulator for a cell whose declared length exceeds what has arrived
	// so far; avoids re-copying the growing partial value on every chunk.
	cellChunks   [][]byte
	missingBytes int
}

// Header is a local alias so frameState doesn't need to qualify every use;
// kept distinct from cqlproto.Header only for readability in this file.
type Header = cqlproto.Header

func (f *frameState) rawRemaining() int {
	return int(f.header.BodyLen) - f.rawConsumed
}
