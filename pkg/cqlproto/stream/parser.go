package stream

import (
	"fmt"
	"sync"

	"github.com/twmb/cql-go/pkg/cqlbin"
	"github.com/twmb/cql-go/pkg/cqlerr"
	"github.com/twmb/cql-go/pkg/cqlproto"
)

// Parser turns a connection's raw incoming bytes into Items. It is a pull
// producer (spec.md §4.2, §9): Feed appends bytes as they arrive off the
// socket, Next returns the next decoded Item or (Item{}, false) if the
// bytes buffered so far aren't enough to produce one. A caller that never
// calls Next never causes the Parser to do unbounded work, which is what
// gives a slow consumer real backpressure against a connection producing
// a giant result set.
type Parser struct {
	version     cqlproto.Version
	compressors map[string]cqlproto.Compressor
	compressAlg string

	buf   []byte
	queue []Item

	states       map[int16]*frameState
	cur          *frameState

	// rowByRowWant is written by whatever goroutine is issuing requests and
	// read by the goroutine driving Feed/Next, which are typically not the
	// same goroutine (a Connection's writer vs. its reader); guarded
	// separately from the rest of Parser's state, which is single-owner.
	rowByRowMu   sync.Mutex
	rowByRowWant map[int16]bool
}

// NewParser constructs a Parser for the given negotiated protocol version.
func NewParser(v cqlproto.Version) *Parser {
	return &Parser{
		version:      v,
		states:       make(map[int16]*frameState),
		rowByRowWant: make(map[int16]bool),
	}
}

// SetCompression configures the frame-body decompressor to use, matching
// whatever algorithm STARTUP negotiated; algo is empty if none was.
func (p *Parser) SetCompression(algo string, registry map[string]cqlproto.Compressor) {
	p.compressAlg = algo
	p.compressors = registry
}

// RequestRowByRow opts a single upcoming response for streamID into
// row-by-row decoding, should its RESULT turn out to carry Rows. The flag
// is consumed (one-shot) the moment that frame's header is parsed.
func (p *Parser) RequestRowByRow(streamID int16) {
	p.rowByRowMu.Lock()
	p.rowByRowWant[streamID] = true
	p.rowByRowMu.Unlock()
}

func (p *Parser) takeRowByRowWant(streamID int16) bool {
	p.rowByRowMu.Lock()
	want := p.rowByRowWant[streamID]
	delete(p.rowByRowWant, streamID)
	p.rowByRowMu.Unlock()
	return want
}

// Feed appends newly-arrived bytes to the Parser's internal queue. Chunk
// boundaries are arbitrary: Feed may be called with a single byte or with
// many frames' worth of data at once.
func (p *Parser) Feed(chunk []byte) {
	p.buf = append(p.buf, chunk...)
}

// Pending reports how many bytes are buffered but not yet consumed into an
// emitted Item; used by a Connection to decide whether it's safe to stop
// reading from the socket.
func (p *Parser) Pending() int { return len(p.buf) }

// Next returns the next decoded Item, or (Item{}, false) if Feed needs to
// supply more bytes before one can be produced.
func (p *Parser) Next() (Item, bool) {
	for {
		if len(p.queue) > 0 {
			it := p.queue[0]
			p.queue = p.queue[1:]
			return it, true
		}
		if !p.step() {
			return Item{}, false
		}
	}
}

func (p *Parser) push(it Item) { p.queue = append(p.queue, it) }

func (p *Parser) consume(n int) {
	p.buf = p.buf[n:]
	p.cur.rawConsumed += n
}

// step performs one unit of decode work, returning whether it made forward
// progress. false means the buffered bytes aren't enough for the current
// step and the caller must Feed more before calling Next again.
func (p *Parser) step() bool {
	if p.cur == nil {
		return p.tryStartFrame()
	}
	cur := p.cur
	if cur.header.Flags.Has(cqlproto.FlagCompression) && !cur.decompressed {
		return p.tryDecompress(cur)
	}
	if !cur.preludeConsumed {
		return p.tryConsumeExtras(cur)
	}
	if cur.header.Opcode != cqlproto.OpResult {
		return p.bufferRestAndDispatchNonResult(cur)
	}
	if !cur.kindKnown {
		return p.tryReadKind(cur)
	}
	if cur.kind != cqlproto.ResultRows {
		return p.bufferRestAndDispatchResult(cur)
	}
	if !cur.wantRowByRow {
		return p.bufferRestAndDispatchRows(cur)
	}
	return p.streamRows(cur)
}

func (p *Parser) tryStartFrame() bool {
	if len(p.buf) < 1 {
		return false
	}
	v, err := cqlproto.PeekVersion(p.buf)
	if err != nil {
		return false
	}
	need := v.HeaderLen()
	if len(p.buf) < need {
		return false
	}
	h, err := cqlproto.DecodeHeader(p.buf[:need])
	if err != nil {
		// A malformed header is unrecoverable for the connection; surface it
		// on the sentinel EVENT stream id so a caller always has somewhere
		// to look for it even if it can't attribute it to a request.
		p.buf = p.buf[need:]
		p.push(Item{StreamID: cqlproto.EventStreamID, Kind: ItemProtocolError, ProtocolErr: err})
		return true
	}
	p.buf = p.buf[need:]
	want := p.takeRowByRowWant(h.StreamID)
	cur := &frameState{header: h, wantRowByRow: want}
	p.states[h.StreamID] = cur
	p.cur = cur
	return true
}

func (p *Parser) emitProtocolErrorAndClear(cur *frameState, msg string) {
	p.push(Item{
		StreamID:    cur.header.StreamID,
		Kind:        ItemProtocolError,
		ProtocolErr: &cqlproto.ProtocolError{Msg: msg},
	})
	delete(p.states, cur.header.StreamID)
	p.cur = nil
}

func (p *Parser) clearFrame(cur *frameState) {
	delete(p.states, cur.header.StreamID)
	p.cur = nil
}

// tryDecompress buffers a compressed frame's full (still-compressed) body,
// decompresses it, and splices the logical bytes back to the front of the
// byte queue so every later step operates on plain decompressed bytes —
// including row-by-row iteration, since by the time compression is fully
// decoded the whole body was necessarily in memory anyway.
func (p *Parser) tryDecompress(cur *frameState) bool {
	need := cur.rawRemaining()
	if len(p.buf) < need {
		return false
	}
	comp, ok := p.compressors[p.compressAlg]
	if !ok {
		p.emitProtocolErrorAndClear(cur, fmt.Sprintf("compressed frame but no %q compressor configured", p.compressAlg))
		return true
	}
	raw := p.buf[:need]
	logical, err := comp.Decompress(raw)
	if err != nil {
		p.buf = p.buf[need:]
		p.emitProtocolErrorAndClear(cur, "decompress: "+err.Error())
		return true
	}
	rest := p.buf[need:]
	newBuf := make([]byte, 0, len(logical)+len(rest))
	newBuf = append(newBuf, logical...)
	newBuf = append(newBuf, rest...)
	p.buf = newBuf
	cur.header.Flags &^= cqlproto.FlagCompression
	cur.header.BodyLen = int32(len(logical))
	cur.rawConsumed = 0
	cur.decompressed = true
	return true
}

func (p *Parser) tryConsumeExtras(cur *frameState) bool {
	rem := cur.rawRemaining()
	avail := min(len(p.buf), rem)
	r := &cqlbin.Reader{Src: p.buf[:avail]}
	extras := cqlproto.DecodeResponseExtras(r, cur.header.Flags)
	if r.Err != nil {
		if avail < rem {
			return false
		}
		p.emitProtocolErrorAndClear(cur, "malformed response extras")
		return true
	}
	p.consume(avail - len(r.Src))
	cur.extras = extras
	cur.preludeConsumed = true
	return true
}

func (p *Parser) tryReadKind(cur *frameState) bool {
	rem := cur.rawRemaining()
	avail := min(len(p.buf), rem)
	if avail < 4 {
		if rem < 4 {
			p.emitProtocolErrorAndClear(cur, "RESULT body too short for kind")
			return true
		}
		return false
	}
	n, _, _ := cqlbin.PeekInt32(p.buf)
	p.consume(4)
	cur.kind = cqlproto.ResultKind(n)
	cur.kindKnown = true
	return true
}

func withExtras(it Item, ex cqlproto.ResponseExtras) Item {
	it.TraceID = ex.TraceID
	it.HasTraceID = ex.HasTraceID
	it.Warnings = ex.Warnings
	it.CustomPayload = ex.CustomPayload
	return it
}

func (p *Parser) bufferRestAndDispatchNonResult(cur *frameState) bool {
	rem := cur.rawRemaining()
	if len(p.buf) < rem {
		return false
	}
	body := append([]byte(nil), p.buf[:rem]...)
	p.consume(rem)
	sid := cur.header.StreamID
	r := &cqlbin.Reader{Src: body}
	var it Item
	switch cur.header.Opcode {
	case cqlproto.OpError:
		it = Item{StreamID: sid, Kind: ItemError, Error: cqlerr.Decode(r)}
	case cqlproto.OpReady:
		it = Item{StreamID: sid, Kind: ItemReady, Ready: true}
	case cqlproto.OpAuthenticate:
		ab := cqlproto.DecodeAuthenticate(r)
		it = Item{StreamID: sid, Kind: ItemMustAuthenticate, MustAuthenticate: true, AuthenticatorName: ab.AuthenticatorName}
	case cqlproto.OpSupported:
		it = Item{StreamID: sid, Kind: ItemSupported, Supported: cqlproto.DecodeSupported(r)}
	case cqlproto.OpAuthChallenge:
		it = Item{StreamID: sid, Kind: ItemAuthChallenge, AuthChallenge: cqlproto.DecodeAuthChallenge(r).Token}
	case cqlproto.OpAuthSuccess:
		it = Item{StreamID: sid, Kind: ItemAuthSuccess, AuthSuccess: cqlproto.DecodeAuthSuccess(r).Token}
	case cqlproto.OpEvent:
		it = Item{StreamID: sid, Kind: ItemEvent, Event: cqlproto.DecodeEvent(r)}
	default:
		p.emitProtocolErrorAndClear(cur, fmt.Sprintf("unexpected opcode %s", cur.header.Opcode))
		return true
	}
	p.push(withExtras(it, cur.extras))
	p.push(Item{StreamID: sid, Kind: ItemFrameEnded, FrameEnded: true})
	p.clearFrame(cur)
	return true
}

func (p *Parser) bufferRestAndDispatchResult(cur *frameState) bool {
	rem := cur.rawRemaining()
	if len(p.buf) < rem {
		return false
	}
	body := append([]byte(nil), p.buf[:rem]...)
	p.consume(rem)
	sid := cur.header.StreamID
	r := &cqlbin.Reader{Src: body}
	var it Item
	switch cur.kind {
	case cqlproto.ResultVoid:
		it = Item{StreamID: sid, Kind: ItemVoid}
	case cqlproto.ResultSetKeyspace:
		it = Item{StreamID: sid, Kind: ItemKeyspaceSet, KeyspaceSet: r.String()}
	case cqlproto.ResultSchemaChange:
		it = Item{StreamID: sid, Kind: ItemSchemaChange, SchemaChange: cqlproto.DecodeSchemaChange(r)}
	case cqlproto.ResultPrepared:
		it = Item{StreamID: sid, Kind: ItemPrepared, Prepared: cqlproto.DecodePrepared(r, p.version)}
	default:
		p.emitProtocolErrorAndClear(cur, fmt.Sprintf("unknown result kind %d", cur.kind))
		return true
	}
	p.push(withExtras(it, cur.extras))
	p.push(Item{StreamID: sid, Kind: ItemFrameEnded, FrameEnded: true})
	p.clearFrame(cur)
	return true
}

func decodeRowFromReader(r *cqlbin.Reader, meta cqlproto.RowsMetadata) Row {
	row := Row{
		Values: make([][]byte, 0, len(meta.Columns)),
		Null:   make([]bool, 0, len(meta.Columns)),
	}
	for range meta.Columns {
		v, ok := r.Bytes()
		row.Values = append(row.Values, v)
		row.Null = append(row.Null, !ok)
	}
	return row
}

func (p *Parser) bufferRestAndDispatchRows(cur *frameState) bool {
	rem := cur.rawRemaining()
	if len(p.buf) < rem {
		return false
	}
	body := append([]byte(nil), p.buf[:rem]...)
	p.consume(rem)
	sid := cur.header.StreamID
	r := &cqlbin.Reader{Src: body}
	meta := cqlproto.DecodeRowsMetadata(r, p.version, false)
	rowCount := r.Int()
	p.push(withExtras(Item{StreamID: sid, Kind: ItemRowsMetadata, RowsMeta: meta}, cur.extras))
	for i := int32(0); i < rowCount; i++ {
		p.push(Item{StreamID: sid, Kind: ItemRow, Row: decodeRowFromReader(r, meta)})
	}
	p.push(Item{StreamID: sid, Kind: ItemFrameEnded, FrameEnded: true})
	p.clearFrame(cur)
	return true
}

// streamRows is the row-by-row decode path (spec.md §4.2): it only ever
// holds one row's worth of cell data in memory at a time, plus whatever
// partial cell is currently spanning chunk boundaries.
func (p *Parser) streamRows(cur *frameState) bool {
	if !cur.metaDecoded {
		return p.tryDecodeRowsMeta(cur)
	}
	sid := cur.header.StreamID
	if cur.rowIndex >= cur.rowCount {
		p.push(Item{StreamID: sid, Kind: ItemFrameEnded, FrameEnded: true})
		p.clearFrame(cur)
		return true
	}
	if cur.missingBytes > 0 {
		return p.accumulateCell(cur)
	}
	return p.decodeNextCell(cur)
}

func (p *Parser) tryDecodeRowsMeta(cur *frameState) bool {
	rem := cur.rawRemaining()
	avail := min(len(p.buf), rem)
	r := &cqlbin.Reader{Src: p.buf[:avail]}
	meta := cqlproto.DecodeRowsMetadata(r, p.version, false)
	rowCount := r.Int()
	if r.Err != nil {
		if avail < rem {
			return false
		}
		p.emitProtocolErrorAndClear(cur, "malformed rows metadata")
		return true
	}
	p.consume(avail - len(r.Src))
	cur.meta = meta
	cur.rowCount = rowCount
	cur.metaDecoded = true
	p.push(withExtras(Item{StreamID: cur.header.StreamID, Kind: ItemRowsMetadata, RowsMeta: meta}, cur.extras))
	return true
}

func (p *Parser) accumulateCell(cur *frameState) bool {
	if len(p.buf) == 0 {
		return false
	}
	take := len(p.buf)
	if take > cur.missingBytes {
		take = cur.missingBytes
	}
	chunk := append([]byte(nil), p.buf[:take]...)
	cur.cellChunks = append(cur.cellChunks, chunk)
	cur.missingBytes -= take
	p.consume(take)
	if cur.missingBytes > 0 {
		return true
	}
	total := 0
	for _, c := range cur.cellChunks {
		total += len(c)
	}
	val := make([]byte, 0, total)
	for _, c := range cur.cellChunks {
		val = append(val, c...)
	}
	cur.cellChunks = nil
	cur.curRow.Values = append(cur.curRow.Values, val)
	cur.curRow.Null = append(cur.curRow.Null, false)
	cur.colIndex++
	p.maybeFinishRow(cur)
	return true
}

func (p *Parser) decodeNextCell(cur *frameState) bool {
	rem := cur.rawRemaining()
	avail := min(len(p.buf), rem)
	if avail < 4 {
		if rem < 4 {
			p.emitProtocolErrorAndClear(cur, "row data truncated mid-cell-length")
			return true
		}
		return false
	}
	n, _, _ := cqlbin.PeekInt32(p.buf[:avail])
	if n < 0 {
		p.consume(4)
		cur.curRow.Values = append(cur.curRow.Values, nil)
		cur.curRow.Null = append(cur.curRow.Null, true)
		cur.colIndex++
		p.maybeFinishRow(cur)
		return true
	}
	bodyAvail := avail - 4
	if bodyAvail >= int(n) {
		val := make([]byte, n)
		copy(val, p.buf[4:4+int(n)])
		p.consume(4 + int(n))
		cur.curRow.Values = append(cur.curRow.Values, val)
		cur.curRow.Null = append(cur.curRow.Null, false)
		cur.colIndex++
		p.maybeFinishRow(cur)
		return true
	}
	// Partial cell body: this is the one case that must not re-scan from
	// scratch on every chunk, since a single cell can be arbitrarily large.
	if bodyAvail > 0 {
		chunk := make([]byte, bodyAvail)
		copy(chunk, p.buf[4:4+bodyAvail])
		cur.cellChunks = append(cur.cellChunks, chunk)
	}
	cur.missingBytes = int(n) - bodyAvail
	p.consume(4 + bodyAvail)
	return true
}

func (p *Parser) maybeFinishRow(cur *frameState) {
	if cur.colIndex != int32(len(cur.meta.Columns)) {
		return
	}
	p.push(Item{StreamID: cur.header.StreamID, Kind: ItemRow, Row: cur.curRow})
	cur.rowIndex++
	cur.colIndex = 0
	cur.curRow = Row{}
}
