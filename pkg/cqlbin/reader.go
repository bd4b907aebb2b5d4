// Package cqlbin implements the CQL binary protocol's primitive wire types:
// fixed-width integers, length-prefixed strings and byte blobs, collections
// of those, and the recursive [option] type descriptor. It mirrors the
// sticky-error Reader/Writer split used by franz-go's kbin package: a
// Reader accumulates the first error it hits and every later read becomes a
// no-op, so a decoder can fire off a dozen reads and check Complete once at
// the end instead of threading an error return through every call.
package cqlbin

import (
	"encoding/binary"
	"unicode/utf8"
)

// Reader reads CQL primitives from Src, advancing Src as it goes. Once a
// read fails, Err is set and every subsequent read returns the zero value
// without consuming bytes. This is the "buffered mode" reader: it is meant
// to be handed a single frame body (or a sub-slice of one) already fully in
// memory, not a byte stream arriving in pieces.
type Reader struct {
	Src []byte
	Err error
}

func (r *Reader) bad(err error) {
	if r.Err == nil {
		r.Err = err
	}
}

// Complete returns the first error encountered, or an error if unconsumed
// trailing bytes remain, enforcing that decoders consume exactly what the
// length prefix promised.
func (r *Reader) Complete() error {
	if r.Err != nil {
		return r.Err
	}
	if len(r.Src) > 0 {
		return ErrNotEnoughData // semantically "too much", reusing the sentinel: a caller-visible bug either way
	}
	return nil
}

func (r *Reader) take(n int) []byte {
	if r.Err != nil || n < 0 || len(r.Src) < n {
		if r.Err == nil {
			r.bad(ErrNotEnoughData)
		}
		return nil
	}
	b := r.Src[:n]
	r.Src = r.Src[n:]
	return b
}

// Byte reads a single [byte].
func (r *Reader) Byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Short reads an unsigned [short] (2 bytes, big-endian).
func (r *Reader) Short() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

// SignedShort reads a [short] interpreted as signed; used for stream ids in
// protocol v3+ where negative ids denote server-initiated events.
func (r *Reader) SignedShort() int16 {
	return int16(r.Short())
}

// Int reads a signed [int] (4 bytes, big-endian).
func (r *Reader) Int() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

// Long reads a signed [long] (8 bytes, big-endian).
func (r *Reader) Long() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

// String reads a [string]: [short] length + UTF-8 bytes.
func (r *Reader) String() string {
	n := r.Short()
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.bad(ErrStringTooLong)
		return ""
	}
	return string(b)
}

// LongString reads a [long string]: [int] length + UTF-8 bytes.
func (r *Reader) LongString() string {
	n := r.Int()
	if n < 0 {
		r.bad(ErrNotEnoughData)
		return ""
	}
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}

// Bytes reads a [bytes]: [int] length + raw bytes; a negative length means
// null, reported by the returned bool.
func (r *Reader) Bytes() ([]byte, bool) {
	n := r.Int()
	if r.Err != nil {
		return nil, false
	}
	if n < 0 {
		return nil, false
	}
	b := r.take(int(n))
	if b == nil {
		return nil, false
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, true
}

// ShortBytes reads a [short bytes]: [short] length + raw bytes.
func (r *Reader) ShortBytes() []byte {
	n := r.Short()
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// StringList reads a [string list]: [short] n + n*[string].
func (r *Reader) StringList() []string {
	n := r.Short()
	if r.Err != nil {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		out = append(out, r.String())
	}
	return out
}

// StringMap reads a [string map]: [short] n + n*([string] key, [string] val).
func (r *Reader) StringMap() map[string]string {
	n := r.Short()
	if r.Err != nil {
		return nil
	}
	out := make(map[string]string, n)
	for i := 0; i < int(n); i++ {
		k := r.String()
		v := r.String()
		out[k] = v
	}
	return out
}

// StringMultiMap reads a [string multimap]: [short] n + n*([string] key, [string list] val).
func (r *Reader) StringMultiMap() map[string][]string {
	n := r.Short()
	if r.Err != nil {
		return nil
	}
	out := make(map[string][]string, n)
	for i := 0; i < int(n); i++ {
		k := r.String()
		v := r.StringList()
		out[k] = v
	}
	return out
}

// BytesMap reads a [bytes map]: [short] n + n*([string] key, [bytes] val).
func (r *Reader) BytesMap() map[string][]byte {
	n := r.Short()
	if r.Err != nil {
		return nil
	}
	out := make(map[string][]byte, n)
	for i := 0; i < int(n); i++ {
		k := r.String()
		v, _ := r.Bytes()
		out[k] = v
	}
	return out
}

// Inet reads an [inet]: [byte] addr-len (4 or 16) + addr bytes + [int] port.
func (r *Reader) Inet() (addr []byte, port int32) {
	n := r.Byte()
	if r.Err != nil {
		return nil, 0
	}
	if n != 4 && n != 16 {
		r.bad(ErrNotEnoughData)
		return nil, 0
	}
	b := r.take(int(n))
	if b == nil {
		return nil, 0
	}
	addr = append([]byte(nil), b...)
	port = r.Int()
	return addr, port
}

// UUID reads a [uuid]: 16 raw bytes.
func (r *Reader) UUID() [16]byte {
	var out [16]byte
	b := r.take(16)
	if b == nil {
		return out
	}
	copy(out[:], b)
	return out
}

// Remaining exposes the unconsumed tail, used by callers that switch from
// sticky decoding to a length-prefixed sub-region (e.g. carving exactly
// body_length bytes for a frame before decoding it).
func (r *Reader) Remaining() []byte { return r.Src }
