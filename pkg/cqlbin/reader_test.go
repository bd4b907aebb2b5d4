package cqlbin

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReaderPrimitivesRoundTrip(t *testing.T) {
	var buf []byte
	buf = AppendByte(buf, 7)
	buf = AppendShort(buf, 4242)
	buf = AppendInt(buf, -12345)
	buf = AppendLong(buf, 1<<40)
	buf = AppendString(buf, "hello")
	buf = AppendLongString(buf, "long hello")
	buf = AppendBytes(buf, []byte("blob"), true)
	buf = AppendBytes(buf, nil, false)
	buf = AppendShortBytes(buf, []byte("sb"))
	buf = AppendStringList(buf, []string{"a", "b", "c"})
	buf = AppendStringMap(buf, map[string]string{"k": "v"})
	buf = AppendInet(buf, []byte{127, 0, 0, 1}, 9042)
	var u [16]byte
	for i := range u {
		u[i] = byte(i)
	}
	buf = AppendUUID(buf, u)

	r := &Reader{Src: buf}
	if got := r.Byte(); got != 7 {
		t.Fatalf("Byte() = %d, want 7", got)
	}
	if got := r.Short(); got != 4242 {
		t.Fatalf("Short() = %d, want 4242", got)
	}
	if got := r.Int(); got != -12345 {
		t.Fatalf("Int() = %d, want -12345", got)
	}
	if got := r.Long(); got != 1<<40 {
		t.Fatalf("Long() = %d, want %d", got, int64(1)<<40)
	}
	if got := r.String(); got != "hello" {
		t.Fatalf("String() = %q, want hello", got)
	}
	if got := r.LongString(); got != "long hello" {
		t.Fatalf("LongString() = %q, want %q", got, "long hello")
	}
	if got, ok := r.Bytes(); !ok || string(got) != "blob" {
		t.Fatalf("Bytes() = %q, %v, want blob, true", got, ok)
	}
	if got, ok := r.Bytes(); ok || got != nil {
		t.Fatalf("null Bytes() = %q, %v, want nil, false", got, ok)
	}
	if got := r.ShortBytes(); string(got) != "sb" {
		t.Fatalf("ShortBytes() = %q, want sb", got)
	}
	if got := r.StringList(); !cmp.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("StringList() = %v", got)
	}
	if got := r.StringMap(); !cmp.Equal(got, map[string]string{"k": "v"}) {
		t.Fatalf("StringMap() = %v", got)
	}
	addr, port := r.Inet()
	if !cmp.Equal(addr, []byte{127, 0, 0, 1}) || port != 9042 {
		t.Fatalf("Inet() = %v, %d", addr, port)
	}
	if got := r.UUID(); got != u {
		t.Fatalf("UUID() = %v, want %v", got, u)
	}
	if err := r.Complete(); err != nil {
		t.Fatalf("Complete() = %v, want nil", err)
	}
}

func TestReaderStickyErrorShortCircuits(t *testing.T) {
	r := &Reader{Src: []byte{0, 1}} // too short for a Long
	_ = r.Long()
	if r.Err == nil {
		t.Fatalf("expected sticky error after underflow")
	}
	// Further reads must not panic and must keep returning zero values.
	if got := r.Int(); got != 0 {
		t.Fatalf("Int() after error = %d, want 0", got)
	}
	if err := r.Complete(); err == nil {
		t.Fatalf("Complete() should surface the sticky error")
	}
}

func TestReaderRejectsTrailingBytes(t *testing.T) {
	r := &Reader{Src: []byte{1, 2, 3}}
	_ = r.Byte()
	if err := r.Complete(); err == nil {
		t.Fatalf("Complete() should reject unconsumed trailing bytes")
	}
}

func TestPeekCellUnderflow(t *testing.T) {
	// Length prefix alone, incomplete.
	if _, _, _, err := PeekCell([]byte{0, 0}); err == nil {
		t.Fatalf("expected underflow error on truncated length prefix")
	}
	// Full length prefix, short body.
	var buf []byte
	buf = AppendInt(buf, 10)
	buf = append(buf, []byte("abc")...)
	_, _, _, err := PeekCell(buf)
	var nmd *NeedMoreDataError
	if err == nil {
		t.Fatalf("expected underflow error on short cell body")
	}
	if !asNeedMoreData(err, &nmd) {
		t.Fatalf("expected *NeedMoreDataError, got %T", err)
	}
	if nmd.Missing != 7 {
		t.Fatalf("Missing = %d, want 7", nmd.Missing)
	}
}

func TestPeekCellNull(t *testing.T) {
	var buf []byte
	buf = AppendInt(buf, -1)
	val, ok, consumed, err := PeekCell(buf)
	if err != nil || ok || val != nil || consumed != 4 {
		t.Fatalf("PeekCell(null) = %v, %v, %d, %v", val, ok, consumed, err)
	}
}

func asNeedMoreData(err error, target **NeedMoreDataError) bool {
	if nmd, ok := err.(*NeedMoreDataError); ok {
		*target = nmd
		return true
	}
	return false
}
