package cqlproto

import "testing"

func TestHeaderRoundTripV2(t *testing.T) {
	h := Header{Version: Version2, Flags: FlagCompression, StreamID: 42, Opcode: OpQuery, BodyLen: 17}
	buf := AppendHeader(nil, h)
	if len(buf) != 8 {
		t.Fatalf("v2 header length = %d, want 8", len(buf))
	}
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestHeaderRoundTripV4NegativeStreamID(t *testing.T) {
	h := Header{Version: Version4, Flags: FlagTracing | FlagWarning, StreamID: -1, Opcode: OpEvent, BodyLen: 0, Response: true}
	buf := AppendHeader(nil, h)
	if len(buf) != 9 {
		t.Fatalf("v4 header length = %d, want 9", len(buf))
	}
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestDecodeHeaderPartial(t *testing.T) {
	h := Header{Version: Version4, StreamID: 5, Opcode: OpResult, BodyLen: 3}
	buf := AppendHeader(nil, h)
	for i := 0; i < len(buf); i++ {
		if _, err := DecodeHeader(buf[:i]); err == nil {
			t.Fatalf("DecodeHeader(%d bytes) should fail to decode a partial header", i)
		}
	}
}

func TestMaxStreamIDByVersion(t *testing.T) {
	if Version1.MaxStreamID() != 128 {
		t.Fatalf("v1 MaxStreamID = %d, want 128", Version1.MaxStreamID())
	}
	if Version4.MaxStreamID() != 32768 {
		t.Fatalf("v4 MaxStreamID = %d, want 32768", Version4.MaxStreamID())
	}
}
