package cqlproto

import (
	"bytes"
	"strings"
	"testing"
)

func TestLZ4RoundTrip(t *testing.T) {
	c := lz4Compressor{}
	src := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 50))
	compressed, err := c.Compress(src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	got, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(src))
	}
}

func TestLZ4RoundTripIncompressible(t *testing.T) {
	c := lz4Compressor{}
	src := []byte{1, 2, 3} // too short to compress meaningfully
	compressed, err := c.Compress(src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	got, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("round trip mismatch: got %v, want %v", got, src)
	}
}

func TestSnappyRoundTrip(t *testing.T) {
	c := snappyCompressor{}
	src := []byte(strings.Repeat("cassandra query language ", 100))
	compressed, err := c.Compress(src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	got, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("round trip mismatch")
	}
}

func TestSnappyInteropBetweenImplementations(t *testing.T) {
	src := []byte(strings.Repeat("interop ", 40))
	compressed, err := legacySnappyCompressor{}.Compress(src)
	if err != nil {
		t.Fatalf("legacy Compress: %v", err)
	}
	got, err := snappyCompressor{}.Decompress(compressed)
	if err != nil {
		t.Fatalf("klauspost Decompress of legacy-compressed bytes: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("cross-implementation round trip mismatch")
	}
}
