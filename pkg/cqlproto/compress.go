package cqlproto

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4"
	oldsnappy "github.com/golang/snappy"
)

// Compressor implements one frame-body compression algorithm negotiated
// through STARTUP's COMPRESSION option.
type Compressor interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// lz4Compressor frames the pierrec/lz4 block codec the way Cassandra's wire
// format expects: a 4-byte big-endian uncompressed length prefix followed
// by the compressed block, since lz4 block mode alone cannot recover the
// output size.
type lz4Compressor struct{}

func (lz4Compressor) Name() string { return "lz4" }

func (lz4Compressor) Compress(src []byte) ([]byte, error) {
	buf := make([]byte, 4+len(src)+len(src)/255+16)
	binary.BigEndian.PutUint32(buf[:4], uint32(len(src)))
	n, err := lz4.CompressBlock(src, buf[4:], nil)
	if err != nil {
		return nil, fmt.Errorf("cqlproto: lz4 compress: %w", err)
	}
	if n == 0 {
		// Incompressible input: pierrec/lz4 signals this by writing nothing;
		// store the block uncompressed after the length prefix. Decompress
		// recognizes it because the body length equals the declared size.
		return append(buf[:4], src...), nil
	}
	return buf[:4+n], nil
}

func (lz4Compressor) Decompress(src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, fmt.Errorf("cqlproto: lz4 frame too short")
	}
	size := binary.BigEndian.Uint32(src[:4])
	body := src[4:]
	if uint32(len(body)) == size {
		// Stored uncompressed, per the Compress fallback above.
		out := make([]byte, size)
		copy(out, body)
		return out, nil
	}
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(body, out)
	if err != nil {
		return nil, fmt.Errorf("cqlproto: lz4 decompress: %w", err)
	}
	return out[:n], nil
}

// snappyCompressor uses klauspost/compress/snappy, a drop-in for the
// canonical Snappy block format CQL's "snappy" algorithm name denotes.
type snappyCompressor struct{}

func (snappyCompressor) Name() string { return "snappy" }

func (snappyCompressor) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (snappyCompressor) Decompress(src []byte) ([]byte, error) {
	return snappy.Decode(nil, src)
}

// legacySnappyCompressor uses golang/snappy instead of klauspost's fork. It
// decodes the identical wire format; it exists so a peer (or a test) that
// only linked the original snappy package round-trips against this driver
// without either side needing to special-case which implementation wrote
// the bytes.
type legacySnappyCompressor struct{}

func (legacySnappyCompressor) Name() string { return "snappy" }

func (legacySnappyCompressor) Compress(src []byte) ([]byte, error) {
	return oldsnappy.Encode(nil, src), nil
}

func (legacySnappyCompressor) Decompress(src []byte) ([]byte, error) {
	return oldsnappy.Decode(nil, src)
}

// DefaultCompressors returns the registry offered in STARTUP's COMPRESSION
// option, keyed by algorithm name. "snappy" resolves to the klauspost
// implementation; LegacySnappy below is available for callers that need to
// interoperate with the older wire-compatible encoder specifically.
func DefaultCompressors() map[string]Compressor {
	return map[string]Compressor{
		"lz4":    lz4Compressor{},
		"snappy": snappyCompressor{},
	}
}

// LegacySnappy returns the golang/snappy-backed Compressor, for tests and
// callers that want to exercise interop against that implementation
// specifically rather than klauspost's.
func LegacySnappy() Compressor { return legacySnappyCompressor{} }
