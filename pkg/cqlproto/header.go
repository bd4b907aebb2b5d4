// Package cqlproto implements the CQL binary protocol's frame header,
// opcode table, flags, result-set metadata, and the recursive column-type
// descriptor, on top of the primitive readers/writers in cqlbin. It plays
// the role franz-go's kmsg package plays for Kafka: the typed message
// model that the connection and execution layers build requests from and
// decode responses into.
package cqlproto

import (
	"fmt"

	"github.com/twmb/cql-go/pkg/cqlbin"
)

// Version is a CQL protocol version (1-5).
type Version uint8

const (
	Version1 Version = 1
	Version2 Version = 2
	Version3 Version = 3
	Version4 Version = 4
	Version5 Version = 5
)

// directionBit is the high bit of the version byte: set on responses.
const directionBit = 0x80

// RawVersion returns the byte written on the wire for a request (direction
// bit clear) of this version.
func (v Version) RawVersion() byte { return byte(v) }

// HeaderLen returns the fixed header size for this protocol version: 8
// bytes for v1/v2 (1-byte stream id), 9 bytes for v3+ (2-byte stream id).
func (v Version) HeaderLen() int {
	if v <= Version2 {
		return 8
	}
	return 9
}

// MaxStreamID returns the stream-id range cap for this version (spec.md
// §3): 128 for v1/v2, 32768 for v3+.
func (v Version) MaxStreamID() int {
	if v <= Version2 {
		return 128
	}
	return 32768
}

// Flags is the CQL frame flags byte (§6).
type Flags uint8

const (
	FlagCompression  Flags = 0x01
	FlagTracing      Flags = 0x02
	FlagCustomPayload Flags = 0x04 // v4+
	FlagWarning      Flags = 0x08 // v4+
	FlagUseBeta      Flags = 0x10 // v5+
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Opcode identifies a request or response kind (§6).
type Opcode byte

const (
	OpError         Opcode = 0x00
	OpStartup       Opcode = 0x01
	OpReady         Opcode = 0x02
	OpAuthenticate  Opcode = 0x03
	OpOptions       Opcode = 0x05
	OpSupported     Opcode = 0x06
	OpQuery         Opcode = 0x07
	OpResult        Opcode = 0x08
	OpPrepare       Opcode = 0x09
	OpExecute       Opcode = 0x0A
	OpRegister      Opcode = 0x0B
	OpEvent         Opcode = 0x0C
	OpBatch         Opcode = 0x0D
	OpAuthChallenge Opcode = 0x0E
	OpAuthResponse  Opcode = 0x0F
	OpAuthSuccess   Opcode = 0x10
)

func (o Opcode) String() string {
	switch o {
	case OpError:
		return "ERROR"
	case OpStartup:
		return "STARTUP"
	case OpReady:
		return "READY"
	case OpAuthenticate:
		return "AUTHENTICATE"
	case OpOptions:
		return "OPTIONS"
	case OpSupported:
		return "SUPPORTED"
	case OpQuery:
		return "QUERY"
	case OpResult:
		return "RESULT"
	case OpPrepare:
		return "PREPARE"
	case OpExecute:
		return "EXECUTE"
	case OpRegister:
		return "REGISTER"
	case OpEvent:
		return "EVENT"
	case OpBatch:
		return "BATCH"
	case OpAuthChallenge:
		return "AUTH_CHALLENGE"
	case OpAuthResponse:
		return "AUTH_RESPONSE"
	case OpAuthSuccess:
		return "AUTH_SUCCESS"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(o))
	}
}

// EventStreamID is the sentinel stream id servers use for unsolicited EVENT
// frames, per spec.md invariant 3.
const EventStreamID int16 = -1

// Header is a decoded frame header (spec.md §3).
type Header struct {
	Version   Version
	Response  bool // high bit of the version byte
	Flags     Flags
	StreamID  int16
	Opcode    Opcode
	BodyLen   int32
}

// ProtocolError signals a malformed header/opcode/flag combination; fatal
// for the Connection that produced it (spec.md §4.1).
type ProtocolError struct{ Msg string }

func (e *ProtocolError) Error() string { return "cqlproto: protocol error: " + e.Msg }

// PeekVersion inspects the first byte of buf to determine which header
// width to expect, without consuming anything. Returns an error if buf is
// empty.
func PeekVersion(buf []byte) (Version, error) {
	if len(buf) < 1 {
		return 0, &cqlbin.NeedMoreDataError{Missing: 1}
	}
	return Version(buf[0] &^ directionBit), nil
}

// DecodeHeader decodes a Header from buf, which must hold at least
// v.HeaderLen() bytes (use PeekVersion + a length check before calling).
func DecodeHeader(buf []byte) (Header, error) {
	v, err := PeekVersion(buf)
	if err != nil {
		return Header{}, err
	}
	need := v.HeaderLen()
	if len(buf) < need {
		return Header{}, &cqlbin.NeedMoreDataError{Missing: need - len(buf)}
	}
	r := &cqlbin.Reader{Src: append([]byte(nil), buf[:need]...)}
	versionByte := r.Byte()
	h := Header{
		Version:  Version(versionByte &^ directionBit),
		Response: versionByte&directionBit != 0,
		Flags:    Flags(r.Byte()),
	}
	if h.Version <= Version2 {
		h.StreamID = int16(int8(r.Byte()))
	} else {
		h.StreamID = r.SignedShort()
	}
	h.Opcode = Opcode(r.Byte())
	h.BodyLen = r.Int()
	if err := r.Complete(); err != nil {
		return Header{}, err
	}
	if h.BodyLen < 0 {
		return Header{}, &ProtocolError{Msg: "negative body length"}
	}
	return h, nil
}

// AppendHeader serializes a Header (used for requests, where Response must
// be false).
func AppendHeader(dst []byte, h Header) []byte {
	v := h.Version.RawVersion()
	if h.Response {
		v |= directionBit
	}
	dst = append(dst, v, byte(h.Flags))
	if h.Version <= Version2 {
		dst = append(dst, byte(int8(h.StreamID)))
	} else {
		dst = cqlbin.AppendSignedShort(dst, h.StreamID)
	}
	dst = append(dst, byte(h.Opcode))
	dst = cqlbin.AppendInt(dst, h.BodyLen)
	return dst
}
