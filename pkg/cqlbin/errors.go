package cqlbin

import "errors"

// ErrNotEnoughData is returned by a typed read on a sticky Reader when the
// remaining buffer is shorter than the value being decoded requires. It is
// recoverable: it means the Reader's Src did not contain a complete value,
// not that the wire format is malformed.
var ErrNotEnoughData = errors.New("cqlbin: not enough data to decode value")

// ErrStringTooLong is recorded by Reader.String when a [string]'s bytes are
// not valid UTF-8. No reader compares a length prefix with a maximum frame
// size; a prefix longer than the remaining buffer yields ErrNotEnoughData.
var ErrStringTooLong = errors.New("cqlbin: length prefix exceeds maximum frame size")

// NeedMoreDataError is returned by the non-sticky PeekInt32 and PeekCell and
// by the cqlproto header decoders. Unlike ErrNotEnoughData, it carries the
// exact shortfall. The cqlproto/stream parser does not read it: it tracks
// the bytes it is missing itself.
type NeedMoreDataError struct {
	// Missing is how many additional bytes, beyond what was available,
	// the read needed to complete.
	Missing int
}

func (e *NeedMoreDataError) Error() string {
	return "cqlbin: need more data"
}

// Is allows errors.Is(err, ErrNotEnoughData) to match a *NeedMoreDataError
// too, since both mean the same recoverable condition to a caller that only
// wants to distinguish "need more bytes" from "malformed wire data".
func (e *NeedMoreDataError) Is(target error) bool {
	return target == ErrNotEnoughData
}
