package cqlbin

import "encoding/binary"

// The functions below form the non-sticky counterpart to Reader; the
// row-by-row streaming decoder (cqlproto/stream) reads cell lengths with
// PeekInt32. Each takes a []byte that may be a prefix of a larger value
// still arriving over the wire and reports exactly how many more bytes it
// would need via *NeedMoreDataError; the stream parser ignores that value
// and tracks its missing bytes itself.

// PeekInt32 reads a 4-byte big-endian signed int from the head of buf
// without requiring any more than those 4 bytes be present.
func PeekInt32(buf []byte) (int32, int, error) {
	if len(buf) < 4 {
		return 0, 0, &NeedMoreDataError{Missing: 4 - len(buf)}
	}
	return int32(binary.BigEndian.Uint32(buf)), 4, nil
}

// PeekCell reads one [bytes] cell (the [int] length prefix plus that many
// bytes) from the head of buf. It returns the consumed byte count on
// success. On underflow of the length prefix itself, Missing is relative to
// the 4-byte length field; on underflow of the body, Missing is the exact
// number of additional body bytes still needed. A length of -1 denotes a
// null cell and is returned with ok=false and no body consumed.
func PeekCell(buf []byte) (val []byte, ok bool, consumed int, err error) {
	n, lenConsumed, err := PeekInt32(buf)
	if err != nil {
		return nil, false, 0, err
	}
	if n < 0 {
		return nil, false, lenConsumed, nil
	}
	total := lenConsumed + int(n)
	if len(buf) < total {
		return nil, false, 0, &NeedMoreDataError{Missing: total - len(buf)}
	}
	out := make([]byte, n)
	copy(out, buf[lenConsumed:total])
	return out, true, total, nil
}
