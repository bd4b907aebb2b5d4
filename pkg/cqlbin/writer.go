package cqlbin

import "encoding/binary"

// AppendByte appends a [byte].
func AppendByte(dst []byte, v byte) []byte { return append(dst, v) }

// AppendShort appends an unsigned [short].
func AppendShort(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

// AppendSignedShort appends a [short] from a signed value.
func AppendSignedShort(dst []byte, v int16) []byte {
	return AppendShort(dst, uint16(v))
}

// AppendInt appends a signed [int].
func AppendInt(dst []byte, v int32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return append(dst, b[:]...)
}

// AppendLong appends a signed [long].
func AppendLong(dst []byte, v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return append(dst, b[:]...)
}

// AppendString appends a [string]: [short] length + UTF-8 bytes.
func AppendString(dst []byte, s string) []byte {
	dst = AppendShort(dst, uint16(len(s)))
	return append(dst, s...)
}

// AppendLongString appends a [long string]: [int] length + UTF-8 bytes.
func AppendLongString(dst []byte, s string) []byte {
	dst = AppendInt(dst, int32(len(s)))
	return append(dst, s...)
}

// AppendBytes appends a [bytes]; a nil slice with ok=false writes length -1.
func AppendBytes(dst []byte, v []byte, ok bool) []byte {
	if !ok || v == nil {
		return AppendInt(dst, -1)
	}
	dst = AppendInt(dst, int32(len(v)))
	return append(dst, v...)
}

// AppendShortBytes appends a [short bytes].
func AppendShortBytes(dst []byte, v []byte) []byte {
	dst = AppendShort(dst, uint16(len(v)))
	return append(dst, v...)
}

// AppendStringList appends a [string list].
func AppendStringList(dst []byte, vs []string) []byte {
	dst = AppendShort(dst, uint16(len(vs)))
	for _, v := range vs {
		dst = AppendString(dst, v)
	}
	return dst
}

// AppendStringMap appends a [string map].
func AppendStringMap(dst []byte, m map[string]string) []byte {
	dst = AppendShort(dst, uint16(len(m)))
	for k, v := range m {
		dst = AppendString(dst, k)
		dst = AppendString(dst, v)
	}
	return dst
}

// AppendBytesMap appends a [bytes map].
func AppendBytesMap(dst []byte, m map[string][]byte) []byte {
	dst = AppendShort(dst, uint16(len(m)))
	for k, v := range m {
		dst = AppendString(dst, k)
		dst = AppendBytes(dst, v, true)
	}
	return dst
}

// AppendInet appends an [inet]: [byte] addr-len + addr + [int] port. The
// caller must pass a 4- or 16-byte addr.
func AppendInet(dst []byte, addr []byte, port int32) []byte {
	dst = append(dst, byte(len(addr)))
	dst = append(dst, addr...)
	return AppendInt(dst, port)
}

// AppendUUID appends a [uuid]: 16 raw bytes.
func AppendUUID(dst []byte, u [16]byte) []byte {
	return append(dst, u[:]...)
}
