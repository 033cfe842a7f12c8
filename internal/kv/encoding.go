package kv

import "encoding/binary"

// PutUint8 appends a single byte to dst.
func PutUint8(dst []byte, v uint8) []byte {
	return append(dst, v)
}

// PutUint64BE appends a big-endian uint64 to dst (8 bytes).
func PutUint64BE(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// GetUint64BE reads a big-endian uint64 from b.
func GetUint64BE(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// EncodeCounter encodes a counter value.
func EncodeCounter(v uint64) []byte {
	return PutUint64BE(make([]byte, 0, 8), v)
}

// DecodeCounter decodes a counter value, reporting false for a value of the
// wrong length.
func DecodeCounter(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return GetUint64BE(b), true
}
