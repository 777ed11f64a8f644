// Package wire implements the bonded transport's on-wire packet format:
// variable-length headers, a QUIC-style VarInt sequence number, and the
// tagged control sub-protocol carried inside control packets.
package wire

import "encoding/binary"

// VarInt is a 62-bit variable-length integer encoded in 1, 2, 4, or 8 bytes,
// using the same 2-bit length-prefix layout as QUIC (RFC 9000 §16).
type VarInt uint64

// MaxVarInt is the largest value a VarInt can represent: 2^62 - 1.
const MaxVarInt = (uint64(1) << 62) - 1

// EncodedLen returns the number of bytes v encodes to.
func (v VarInt) EncodedLen() int {
	switch {
	case uint64(v) < 0x40:
		return 1
	case uint64(v) < 0x4000:
		return 2
	case uint64(v) < 0x4000_0000:
		return 4
	default:
		return 8
	}
}

// Encode appends the encoded form of v to buf and returns the result.
// The caller must ensure v <= MaxVarInt: Encode does not validate, and a
// larger value loses its top two bits to the length prefix. NewVarInt
// validates the range.
func (v VarInt) Encode(buf []byte) []byte {
	switch n := v.EncodedLen(); n {
	case 1:
		return append(buf, byte(v))
	case 2:
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], 0x4000|uint16(v))
		return append(buf, tmp[:]...)
	case 4:
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], 0x8000_0000|uint32(v))
		return append(buf, tmp[:]...)
	default:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], 0xC000_0000_0000_0000|uint64(v))
		return append(buf, tmp[:]...)
	}
}

// DecodeVarInt decodes a VarInt from the front of buf, returning the value
// and the number of bytes consumed. ok is false if buf is too short.
func DecodeVarInt(buf []byte) (v VarInt, n int, ok bool) {
	if len(buf) == 0 {
		return 0, 0, false
	}
	prefix := buf[0] >> 6
	n = 1 << prefix
	if len(buf) < n {
		return 0, 0, false
	}
	switch n {
	case 1:
		return VarInt(buf[0] & 0x3F), 1, true
	case 2:
		raw := binary.BigEndian.Uint16(buf)
		return VarInt(raw & 0x3FFF), 2, true
	case 4:
		raw := binary.BigEndian.Uint32(buf)
		return VarInt(raw & 0x3FFF_FFFF), 4, true
	default:
		raw := binary.BigEndian.Uint64(buf)
		return VarInt(raw & 0x3FFF_FFFF_FFFF_FFFF), 8, true
	}
}

// NewVarInt validates val fits in 62 bits before constructing a VarInt.
func NewVarInt(val uint64) (VarInt, bool) {
	if val > MaxVarInt {
		return 0, false
	}
	return VarInt(val), true
}
