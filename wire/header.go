package wire

import "encoding/binary"

// ProtocolVersion is the only version this codec accepts.
const ProtocolVersion = 1

// MinHeaderSize is the smallest legal header: 1 (flags) + 2 (payload len) +
// 1 (shortest VarInt) + 4 (timestamp).
const MinHeaderSize = 8

// MaxHeaderSize is the largest legal header: 1 + 2 + 8 + 4.
const MaxHeaderSize = 15

// MaxPayloadLen is the largest payload a single packet may carry.
const MaxPayloadLen = int(^uint16(0))

// PacketType distinguishes data packets from control packets.
type PacketType uint8

const (
	PacketData    PacketType = 0
	PacketControl PacketType = 1
)

// Fragment is the 2-bit fragmentation tag carried on data packets. The wire
// header carries this tag but fragment reassembly itself is delegated to
// the media layer (see spec §9 design notes); the core never inspects it.
type Fragment uint8

const (
	FragmentComplete Fragment = 0b00
	FragmentStart    Fragment = 0b01
	FragmentMiddle   Fragment = 0b10
	FragmentEnd      Fragment = 0b11
)

func fragmentFromBits(b uint8) Fragment {
	return Fragment(b & 0b11)
}

// Header is the fixed-plus-VarInt header present on every packet.
type Header struct {
	Version     uint8
	Type        PacketType
	Fragment    Fragment
	IsKeyframe  bool
	IsConfig    bool
	PayloadLen  uint16
	Sequence    VarInt
	TimestampUs uint32
}

// NewDataHeader builds a Complete, non-keyframe data header.
func NewDataHeader(seq uint64, timestampUs uint32, payloadLen uint16) Header {
	return Header{
		Version:     ProtocolVersion,
		Type:        PacketData,
		Fragment:    FragmentComplete,
		PayloadLen:  payloadLen,
		Sequence:    VarInt(seq),
		TimestampUs: timestampUs,
	}
}

// NewControlHeader builds a Complete control header.
func NewControlHeader(seq uint64, timestampUs uint32, payloadLen uint16) Header {
	h := NewDataHeader(seq, timestampUs, payloadLen)
	h.Type = PacketControl
	return h
}

// WithKeyframe marks h as carrying a keyframe.
func (h Header) WithKeyframe() Header { h.IsKeyframe = true; return h }

// WithConfig marks h as carrying codec configuration (SPS/PPS/VPS).
func (h Header) WithConfig() Header { h.IsConfig = true; return h }

// WithFragment sets the fragmentation tag.
func (h Header) WithFragment(f Fragment) Header { h.Fragment = f; return h }

// EncodedLen returns the total encoded size of h.
func (h Header) EncodedLen() int {
	return 1 + 2 + h.Sequence.EncodedLen() + 4
}

// Encode appends the encoded header to buf.
//
// Flags byte layout: VV T FF K C R _ (version, type, fragment, keyframe,
// config, reserved, reserved).
func (h Header) Encode(buf []byte) []byte {
	flags := (h.Version&0x03)<<6 |
		uint8(h.Type)<<5 |
		uint8(h.Fragment)<<3 |
		boolBit(h.IsKeyframe)<<2 |
		boolBit(h.IsConfig)<<1
	buf = append(buf, flags)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], h.PayloadLen)
	buf = append(buf, lenBuf[:]...)
	buf = h.Sequence.Encode(buf)
	var tsBuf [4]byte
	binary.BigEndian.PutUint32(tsBuf[:], h.TimestampUs)
	buf = append(buf, tsBuf[:]...)
	return buf
}

func boolBit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// DecodeHeader decodes a header from the front of buf. ok is false on a
// short buffer, a version mismatch, or a malformed VarInt; no partial
// mutation occurs on failure since Header is returned by value.
func DecodeHeader(buf []byte) (h Header, n int, ok bool) {
	if len(buf) < MinHeaderSize {
		return Header{}, 0, false
	}
	flags := buf[0]
	version := (flags >> 6) & 0x03
	if version != ProtocolVersion {
		return Header{}, 0, false
	}
	pt := PacketData
	if (flags>>5)&1 == 1 {
		pt = PacketControl
	}
	frag := fragmentFromBits(flags >> 3)
	isKeyframe := (flags>>2)&1 == 1
	isConfig := (flags>>1)&1 == 1

	payloadLen := binary.BigEndian.Uint16(buf[1:3])

	seq, seqLen, ok := DecodeVarInt(buf[3:])
	if !ok {
		return Header{}, 0, false
	}
	off := 3 + seqLen
	if len(buf) < off+4 {
		return Header{}, 0, false
	}
	ts := binary.BigEndian.Uint32(buf[off : off+4])
	off += 4

	return Header{
		Version:     version,
		Type:        pt,
		Fragment:    frag,
		IsKeyframe:  isKeyframe,
		IsConfig:    isConfig,
		PayloadLen:  payloadLen,
		Sequence:    seq,
		TimestampUs: ts,
	}, off, true
}
