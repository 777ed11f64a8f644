package wire

// Packet is a fully framed packet: header plus opaque payload. Ownership
// transfers encoder -> scheduler -> link socket without copying beyond
// what Encode itself performs.
type Packet struct {
	Header  Header
	Payload []byte
}

// NewDataPacket builds a Complete, non-keyframe data packet.
func NewDataPacket(seq uint64, timestampUs uint32, payload []byte) Packet {
	return Packet{
		Header:  NewDataHeader(seq, timestampUs, uint16(len(payload))),
		Payload: payload,
	}
}

// Encode serializes the header and payload into a single buffer.
func (p Packet) Encode() []byte {
	buf := make([]byte, 0, p.Header.EncodedLen()+len(p.Payload))
	buf = p.Header.Encode(buf)
	return append(buf, p.Payload...)
}

// DecodePacket decodes a complete packet (header + payload) from buf. ok is
// false on any truncation or malformed header; no partial mutation occurs.
func DecodePacket(buf []byte) (Packet, bool) {
	h, n, ok := DecodeHeader(buf)
	if !ok {
		return Packet{}, false
	}
	rest := buf[n:]
	if len(rest) < int(h.PayloadLen) {
		return Packet{}, false
	}
	return Packet{Header: h, Payload: rest[:h.PayloadLen]}, true
}
