package wire

import "testing"

func TestVarIntRoundtripBoundaries(t *testing.T) {
	values := []uint64{
		0, 1, 0x3F, 0x40, 0x3FFF, 0x4000, 0x3FFF_FFFF, 0x4000_0000, MaxVarInt,
	}
	for _, val := range values {
		vi, ok := NewVarInt(val)
		if !ok {
			t.Fatalf("NewVarInt(%d) rejected a valid value", val)
		}
		buf := vi.Encode(nil)
		if len(buf) != vi.EncodedLen() {
			t.Fatalf("encoded len mismatch for %d: got %d want %d", val, len(buf), vi.EncodedLen())
		}
		decoded, n, ok := DecodeVarInt(buf)
		if !ok || n != len(buf) {
			t.Fatalf("decode failed for %d", val)
		}
		if uint64(decoded) != val {
			t.Fatalf("roundtrip failed for %d: got %d", val, decoded)
		}
	}
}

func TestVarIntEncodedLengths(t *testing.T) {
	cases := []struct {
		val  uint64
		want int
	}{
		{0, 1}, {63, 1}, {64, 2}, {16383, 2},
		{16384, 4}, {0x3FFF_FFFF, 4}, {0x4000_0000, 8},
	}
	for _, c := range cases {
		if got := VarInt(c.val).EncodedLen(); got != c.want {
			t.Errorf("EncodedLen(%d) = %d, want %d", c.val, got, c.want)
		}
	}
}

func TestVarIntOutOfRange(t *testing.T) {
	if _, ok := NewVarInt(MaxVarInt + 1); ok {
		t.Fatal("expected MaxVarInt+1 to be rejected")
	}
}

func TestHeaderRoundtripData(t *testing.T) {
	h := NewDataHeader(42, 1_000_000, 1400).WithKeyframe().WithFragment(FragmentStart)
	buf := h.Encode(nil)
	decoded, n, ok := DecodeHeader(buf)
	if !ok || n != len(buf) {
		t.Fatalf("decode failed")
	}
	if decoded.Version != ProtocolVersion || decoded.Type != PacketData ||
		decoded.Fragment != FragmentStart || !decoded.IsKeyframe || decoded.IsConfig ||
		decoded.PayloadLen != 1400 || decoded.Sequence != 42 || decoded.TimestampUs != 1_000_000 {
		t.Fatalf("roundtrip mismatch: %+v", decoded)
	}
}

func TestHeaderRoundtripControl(t *testing.T) {
	h := NewControlHeader(999_999, 5_000_000, 64)
	buf := h.Encode(nil)
	decoded, _, ok := DecodeHeader(buf)
	if !ok || decoded.Type != PacketControl || decoded.Sequence != 999_999 {
		t.Fatalf("roundtrip mismatch: %+v", decoded)
	}
}

func TestHeaderDecodeShortBuffer(t *testing.T) {
	h := NewDataHeader(1, 1, 10)
	buf := h.Encode(nil)
	for i := 0; i < len(buf); i++ {
		if _, _, ok := DecodeHeader(buf[:i]); ok {
			t.Fatalf("expected decode to fail for truncated buffer of length %d", i)
		}
	}
}

func TestHeaderDecodeWrongVersion(t *testing.T) {
	h := NewDataHeader(1, 1, 10)
	buf := h.Encode(nil)
	buf[0] = (2 << 6) | (buf[0] & 0x3F) // bump version to 2
	if _, _, ok := DecodeHeader(buf); ok {
		t.Fatal("expected version mismatch to be rejected")
	}
}

func TestFullPacketRoundtrip(t *testing.T) {
	payload := []byte("hello bonded transport")
	pkt := NewDataPacket(100, 42_000, payload)
	encoded := pkt.Encode()
	decoded, ok := DecodePacket(encoded)
	if !ok {
		t.Fatal("decode failed")
	}
	if decoded.Header.Sequence != 100 || string(decoded.Payload) != string(payload) {
		t.Fatalf("roundtrip mismatch: %+v", decoded)
	}
}

func TestPacketDecodeTruncatedPayload(t *testing.T) {
	pkt := NewDataPacket(1, 1, []byte("0123456789"))
	encoded := pkt.Encode()
	if _, ok := DecodePacket(encoded[:len(encoded)-3]); ok {
		t.Fatal("expected truncated payload to fail decode")
	}
}

func TestAckRoundtripAndSack(t *testing.T) {
	ack := Ack{CumulativeSeq: 100, SackBitmap: 0b0000_0101}
	buf := ack.Encode(nil)
	if ControlType(buf[0]) != ControlAck {
		t.Fatal("missing subtype byte")
	}
	decoded, n, ok := DecodeAck(buf[1:])
	if !ok || n != len(buf)-1 {
		t.Fatal("decode failed")
	}
	if decoded != ack {
		t.Fatalf("roundtrip mismatch: %+v", decoded)
	}
	sacked := decoded.SackedSequences()
	if len(sacked) != 2 || sacked[0] != 101 || sacked[1] != 103 {
		t.Fatalf("unexpected sacked sequences: %v", sacked)
	}
}

func TestNackRoundtrip(t *testing.T) {
	nack := Nack{Ranges: []NackRange{
		{Start: 100, Count: 5},
		{Start: 200, Count: 1},
	}}
	buf := nack.Encode(nil)
	decoded, _, ok := DecodeNack(buf[1:])
	if !ok || len(decoded.Ranges) != 2 {
		t.Fatalf("decode failed: %+v", decoded)
	}
	if decoded.Ranges[0] != nack.Ranges[0] || decoded.Ranges[1] != nack.Ranges[1] {
		t.Fatalf("roundtrip mismatch: %+v", decoded)
	}
}

func TestNackRejectsTooManyRanges(t *testing.T) {
	buf := VarInt(MaxNackRanges + 1).Encode(nil)
	if _, _, ok := DecodeNack(buf); ok {
		t.Fatal("expected oversized range list to be rejected")
	}
}

func TestPingPongRoundtrip(t *testing.T) {
	ping := Ping{OriginTimestampUs: 12345, PingID: 7}
	buf := ping.Encode(nil)
	decoded, _, ok := DecodePing(buf[1:])
	if !ok || decoded != ping {
		t.Fatalf("ping roundtrip mismatch: %+v", decoded)
	}

	pong := Pong{OriginTimestampUs: 12345, PingID: 7, ReceiveTimestampUs: 12400}
	buf = pong.Encode(nil)
	decodedPong, _, ok := DecodePong(buf[1:])
	if !ok || decodedPong != pong {
		t.Fatalf("pong roundtrip mismatch: %+v", decodedPong)
	}
}

func TestSessionRoundtrip(t *testing.T) {
	linkID := uint8(3)
	s := Session{Action: SessionLinkJoin, SessionID: 0xDEAD_BEEF_CAFE_BABE, LinkID: &linkID}
	buf := s.Encode(nil)
	decoded, _, ok := DecodeSession(buf[1:])
	if !ok || decoded.Action != s.Action || decoded.SessionID != s.SessionID {
		t.Fatalf("roundtrip mismatch: %+v", decoded)
	}
	if decoded.LinkID == nil || *decoded.LinkID != linkID {
		t.Fatalf("link id mismatch: %+v", decoded.LinkID)
	}
}

func TestReceiverReportRoundtrip(t *testing.T) {
	r := ReceiverReport{GoodputBps: 5_000_000, FecRepairRateX: 250, JitterBufferMs: 120, LossAfterFecX10k: 50}
	buf := r.Encode(nil)
	if len(buf) != ReceiverReportLen+1 {
		t.Fatalf("unexpected encoded len: %d", len(buf))
	}
	decoded, _, ok := DecodeReceiverReport(buf[1:])
	if !ok || decoded != r {
		t.Fatalf("roundtrip mismatch: %+v", decoded)
	}
	if got := decoded.FecRepairRate(); got < 0.0249 || got > 0.0251 {
		t.Fatalf("FecRepairRate = %v", got)
	}
}

func TestDecodeControlBodyUnknownSubtype(t *testing.T) {
	if _, ok := DecodeControlBody([]byte{0xFF, 1, 2, 3}); ok {
		t.Fatal("expected unknown subtype to be rejected")
	}
}

func TestDecodeControlBodyDispatch(t *testing.T) {
	ack := Ack{CumulativeSeq: 5, SackBitmap: 1}
	buf := ack.Encode(nil)
	body, ok := DecodeControlBody(buf)
	if !ok || body.Type != ControlAck || body.Ack != ack {
		t.Fatalf("dispatch mismatch: %+v", body)
	}
}
