package wire

import "encoding/binary"

// ControlType is the 1-byte subtype prepended to a control packet's payload.
type ControlType uint8

const (
	ControlAck            ControlType = 0x01
	ControlNack           ControlType = 0x02
	ControlFecRepair      ControlType = 0x03
	ControlLinkReport     ControlType = 0x04
	ControlBitrateCmd     ControlType = 0x05
	ControlPing           ControlType = 0x06
	ControlPong           ControlType = 0x07
	ControlSession        ControlType = 0x08
	ControlReceiverReport ControlType = 0x09
)

func controlTypeFromByte(b byte) (ControlType, bool) {
	switch ControlType(b) {
	case ControlAck, ControlNack, ControlFecRepair, ControlLinkReport,
		ControlBitrateCmd, ControlPing, ControlPong, ControlSession, ControlReceiverReport:
		return ControlType(b), true
	default:
		return 0, false
	}
}

// MaxNackRanges bounds a single NACK packet's range list.
const MaxNackRanges = 256

// Ack is a cumulative acknowledgment plus a selective-ACK bitmap over the
// 64 sequence numbers above the cumulative one.
type Ack struct {
	CumulativeSeq VarInt
	SackBitmap    uint64
}

func (a Ack) Encode(buf []byte) []byte {
	buf = append(buf, byte(ControlAck))
	buf = a.CumulativeSeq.Encode(buf)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], a.SackBitmap)
	return append(buf, tmp[:]...)
}

// DecodeAck decodes an Ack body (without the leading subtype byte).
func DecodeAck(buf []byte) (Ack, int, bool) {
	seq, n, ok := DecodeVarInt(buf)
	if !ok {
		return Ack{}, 0, false
	}
	if len(buf) < n+8 {
		return Ack{}, 0, false
	}
	bitmap := binary.BigEndian.Uint64(buf[n : n+8])
	return Ack{CumulativeSeq: seq, SackBitmap: bitmap}, n + 8, true
}

// SackedSequences returns the specific sequence numbers acknowledged by the
// SACK bitmap, each equal to CumulativeSeq+1+i for set bit i.
func (a Ack) SackedSequences() []uint64 {
	var out []uint64
	for i := 0; i < 64; i++ {
		if a.SackBitmap&(1<<uint(i)) != 0 {
			out = append(out, uint64(a.CumulativeSeq)+1+uint64(i))
		}
	}
	return out
}

// NackRange is a single (start, count) run of missing sequence numbers.
type NackRange struct {
	Start VarInt
	Count VarInt
}

// Nack reports loss as a coalesced list of ranges, capped at MaxNackRanges.
type Nack struct {
	Ranges []NackRange
}

func (n Nack) Encode(buf []byte) []byte {
	buf = append(buf, byte(ControlNack))
	buf = VarInt(len(n.Ranges)).Encode(buf)
	for _, r := range n.Ranges {
		buf = r.Start.Encode(buf)
		buf = r.Count.Encode(buf)
	}
	return buf
}

// DecodeNack decodes a Nack body (without the leading subtype byte).
func DecodeNack(buf []byte) (Nack, int, bool) {
	count, off, ok := DecodeVarInt(buf)
	if !ok {
		return Nack{}, 0, false
	}
	if uint64(count) > MaxNackRanges {
		return Nack{}, 0, false
	}
	ranges := make([]NackRange, 0, count)
	for i := uint64(0); i < uint64(count); i++ {
		start, n1, ok := DecodeVarInt(buf[off:])
		if !ok {
			return Nack{}, 0, false
		}
		off += n1
		cnt, n2, ok := DecodeVarInt(buf[off:])
		if !ok {
			return Nack{}, 0, false
		}
		off += n2
		ranges = append(ranges, NackRange{Start: start, Count: cnt})
	}
	return Nack{Ranges: ranges}, off, true
}

// FecRepairHeader is the extension header prepended to a repair symbol's
// payload inside a control packet.
type FecRepairHeader struct {
	GenerationID uint16
	SymbolIndex  uint8
	K            uint8
	R            uint8
}

// FecRepairHeaderLen is the encoded length of FecRepairHeader, including
// the leading subtype byte.
const FecRepairHeaderLen = 6

func (h FecRepairHeader) Encode(buf []byte) []byte {
	buf = append(buf, byte(ControlFecRepair))
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], h.GenerationID)
	buf = append(buf, tmp[:]...)
	return append(buf, h.SymbolIndex, h.K, h.R)
}

// DecodeFecRepairHeader decodes a FecRepairHeader body (without subtype byte).
func DecodeFecRepairHeader(buf []byte) (FecRepairHeader, int, bool) {
	if len(buf) < 5 {
		return FecRepairHeader{}, 0, false
	}
	return FecRepairHeader{
		GenerationID: binary.BigEndian.Uint16(buf[0:2]),
		SymbolIndex:  buf[2],
		K:            buf[3],
		R:            buf[4],
	}, 5, true
}

// LinkReport is a receiver-to-sender report of per-link quality.
type LinkReport struct {
	LinkID       uint8
	RttUs        uint32
	LossRateX10k uint16 // 0-10000 = 0.00%-100.00%
	CapacityKbps uint32
	SinrDb10     int16
}

const linkReportLen = 13

func (r LinkReport) Encode(buf []byte) []byte {
	buf = append(buf, byte(ControlLinkReport), r.LinkID)
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], r.RttUs)
	buf = append(buf, tmp[:]...)
	var tmp2 [2]byte
	binary.BigEndian.PutUint16(tmp2[:], r.LossRateX10k)
	buf = append(buf, tmp2[:]...)
	binary.BigEndian.PutUint32(tmp[:], r.CapacityKbps)
	buf = append(buf, tmp[:]...)
	binary.BigEndian.PutUint16(tmp2[:], uint16(r.SinrDb10))
	return append(buf, tmp2[:]...)
}

func DecodeLinkReport(buf []byte) (LinkReport, int, bool) {
	if len(buf) < linkReportLen {
		return LinkReport{}, 0, false
	}
	return LinkReport{
		LinkID:       buf[0],
		RttUs:        binary.BigEndian.Uint32(buf[1:5]),
		LossRateX10k: binary.BigEndian.Uint16(buf[5:7]),
		CapacityKbps: binary.BigEndian.Uint32(buf[7:11]),
		SinrDb10:     int16(binary.BigEndian.Uint16(buf[11:13])),
	}, linkReportLen, true
}

// BitrateReason explains why a BitrateCmd was emitted.
type BitrateReason uint8

const (
	BitrateReasonCapacity    BitrateReason = 0
	BitrateReasonCongestion  BitrateReason = 1
	BitrateReasonLinkFailure BitrateReason = 2
	BitrateReasonRecovery    BitrateReason = 3
)

func bitrateReasonFromByte(b byte) (BitrateReason, bool) {
	switch BitrateReason(b) {
	case BitrateReasonCapacity, BitrateReasonCongestion, BitrateReasonLinkFailure, BitrateReasonRecovery:
		return BitrateReason(b), true
	default:
		return 0, false
	}
}

// BitrateCmd advises the encoder of a new target bitrate.
type BitrateCmd struct {
	TargetKbps uint32
	Reason     BitrateReason
}

func (c BitrateCmd) Encode(buf []byte) []byte {
	buf = append(buf, byte(ControlBitrateCmd))
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], c.TargetKbps)
	buf = append(buf, tmp[:]...)
	return append(buf, byte(c.Reason))
}

func DecodeBitrateCmd(buf []byte) (BitrateCmd, int, bool) {
	if len(buf) < 5 {
		return BitrateCmd{}, 0, false
	}
	reason, ok := bitrateReasonFromByte(buf[4])
	if !ok {
		return BitrateCmd{}, 0, false
	}
	return BitrateCmd{
		TargetKbps: binary.BigEndian.Uint32(buf[0:4]),
		Reason:     reason,
	}, 5, true
}

// Ping measures RTT; Pong echoes it back with a receive timestamp.
type Ping struct {
	OriginTimestampUs uint32
	PingID            uint16
}

func (p Ping) Encode(buf []byte) []byte {
	buf = append(buf, byte(ControlPing))
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], p.OriginTimestampUs)
	buf = append(buf, tmp[:]...)
	var tmp2 [2]byte
	binary.BigEndian.PutUint16(tmp2[:], p.PingID)
	return append(buf, tmp2[:]...)
}

func DecodePing(buf []byte) (Ping, int, bool) {
	if len(buf) < 6 {
		return Ping{}, 0, false
	}
	return Ping{
		OriginTimestampUs: binary.BigEndian.Uint32(buf[0:4]),
		PingID:            binary.BigEndian.Uint16(buf[4:6]),
	}, 6, true
}

type Pong struct {
	OriginTimestampUs  uint32
	PingID             uint16
	ReceiveTimestampUs uint32
}

func (p Pong) Encode(buf []byte) []byte {
	buf = append(buf, byte(ControlPong))
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], p.OriginTimestampUs)
	buf = append(buf, tmp[:]...)
	var tmp2 [2]byte
	binary.BigEndian.PutUint16(tmp2[:], p.PingID)
	buf = append(buf, tmp2[:]...)
	binary.BigEndian.PutUint32(tmp[:], p.ReceiveTimestampUs)
	return append(buf, tmp[:]...)
}

func DecodePong(buf []byte) (Pong, int, bool) {
	if len(buf) < 10 {
		return Pong{}, 0, false
	}
	return Pong{
		OriginTimestampUs:  binary.BigEndian.Uint32(buf[0:4]),
		PingID:             binary.BigEndian.Uint16(buf[4:6]),
		ReceiveTimestampUs: binary.BigEndian.Uint32(buf[6:10]),
	}, 10, true
}

// SessionAction tags a Session control packet.
type SessionAction uint8

const (
	SessionHello     SessionAction = 0
	SessionAccept    SessionAction = 1
	SessionTeardown  SessionAction = 2
	SessionLinkJoin  SessionAction = 3
	SessionLinkLeave SessionAction = 4
)

func sessionActionFromByte(b byte) (SessionAction, bool) {
	switch SessionAction(b) {
	case SessionHello, SessionAccept, SessionTeardown, SessionLinkJoin, SessionLinkLeave:
		return SessionAction(b), true
	default:
		return 0, false
	}
}

// Session carries handshake / teardown / link-membership events.
type Session struct {
	Action    SessionAction
	SessionID uint64
	LinkID    *uint8 // nil unless Action is LinkJoin/LinkLeave
}

func (s Session) Encode(buf []byte) []byte {
	buf = append(buf, byte(ControlSession), byte(s.Action))
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], s.SessionID)
	buf = append(buf, tmp[:]...)
	if s.LinkID != nil {
		buf = append(buf, 1, *s.LinkID)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func DecodeSession(buf []byte) (Session, int, bool) {
	if len(buf) < 10 {
		return Session{}, 0, false
	}
	action, ok := sessionActionFromByte(buf[0])
	if !ok {
		return Session{}, 0, false
	}
	sessionID := binary.BigEndian.Uint64(buf[1:9])
	hasLink := buf[9]
	off := 10
	var linkID *uint8
	if hasLink == 1 {
		if len(buf) < off+1 {
			return Session{}, 0, false
		}
		id := buf[off]
		linkID = &id
		off++
	}
	return Session{Action: action, SessionID: sessionID, LinkID: linkID}, off, true
}

// ReceiverReport is the aggregate receiver feedback folded into the
// sender's bitrate adaptation loop.
type ReceiverReport struct {
	GoodputBps       uint64
	FecRepairRateX   uint16 // 0-10000
	JitterBufferMs   uint32
	LossAfterFecX10k uint16 // 0-10000
}

// ReceiverReportLen is the encoded body length, excluding the subtype byte.
const ReceiverReportLen = 16

func (r ReceiverReport) Encode(buf []byte) []byte {
	buf = append(buf, byte(ControlReceiverReport))
	var tmp8 [8]byte
	binary.BigEndian.PutUint64(tmp8[:], r.GoodputBps)
	buf = append(buf, tmp8[:]...)
	var tmp2 [2]byte
	binary.BigEndian.PutUint16(tmp2[:], r.FecRepairRateX)
	buf = append(buf, tmp2[:]...)
	var tmp4 [4]byte
	binary.BigEndian.PutUint32(tmp4[:], r.JitterBufferMs)
	buf = append(buf, tmp4[:]...)
	binary.BigEndian.PutUint16(tmp2[:], r.LossAfterFecX10k)
	return append(buf, tmp2[:]...)
}

func DecodeReceiverReport(buf []byte) (ReceiverReport, int, bool) {
	if len(buf) < ReceiverReportLen {
		return ReceiverReport{}, 0, false
	}
	return ReceiverReport{
		GoodputBps:       binary.BigEndian.Uint64(buf[0:8]),
		FecRepairRateX:   binary.BigEndian.Uint16(buf[8:10]),
		JitterBufferMs:   binary.BigEndian.Uint32(buf[10:14]),
		LossAfterFecX10k: binary.BigEndian.Uint16(buf[14:16]),
	}, ReceiverReportLen, true
}

// FecRepairRate returns the repair rate as a 0.0-1.0 fraction.
func (r ReceiverReport) FecRepairRate() float64 { return float64(r.FecRepairRateX) / 10000 }

// LossAfterFec returns residual loss after FEC as a 0.0-1.0 fraction.
func (r ReceiverReport) LossAfterFec() float64 { return float64(r.LossAfterFecX10k) / 10000 }

// ControlBody is a decoded control packet with its typed payload.
type ControlBody struct {
	Type           ControlType
	Ack            Ack
	Nack           Nack
	FecRepair      FecRepairHeader
	LinkReport     LinkReport
	BitrateCmd     BitrateCmd
	Ping           Ping
	Pong           Pong
	Session        Session
	ReceiverReport ReceiverReport
}

// DecodeControlBody decodes a control packet's payload, whose first byte is
// the subtype. ok is false for a short buffer or unknown subtype; the
// caller is expected to drop-and-count per spec §7.
func DecodeControlBody(buf []byte) (ControlBody, bool) {
	if len(buf) == 0 {
		return ControlBody{}, false
	}
	ct, ok := controlTypeFromByte(buf[0])
	if !ok {
		return ControlBody{}, false
	}
	rest := buf[1:]
	switch ct {
	case ControlAck:
		v, _, ok := DecodeAck(rest)
		return ControlBody{Type: ct, Ack: v}, ok
	case ControlNack:
		v, _, ok := DecodeNack(rest)
		return ControlBody{Type: ct, Nack: v}, ok
	case ControlFecRepair:
		v, _, ok := DecodeFecRepairHeader(rest)
		return ControlBody{Type: ct, FecRepair: v}, ok
	case ControlLinkReport:
		v, _, ok := DecodeLinkReport(rest)
		return ControlBody{Type: ct, LinkReport: v}, ok
	case ControlBitrateCmd:
		v, _, ok := DecodeBitrateCmd(rest)
		return ControlBody{Type: ct, BitrateCmd: v}, ok
	case ControlPing:
		v, _, ok := DecodePing(rest)
		return ControlBody{Type: ct, Ping: v}, ok
	case ControlPong:
		v, _, ok := DecodePong(rest)
		return ControlBody{Type: ct, Pong: v}, ok
	case ControlSession:
		v, _, ok := DecodeSession(rest)
		return ControlBody{Type: ct, Session: v}, ok
	case ControlReceiverReport:
		v, _, ok := DecodeReceiverReport(rest)
		return ControlBody{Type: ct, ReceiverReport: v}, ok
	default:
		return ControlBody{}, false
	}
}
