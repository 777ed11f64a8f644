package transport

import (
	"log"
	"time"

	"github.com/bondrelay/bond/config"
	"github.com/bondrelay/bond/fec"
	"github.com/bondrelay/bond/jitterbuf"
	"github.com/bondrelay/bond/session"
	"github.com/bondrelay/bond/stats"
	"github.com/bondrelay/bond/wire"
)

// ReleasedPacket is a reassembled, in-order payload handed back to the
// media pipeline by Receiver.Payloads.
type ReleasedPacket struct {
	Sequence  uint64
	Payload   []byte
	Keyframe  bool
	Config    bool
}

// Receiver is the core's receiver-side external interface: it decodes
// incoming wire packets, feeds source and repair symbols through the FEC
// decoder, reassembles the result in sequence order through the jitter
// buffer, and exposes RTT/loss feedback for the sender's control loop.
type Receiver struct {
	cfg    config.Config
	logger *log.Logger

	buf    *jitterbuf.Buffer
	dec    *fec.Decoder
	sess   *session.Session
	reg    *stats.ReceiverRegistry

	genK int

	outCh  chan ReleasedPacket
	ctrlCh chan wire.ControlBody
}

// NewReceiver constructs a receiver. genK is the source-symbol window size
// (K) the sender is using for this session; a mismatch only degrades FEC
// recovery, it never breaks in-order delivery.
func NewReceiver(cfg config.Config, genK int, logger *log.Logger) *Receiver {
	if logger == nil {
		logger = log.Default()
	}
	if genK <= 0 {
		genK = 16
	}
	return &Receiver{
		cfg:    cfg,
		logger: logger,
		buf: jitterbuf.New(jitterbuf.Config{
			Capacity:             cfg.Receiver.BufferCapacity,
			StartLatencyMs:       cfg.Receiver.StartLatencyMs,
			MinLatencyMs:         cfg.Receiver.MinLatencyMs,
			MaxLatencyMs:         cfg.Receiver.MaxLatencyMs,
			JitterMultiplier:     cfg.Receiver.JitterMultiplier,
			LossPenaltyMs:        cfg.Receiver.LossPenaltyMs,
			StabilityThresholdMs: cfg.Receiver.StabilityThresholdMs,
			RampUpAlpha:          cfg.Receiver.RampUpAlpha,
			RampDownAlpha:        cfg.Receiver.RampDownAlpha,
			SkipAfterMs:          cfg.Receiver.SkipAfterMs,
		}),
		dec:    fec.NewDecoder(4),
		sess:   session.NewServerSession(time.Duration(cfg.Scheduler.StatsIntervalMs)*time.Millisecond, time.Duration(cfg.Scheduler.StatsIntervalMs)*time.Millisecond),
		reg:    stats.NewReceiverRegistry(),
		genK:   genK,
		outCh:  make(chan ReleasedPacket, cfg.Receiver.BufferCapacity),
		ctrlCh: make(chan wire.ControlBody, 64),
	}
}

// HandleRaw decodes a raw wire packet received from any link and, for
// data packets, pushes the payload into the jitter buffer and FEC decoder;
// for control packets, hands FEC repairs to the decoder and Session bodies
// to the session, and answers a Ping with a Pong. Other control subtypes
// are ignored.
func (r *Receiver) HandleRaw(now time.Time, raw []byte) {
	pkt, ok := wire.DecodePacket(raw)
	if !ok {
		return
	}
	switch pkt.Header.Type {
	case wire.PacketData:
		r.handleData(now, pkt)
	case wire.PacketControl:
		r.handleControl(now, pkt.Payload)
	}
}

func (r *Receiver) handleData(now time.Time, pkt wire.Packet) {
	seq := uint64(pkt.Header.Sequence)
	r.sess.Nacks.ObserveReceived(seq)
	r.buf.Push(seq, pkt.Payload, now)

	genID := uint16(seq / uint64(r.genK))
	pos := int(seq % uint64(r.genK))
	if recovered, ok := r.dec.AddSource(genID, r.genK, pos, pkt.Payload); ok {
		// The decoder reports this source symbol itself as resolved; it is
		// already in the jitter buffer, so only other positions are pushed.
		others := recovered[:0]
		for _, rec := range recovered {
			if rec.Position != pos {
				others = append(others, rec)
			}
		}
		r.absorbRecovered(now, genID, others)
	}
	r.publishStats()
}

func (r *Receiver) handleControl(now time.Time, payload []byte) {
	body, ok := wire.DecodeControlBody(payload)
	if !ok {
		return
	}
	switch body.Type {
	case wire.ControlFecRepair:
		h := body.FecRepair
		if recovered, ok := r.dec.AddRepair(h.GenerationID, int(h.K), int(h.R), h.SymbolIndex, payload[wire.FecRepairHeaderLen:]); ok {
			r.absorbRecovered(now, h.GenerationID, recovered)
		}
	case wire.ControlSession:
		r.sess.HandleControl(body.Session)
	case wire.ControlPing:
		r.emitControl(wire.ControlBody{
			Type: wire.ControlPong,
			Pong: wire.Pong{
				OriginTimestampUs:  body.Ping.OriginTimestampUs,
				PingID:             body.Ping.PingID,
				ReceiveTimestampUs: uint32(now.UnixMicro() & 0xFFFFFFFF),
			},
		})
	}
}

func (r *Receiver) absorbRecovered(now time.Time, genID uint16, recovered []fec.Recovered) {
	for _, rec := range recovered {
		seq := uint64(genID)*uint64(r.genK) + uint64(rec.Position)
		r.buf.Push(seq, rec.Data, now)
	}
}

func (r *Receiver) emitControl(body wire.ControlBody) {
	select {
	case r.ctrlCh <- body:
	default:
		r.logger.Printf("transport: receiver control channel full, dropping %+v", body.Type)
	}
}

// Tick drains any packets the jitter buffer considers ready to release at
// now and publishes them on Payloads(). Call on a steady interval (e.g.
// every few milliseconds) from the receiver's pump loop.
func (r *Receiver) Tick(now time.Time) {
	for _, payload := range r.buf.Tick(now) {
		select {
		case r.outCh <- ReleasedPacket{Payload: payload}:
		default:
			r.logger.Printf("transport: receiver output channel full, dropping released packet")
		}
	}
	r.publishStats()
}

// publishStats folds the jitter buffer's counters into a fresh snapshot.
func (r *Receiver) publishStats() {
	st := r.buf.Stats()
	r.reg.Publish(stats.ReceiverSnapshot{
		QueueDepth:       st.Buffered,
		NextSeq:          st.NextSeq,
		Lost:             st.Lost,
		Late:             st.Late,
		Duplicate:        st.Duplicate,
		Delivered:        st.Delivered,
		CurrentLatencyMs: st.CurrentMs,
		TargetLatencyMs:  st.TargetMs,
		JitterMs:         st.JitterMs,
		LossRate:         st.LossRate,
	})
}

// Payloads returns the channel of reassembled, in-order payloads.
func (r *Receiver) Payloads() <-chan ReleasedPacket {
	return r.outCh
}

// ControlBodies returns the channel of outbound control bodies the caller
// should transmit back to the sender. Only Pong replies are emitted on it.
func (r *Receiver) ControlBodies() <-chan wire.ControlBody {
	return r.ctrlCh
}

// Report produces the periodic ReceiverReport folded into the sender's
// bitrate control loop.
func (r *Receiver) Report() wire.ReceiverReport {
	st := r.buf.Stats()
	return wire.ReceiverReport{
		JitterBufferMs:   uint32(st.CurrentMs),
		LossAfterFecX10k: uint16(clampFrac(st.LossRate) * 10000),
	}
}

func clampFrac(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Stats returns the current receiver telemetry snapshot.
func (r *Receiver) Stats() stats.ReceiverSnapshot {
	return r.reg.Load()
}
