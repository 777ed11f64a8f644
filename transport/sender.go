// Package transport wires the wire codec, scheduler, link lifecycle, FEC
// engine, session/control loop, and telemetry into the external Sender and
// Receiver surfaces the media pipeline consumes.
package transport

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bondrelay/bond/bitrate"
	"github.com/bondrelay/bond/config"
	"github.com/bondrelay/bond/estimate"
	"github.com/bondrelay/bond/fec"
	"github.com/bondrelay/bond/link"
	"github.com/bondrelay/bond/sched"
	"github.com/bondrelay/bond/session"
	"github.com/bondrelay/bond/stats"
	"github.com/bondrelay/bond/wire"
)

// DegradationStage mirrors the media pipeline's degradation stage enum.
type DegradationStage int

const (
	DegradationNormal DegradationStage = iota
	DegradationDropDisposable
	DegradationReduceBitrate
	DegradationProtectKeyframes
	DegradationKeyframeOnly
)

// PacketProfile mirrors the upstream media pipeline's per-packet hints.
type PacketProfile struct {
	IsCritical bool
	CanDrop    bool
	SizeBytes  int
}

// Sender is the core's sender-side external interface.
type Sender struct {
	cfg    config.Config
	logger *log.Logger

	sched   *sched.Scheduler
	sess    *session.Session
	fecEnc  *fec.Encoder
	bitrate *bitrate.Controller
	reg     *stats.SenderRegistry

	degradationStage DegradationStage
	seq              uint64

	bytesSent    atomic.Uint64
	packetsSent  atomic.Uint64
	sendFailures atomic.Uint64

	mu     sync.Mutex
	cmdCh  chan wire.BitrateCmd
	ctrlCh chan wire.ControlBody
}

// NewSender constructs a sender with no links yet added; call AddLink for
// each bonded path before Send.
func NewSender(cfg config.Config, logger *log.Logger) *Sender {
	if logger == nil {
		logger = log.Default()
	}
	return &Sender{
		cfg:     cfg,
		logger:  logger,
		sched:   sched.NewScheduler(cfg.Scheduler, logger, rand.New(rand.NewSource(1))),
		sess:    session.NewClientSession(uint64(time.Now().UnixNano()), time.Duration(cfg.Scheduler.StatsIntervalMs)*time.Millisecond, time.Duration(cfg.Scheduler.StatsIntervalMs)*time.Millisecond),
		fecEnc:  fec.NewEncoder(16, 2),
		bitrate: bitrate.New(bitrate.Config{
			CongestionHeadroomRatio: cfg.Scheduler.CongestionHeadroomRatio,
			CongestionTriggerRatio:  cfg.Scheduler.CongestionTriggerRatio,
			ResidualLossThreshold:   0.05,
			AiStepRatio:             cfg.Scheduler.AiStepRatio,
			DecreaseCooldown:        time.Duration(cfg.Scheduler.DecreaseCooldownMs) * time.Millisecond,
			MinKbps:                 200,
			MaxKbps:                 20000,
		}),
		reg:    stats.NewSenderRegistry(),
		cmdCh:  make(chan wire.BitrateCmd, 16),
		ctrlCh: make(chan wire.ControlBody, 64),
	}
}

// AddLink registers a new link, fresh in Probe phase, backed by sink.
func (s *Sender) AddLink(id uint8, uri string, sink sched.Sink) {
	l := link.New(id, uri, s.cfg.Lifecycle)
	capCfg := estimate.CapacityConfig{
		CongestionRatio:  s.cfg.Scheduler.FailoverRttSpikeFactor / 2,
		HeadroomRatio:    1.1,
		MdFactor:         s.cfg.Scheduler.MdFactor,
		AiStepRatio:      s.cfg.Scheduler.AiStepRatio,
		DecreaseCooldown: time.Duration(s.cfg.Scheduler.DecreaseCooldownMs) * time.Millisecond,
		LossMdThreshold:  0.1,
		CapacityFloorBps: s.cfg.Scheduler.CapacityFloorBps,
		MaxCapacityBps:   0,
	}
	s.sched.AddLink(l, sink, capCfg)
}

// RemoveLink tears down a link's scheduler-side state.
func (s *Sender) RemoveLink(id uint8) {
	s.sched.RemoveLink(id)
}

// RefreshMetrics feeds one metrics sample per link into the scheduler.
func (s *Sender) RefreshMetrics(now time.Time, raw map[uint8]link.Metrics) {
	s.sched.RefreshMetrics(now, raw)
	s.publishStats(now)
}

// Send frames payload into a data packet and hands it to the scheduler.
// See sched.ErrAllLinksDead for the no-capacity case. A packet dropped
// locally by the current degradation stage returns nil without reaching
// the scheduler, matching the media pipeline's fire-and-forget contract.
func (s *Sender) Send(ctx context.Context, payload []byte, profile PacketProfile) error {
	now := time.Now()
	if s.degradedDrop(profile) {
		s.publishStats(now)
		return nil
	}

	seq := s.nextSeq()
	encode := func(_ uint64) []byte {
		return wire.NewDataPacket(seq, uint32(now.UnixMicro()&0xFFFFFFFF), payload).Encode()
	}
	err := s.sched.Send(now, encode, sched.Profile{
		IsCritical: profile.IsCritical,
		CanDrop:    profile.CanDrop,
		SizeBytes:  profile.SizeBytes,
	})
	if err != nil {
		s.sendFailures.Add(1)
		s.publishStats(now)
		return err
	}
	s.bytesSent.Add(uint64(len(payload)))
	s.packetsSent.Add(1)

	if repairs := s.fecEnc.AddSourceSymbol(seq, payload); repairs != nil {
		s.emitRepairs(repairs)
	}
	s.publishStats(now)
	return nil
}

// degradedDrop reports whether profile should be dropped locally given
// the pipeline's current degradation stage: DropDisposable sheds
// disposable packets, ProtectKeyframes/KeyframeOnly shed everything but
// critical (keyframe) packets.
func (s *Sender) degradedDrop(profile PacketProfile) bool {
	s.mu.Lock()
	stage := s.degradationStage
	s.mu.Unlock()
	switch stage {
	case DegradationDropDisposable:
		return profile.CanDrop
	case DegradationProtectKeyframes, DegradationKeyframeOnly:
		return !profile.IsCritical
	default:
		return false
	}
}

// publishStats folds the sender's own counters together with the
// scheduler's link-level counters into a fresh snapshot.
func (s *Sender) publishStats(now time.Time) {
	snap := s.sched.Snapshot(now)
	s.reg.Publish(stats.SenderSnapshot{
		BytesSent:         s.bytesSent.Load(),
		PacketsSent:       s.packetsSent.Load(),
		SendFailures:      s.sendFailures.Load(),
		TotalDeadDrops:    snap.TotalDeadDrops,
		TargetBitrateKbps: s.bitrate.CurrentKbps(),
		LinkCount:         snap.LinkCount,
		FailoverActive:    snap.FailoverActive,
	})
}

func (s *Sender) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq
	s.seq++
	return seq
}

// emitRepairs pushes freshly generated repair symbols onto the outbound
// control channel, wrapped as FecRepair control bodies; a full deployment
// drains ControlBodies() onto whichever link the scheduler picks next for
// control traffic.
func (s *Sender) emitRepairs(repairs []fec.RepairSymbol) {
	for _, r := range repairs {
		body := wire.ControlBody{Type: wire.ControlFecRepair, FecRepair: r.Header}
		select {
		case s.ctrlCh <- body:
		default:
			s.logger.Printf("transport: control channel full, dropping fec repair gen=%d idx=%d", r.Header.GenerationID, r.Header.SymbolIndex)
		}
	}
}

// ControlBodies returns the channel of outbound control-plane bodies
// awaiting transmission. Only FecRepair bodies are emitted on it.
func (s *Sender) ControlBodies() <-chan wire.ControlBody {
	return s.ctrlCh
}

// SetAdaptationEnvelope updates the bitrate controller's min/max kbps
// envelope.
func (s *Sender) SetAdaptationEnvelope(minKbps, maxKbps uint32) {
	s.bitrate.SetEnvelope(minKbps, maxKbps)
}

// SetDegradationStage records the pipeline's current degradation stage;
// Send consults it to decide whether to drop a given packet locally.
func (s *Sender) SetDegradationStage(stage DegradationStage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degradationStage = stage
}

// BitrateCommands returns the channel of BitrateCmd events the pipeline
// should retune its encoder against.
func (s *Sender) BitrateCommands() <-chan wire.BitrateCmd {
	return s.cmdCh
}

// EvaluateBitrate runs the bitrate controller once and, if it produced a
// new target, pushes it onto the commands channel (BitrateCommands).
func (s *Sender) EvaluateBitrate(now time.Time, aggregateCapacityBps uint64, fb bitrate.ReceiverFeedback) {
	cmd, changed := s.bitrate.Evaluate(now, aggregateCapacityBps, fb)
	if !changed {
		return
	}
	select {
	case s.cmdCh <- cmd:
	default:
		s.logger.Printf("transport: bitrate command channel full, dropping %+v", cmd)
	}
}

// Stats returns the current telemetry snapshot.
func (s *Sender) Stats() stats.SenderSnapshot {
	return s.reg.Load()
}
