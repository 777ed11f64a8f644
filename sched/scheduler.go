package sched

import (
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/bondrelay/bond/config"
	"github.com/bondrelay/bond/estimate"
	"github.com/bondrelay/bond/link"
)

// ErrAllLinksDead is returned by Send when no link can currently carry
// the packet, or when the one link picked on the unicast path fails its
// send; the packet is not retried on another link.
type ErrAllLinksDead struct{}

func (ErrAllLinksDead) Error() string { return "sched: all links dead" }

// Sink is the capability a link exposes to the scheduler: send raw bytes,
// report sent length or an error.
type Sink interface {
	Send(payload []byte) (int, error)
}

// Profile mirrors the upstream media pipeline's per-packet hints.
type Profile struct {
	IsCritical bool
	CanDrop    bool
	SizeBytes  int
}

type linkEntry struct {
	l        *link.Link
	sink     Sink
	kalman   *estimate.KalmanRTT
	capacity *estimate.Capacity
}

// Scheduler is the top-level BondingScheduler: DWRR core, BLEST guard,
// IoDS tie-breaker, Thompson sampler, critical broadcast, redundancy, and
// failover, composed over a set of links.
type Scheduler struct {
	cfg    config.SchedulerConfig
	logger *log.Logger

	links map[uint8]*linkEntry
	order []uint8

	dwrr     *dwrr
	blest    *blest
	iods     *iods
	thompson *thompson

	nextSeq uint64

	failoverUntil time.Time
	prevPhases    map[uint8]link.Phase
	prevRtts      map[uint8]float64

	consecutiveDead      int
	totalDeadDrops       atomic.Uint64

	senderBitrateBps float64
}

// NewScheduler creates a scheduler with no links.
func NewScheduler(cfg config.SchedulerConfig, logger *log.Logger, rng *rand.Rand) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		cfg:        cfg,
		logger:     logger,
		links:      make(map[uint8]*linkEntry),
		dwrr:       newDWRR(cfg.CapacityFloorBps),
		blest:      newBLEST(100),
		iods:       newIoDS(),
		thompson:   newThompson(rng),
		prevPhases: make(map[uint8]link.Phase),
		prevRtts:   make(map[uint8]float64),
	}
}

// AddLink registers a new link, fresh in Probe phase.
func (s *Scheduler) AddLink(l *link.Link, sink Sink, capCfg estimate.CapacityConfig) {
	s.links[l.ID] = &linkEntry{
		l:        l,
		sink:     sink,
		kalman:   estimate.NewKalmanRTT(),
		capacity: estimate.NewCapacity(capCfg, capCfg.CapacityFloorBps),
	}
	s.order = append(s.order, l.ID)
	s.prevPhases[l.ID] = l.Phase()
}

// RemoveLink tears down all per-link side-table state.
func (s *Scheduler) RemoveLink(id uint8) {
	delete(s.links, id)
	for i, lid := range s.order {
		if lid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.dwrr.remove(id)
	s.blest.remove(id)
	s.iods.remove(id)
	s.thompson.remove(id)
	delete(s.prevPhases, id)
	delete(s.prevRtts, id)
}

// RefreshMetrics feeds one RTT/loss/capacity sample per link into the
// Kalman filter, capacity estimator, and lifecycle state machine, then
// checks failover conditions and runs one DWRR round.
func (s *Scheduler) RefreshMetrics(now time.Time, raw map[uint8]link.Metrics) {
	for id, e := range s.links {
		m, ok := raw[id]
		if !ok {
			continue
		}
		smoothedRtt := e.kalman.Update(m.RttMs)
		smoothedCap := e.capacity.Sample(now, smoothedRtt, m.LossRate)
		m.RttMs = smoothedRtt
		m.CapacityBps = smoothedCap

		prevPhase := e.l.Phase()
		newPhase, _ := e.l.Sample(now, m)
		s.checkFailoverConditions(id, prevPhase, newPhase, m.RttMs)
		s.prevPhases[id] = newPhase
		s.prevRtts[id] = m.RttMs
	}

	s.blest.Refresh()
	s.dwrr.Refresh(s.liveLinks())
}

func (s *Scheduler) checkFailoverConditions(id uint8, prevPhase, newPhase link.Phase, rtt float64) {
	degraded := prevPhase < link.Degrade && newPhase >= link.Degrade
	spiked := false
	if prior, ok := s.prevRtts[id]; ok && prior > 0 {
		spiked = rtt > s.cfg.FailoverRttSpikeFactor*prior
	}
	if degraded || spiked {
		s.failoverUntil = time.Now().Add(time.Duration(s.cfg.FailoverDurationMs) * time.Millisecond)
	}
}

// InFailover reports whether the scheduler is currently in its
// all-links-broadcast failover window.
func (s *Scheduler) InFailover(now time.Time) bool {
	return now.Before(s.failoverUntil)
}

func (s *Scheduler) liveLinks() []*link.Link {
	out := make([]*link.Link, 0, len(s.links))
	for _, id := range s.order {
		out = append(out, s.links[id].l)
	}
	return out
}

func (s *Scheduler) eligibleLinks() []*link.Link {
	out := make([]*link.Link, 0, len(s.links))
	for _, id := range s.order {
		l := s.links[id].l
		if l.IsEligible() {
			out = append(out, l)
		}
	}
	return out
}

// Send assigns the next sequence, selects link(s) per the scheduler's
// composition order, and attempts delivery. The caller supplies the
// already wire-encoded packet body (without header) so Send can stamp the
// sequence consistently across broadcast/redundancy/unicast paths.
func (s *Scheduler) Send(now time.Time, encode func(seq uint64) []byte, profile Profile) error {
	seq := s.nextSeq
	s.nextSeq++

	eligible := s.eligibleLinks()
	if len(eligible) == 0 {
		return ErrAllLinksDead{}
	}

	if (profile.IsCritical && s.cfg.CriticalBroadcast) || s.InFailover(now) {
		return s.broadcast(seq, encode, eligible)
	}

	if s.cfg.RedundancyEnabled && !profile.CanDrop &&
		profile.SizeBytes < s.cfg.RedundancyMaxPacketSize &&
		s.spareRatio(eligible) > s.cfg.RedundancySpareRatio {
		return s.redundant(seq, encode, eligible, profile)
	}

	return s.unicast(seq, encode, eligible, profile)
}

func (s *Scheduler) spareRatio(eligible []*link.Link) float64 {
	var totalCap, totalCredit float64
	for _, l := range eligible {
		totalCap += float64(l.Metrics().CapacityBps)
		if l.Credit > 0 {
			totalCredit += float64(l.Credit)
		}
	}
	if totalCap == 0 {
		return 0
	}
	return totalCredit / totalCap
}

func (s *Scheduler) broadcast(seq uint64, encode func(uint64) []byte, eligible []*link.Link) error {
	payload := encode(seq)
	anySuccess := false
	for _, l := range eligible {
		if l.Phase() != link.Live && l.Phase() != link.Warm {
			continue
		}
		if s.attemptSend(l, payload) {
			anySuccess = true
		}
	}
	if !anySuccess {
		return ErrAllLinksDead{}
	}
	return nil
}

func (s *Scheduler) redundant(seq uint64, encode func(uint64) []byte, eligible []*link.Link, profile Profile) error {
	n := s.cfg.RedundancyTargetLinks
	if n > len(eligible) {
		n = len(eligible)
	}
	ranked := rankByCapacity(eligible)
	payload := encode(seq)
	anySuccess := false
	for i := 0; i < n; i++ {
		if s.attemptSend(ranked[i], payload) {
			anySuccess = true
		}
	}
	if !anySuccess {
		return ErrAllLinksDead{}
	}
	return nil
}

func rankByCapacity(links []*link.Link) []*link.Link {
	out := make([]*link.Link, len(links))
	copy(out, links)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Metrics().CapacityBps > out[j-1].Metrics().CapacityBps; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (s *Scheduler) unicast(seq uint64, encode func(uint64) []byte, eligible []*link.Link, profile Profile) error {
	approved := s.blest.Filter(eligible, profile.SizeBytes, s.senderBitrateBps)
	if len(approved) == 0 {
		approved = eligible // last resort: any alive link
	}

	// DWRR picks over the full eligible set, ignoring BLEST, so the
	// membership check below can actually fail and trigger the Thompson
	// fallback when BLEST excludes DWRR's preferred link.
	dwrrPick := s.dwrr.Pick(eligible)
	if dwrrPick == nil {
		dwrrPick = eligible[0]
	}

	pick := dwrrPick
	blestOK := false
	for _, l := range approved {
		if l == dwrrPick {
			blestOK = true
			break
		}
	}
	if !blestOK {
		s.dwrr.Refund(dwrrPick, profile.SizeBytes)
		ids := make([]uint8, len(approved))
		for i, l := range approved {
			ids[i] = l.ID
		}
		chosenID := s.thompson.Pick(ids)
		pick = approved[0]
		for _, l := range approved {
			if l.ID == chosenID {
				pick = l
				break
			}
		}
	}

	payload := encode(seq)
	s.iods.Record(pick.ID, seq, pick.Metrics().RttMs)
	if s.attemptSend(pick, payload) {
		return nil
	}
	return ErrAllLinksDead{}
}

func (s *Scheduler) attemptSend(l *link.Link, payload []byte) bool {
	e := s.links[l.ID]
	n, err := e.sink.Send(payload)
	if err != nil {
		s.dwrr.Refund(l, len(payload))
		s.thompson.Failure(l.ID)
		s.consecutiveDead++
		s.totalDeadDrops.Add(1)
		s.logSendFailure(l.ID, err)
		return false
	}
	s.dwrr.Debit(l, n)
	l.CumulativeBytes += uint64(n)
	s.thompson.Success(l.ID)
	s.consecutiveDead = 0
	return true
}

func (s *Scheduler) logSendFailure(id uint8, err error) {
	n := s.consecutiveDead
	if n == 1 || n == 100 || n%1000 == 0 {
		s.logger.Printf("sched: link %d send failed (consecutive=%d total=%d): %v", id, n, s.totalDeadDrops.Load(), err)
	}
}

// SetSenderBitrate updates the bitrate BLEST uses to compute the
// in-flight budget for its owd x bitrate check.
func (s *Scheduler) SetSenderBitrate(bps float64) { s.senderBitrateBps = bps }

// CountsSnapshot is a point-in-time view of scheduler-level counters,
// folded into the sender's published telemetry.
type CountsSnapshot struct {
	LinkCount      int
	TotalDeadDrops uint64
	FailoverActive bool
}

// Snapshot returns the scheduler-level counters used by the sender's
// telemetry registry.
func (s *Scheduler) Snapshot(now time.Time) CountsSnapshot {
	return CountsSnapshot{
		LinkCount:      len(s.links),
		TotalDeadDrops: s.totalDeadDrops.Load(),
		FailoverActive: s.InFailover(now),
	}
}

// ThompsonMeanProbability exposes the learned success probability for a
// link, used by stats and tests.
func (s *Scheduler) ThompsonMeanProbability(id uint8) float64 {
	return s.thompson.MeanProbability(id)
}

// ThompsonFailure/ThompsonSuccess let external callers (tests, the
// control loop replaying historical feedback) drive the sampler directly.
func (s *Scheduler) ThompsonFailure(id uint8) { s.thompson.Failure(id) }
func (s *Scheduler) ThompsonSuccess(id uint8) { s.thompson.Success(id) }
