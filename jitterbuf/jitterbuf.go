// Package jitterbuf implements the receiver reassembly ring buffer:
// sequenced release, adaptive latency with bidirectional smoothing, and
// gap skipping, per the bonding engine's aggregator.
package jitterbuf

import (
	"sort"
	"time"
)

// Config carries the receiver-side tuning knobs the buffer needs.
type Config struct {
	Capacity             int
	StartLatencyMs       int
	MinLatencyMs         int
	MaxLatencyMs         int
	JitterMultiplier     float64
	LossPenaltyMs        float64
	StabilityThresholdMs int
	RampUpAlpha          float64
	RampDownAlpha        float64
	SkipAfterMs          int
}

type slot struct {
	occupied bool
	seq      uint64
	data     []byte
	arrived  time.Time
}

// Stats is a point-in-time snapshot of buffer counters.
type Stats struct {
	Delivered uint64
	Lost      uint64
	Late      uint64
	Duplicate uint64
	NextSeq   uint64
	CurrentMs float64
	TargetMs  float64
	JitterMs  float64
	LossRate  float64
	Buffered  int
}

// Buffer is a fixed-capacity sequence-indexed ring with adaptive release
// latency.
type Buffer struct {
	cfg Config

	slots    []slot
	buffered int

	nextSeq uint64

	lastArrival time.Time
	haveArrival bool
	meanIAT     float64
	meanDevIAT  float64

	jitterRing  []float64
	jitterHead  int
	jitterCount int

	currentLatencyMs float64
	targetLatencyMs  float64

	stabilityDeadline time.Time
	haveStability     bool

	delivered uint64
	lost      uint64
	late      uint64
	duplicate uint64

	smoothedLoss float64
}

// New creates a buffer with the given configuration; capacity is rounded
// up to at least 16.
func New(cfg Config) *Buffer {
	if cfg.Capacity < 16 {
		cfg.Capacity = 16
	}
	return &Buffer{
		cfg:              cfg,
		slots:            make([]slot, cfg.Capacity),
		jitterRing:       make([]float64, 128),
		currentLatencyMs: float64(cfg.StartLatencyMs),
		targetLatencyMs:  float64(cfg.StartLatencyMs),
	}
}

// Seed sets the initial expected sequence before the first packet arrives,
// used by session setup when the stream's starting sequence is not zero.
func (b *Buffer) Seed(seq uint64) {
	b.nextSeq = seq
}

func (b *Buffer) idx(seq uint64) int {
	return int(seq % uint64(len(b.slots)))
}

// Push inserts an arriving packet: late, slide, duplicate, write, in that
// order, exactly as the reassembly buffer's invariant table prescribes.
func (b *Buffer) Push(seq uint64, data []byte, now time.Time) {
	b.updateJitter(now)

	if seq < b.nextSeq {
		b.late++
		return
	}

	cap64 := uint64(len(b.slots))
	if seq >= b.nextSeq+cap64 {
		slideTo := seq - cap64 + 1
		for s := b.nextSeq; s < slideTo; s++ {
			i := b.idx(s)
			if b.slots[i].occupied && b.slots[i].seq == s {
				b.slots[i] = slot{}
				b.buffered--
			}
			b.lost++
		}
		b.nextSeq = slideTo
		b.resetStability(now)
	}

	i := b.idx(seq)
	if b.slots[i].occupied && b.slots[i].seq == seq {
		b.duplicate++
		return
	}
	if b.slots[i].occupied {
		// A different, now-evicted older sequence occupied this slot.
		b.lost++
		b.buffered--
	}
	b.slots[i] = slot{occupied: true, seq: seq, data: data, arrived: now}
	b.buffered++

	b.recomputeTarget()
	b.smoothLatency(now)
}

func (b *Buffer) updateJitter(now time.Time) {
	if !b.haveArrival {
		b.lastArrival = now
		b.haveArrival = true
		return
	}
	iat := now.Sub(b.lastArrival).Seconds() * 1000
	b.lastArrival = now

	const alpha = 0.1
	dev := iat - b.meanIAT
	if dev < 0 {
		dev = -dev
	}
	b.meanIAT += alpha * (iat - b.meanIAT)
	b.meanDevIAT += alpha * (dev - b.meanDevIAT)

	b.jitterRing[b.jitterHead] = b.meanDevIAT
	b.jitterHead = (b.jitterHead + 1) % len(b.jitterRing)
	if b.jitterCount < len(b.jitterRing) {
		b.jitterCount++
	}
}

// jitterMs returns the p95 of the ring once at least 5 samples are held,
// otherwise the plain EWMA deviation.
func (b *Buffer) jitterMs() float64 {
	if b.jitterCount < 5 {
		return b.meanDevIAT
	}
	samples := make([]float64, b.jitterCount)
	copy(samples, b.jitterRing[:b.jitterCount])
	sort.Float64s(samples)
	idx := int(float64(len(samples)) * 0.95)
	if idx >= len(samples) {
		idx = len(samples) - 1
	}
	return samples[idx]
}

func (b *Buffer) recomputeTarget() {
	target := float64(b.cfg.StartLatencyMs) +
		b.cfg.JitterMultiplier*b.jitterMs() +
		b.smoothedLoss*b.cfg.LossPenaltyMs
	if target < float64(b.cfg.MinLatencyMs) {
		target = float64(b.cfg.MinLatencyMs)
	}
	if target > float64(b.cfg.MaxLatencyMs) {
		target = float64(b.cfg.MaxLatencyMs)
	}
	b.targetLatencyMs = target
}

func (b *Buffer) resetStability(now time.Time) {
	b.haveStability = true
	b.stabilityDeadline = now.Add(time.Duration(b.cfg.StabilityThresholdMs) * time.Millisecond)
}

func (b *Buffer) smoothLatency(now time.Time) {
	diff := b.targetLatencyMs - b.currentLatencyMs
	switch {
	case diff > 0.5:
		b.currentLatencyMs += b.cfg.RampUpAlpha * diff
		b.resetStability(now)
	case diff < -0.5:
		if b.haveStability && now.Before(b.stabilityDeadline) {
			return
		}
		b.currentLatencyMs += b.cfg.RampDownAlpha * diff
	}
}

// Tick drains whatever is ready to release given the current time,
// applying the gap-skip rule, and returns the released payloads in order.
func (b *Buffer) Tick(now time.Time) [][]byte {
	var out [][]byte
	for {
		i := b.idx(b.nextSeq)
		if b.slots[i].occupied && b.slots[i].seq == b.nextSeq {
			threshold := b.currentLatencyMs
			if float64(b.cfg.SkipAfterMs) < threshold {
				threshold = float64(b.cfg.SkipAfterMs)
			}
			age := now.Sub(b.slots[i].arrived).Seconds() * 1000
			if age >= threshold {
				out = append(out, b.slots[i].data)
				b.slots[i] = slot{}
				b.buffered--
				b.nextSeq++
				b.delivered++
				b.updateLossRate(0)
				continue
			}
			return out
		}

		seqAhead, arrivedAt, found := b.earliestAhead()
		if !found {
			return out
		}
		age := now.Sub(arrivedAt).Seconds() * 1000
		if age >= float64(b.cfg.SkipAfterMs) {
			gap := seqAhead - b.nextSeq
			b.lost += gap
			b.updateLossRate(gap)
			b.nextSeq = seqAhead
			continue
		}
		return out
	}
}

func (b *Buffer) earliestAhead() (seq uint64, arrived time.Time, found bool) {
	for _, s := range b.slots {
		if !s.occupied || s.seq < b.nextSeq {
			continue
		}
		if !found || s.seq < seq {
			seq = s.seq
			arrived = s.arrived
			found = true
		}
	}
	return
}

func (b *Buffer) updateLossRate(newLosses uint64) {
	released := b.delivered
	total := released + newLosses
	if total == 0 {
		return
	}
	sample := float64(newLosses) / float64(total)
	b.smoothedLoss = 0.95*b.smoothedLoss + 0.05*sample
}

// NextSeq returns the next sequence the buffer expects to release.
func (b *Buffer) NextSeq() uint64 { return b.nextSeq }

// CurrentLatencyMs returns the current smoothed release latency.
func (b *Buffer) CurrentLatencyMs() float64 { return b.currentLatencyMs }

// Stats returns a snapshot of the buffer's counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Delivered: b.delivered,
		Lost:      b.lost,
		Late:      b.late,
		Duplicate: b.duplicate,
		NextSeq:   b.nextSeq,
		CurrentMs: b.currentLatencyMs,
		TargetMs:  b.targetLatencyMs,
		JitterMs:  b.jitterMs(),
		LossRate:  b.smoothedLoss,
		Buffered:  b.buffered,
	}
}
