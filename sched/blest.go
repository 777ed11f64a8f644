package sched

import "github.com/bondrelay/bond/link"

// blest excludes links whose one-way-delay times the sender's current
// bitrate would push past the receiver's in-flight budget, guarding
// against head-of-line blocking at the jitter buffer. A per-link penalty
// decays every refresh rather than hard-excluding once, per the original
// engine's behaviour.
type blest struct {
	owdBudgetMs      float64
	penalty          map[uint8]float64
	penaltyDecay     float64
}

func newBLEST(owdBudgetMs float64) *blest {
	return &blest{owdBudgetMs: owdBudgetMs, penalty: make(map[uint8]float64), penaltyDecay: 0.9}
}

func (b *blest) remove(id uint8) { delete(b.penalty, id) }

// Refresh decays every link's penalty toward zero.
func (b *blest) Refresh() {
	for id, p := range b.penalty {
		np := p * b.penaltyDecay
		if np < 0.01 {
			delete(b.penalty, id)
		} else {
			b.penalty[id] = np
		}
	}
}

// Allows reports whether l currently passes the BLEST budget check for a
// packet of size bytes at senderBitrateBps.
func (b *blest) Allows(l *link.Link, size int, senderBitrateBps float64) bool {
	owd := l.Metrics().RttMs / 2
	effective := owd + b.penalty[l.ID]
	if senderBitrateBps <= 0 {
		return true
	}
	inFlightBudgetBytes := (b.owdBudgetMs / 1000) * (senderBitrateBps / 8)
	needed := effective / 1000 * (senderBitrateBps / 8)
	return needed <= inFlightBudgetBytes
}

// Penalize bumps a link's penalty after it is excluded, so repeated
// exclusion compounds before the per-refresh decay brings it back down.
func (b *blest) Penalize(id uint8, amount float64) {
	b.penalty[id] += amount
}

// Filter returns the subset of candidates that currently pass the BLEST
// budget check.
func (b *blest) Filter(candidates []*link.Link, size int, senderBitrateBps float64) []*link.Link {
	out := make([]*link.Link, 0, len(candidates))
	for _, l := range candidates {
		if b.Allows(l, size, senderBitrateBps) {
			out = append(out, l)
		} else {
			b.Penalize(l.ID, 1.0)
		}
	}
	return out
}
