// Package sched composes the multi-link scheduler: a DWRR credit core, a
// BLEST head-of-line blocking guard, an IoDS tie-breaker, Thompson-sampling
// exploration, critical-packet broadcast, adaptive redundancy, and
// failover, wrapping the per-link lifecycle and link sockets.
package sched

import "github.com/bondrelay/bond/link"

// dwrrState is the DWRR credit-accounting state for one link.
type dwrrState struct {
	credit  int64
	penalty float64
}

// dwrr is the Deficit Weighted Round-Robin credit core: each link's quantum
// is proportional to its estimated capacity (floored), minus a penalty
// factor that decays on refresh and grows on capacity drops.
type dwrr struct {
	capacityFloorBps int
	states           map[uint8]*dwrrState
	lastCapacity     map[uint8]int
	rrCursor         int
}

func newDWRR(capacityFloorBps int) *dwrr {
	return &dwrr{
		capacityFloorBps: capacityFloorBps,
		states:           make(map[uint8]*dwrrState),
		lastCapacity:     make(map[uint8]int),
	}
}

func (d *dwrr) ensure(id uint8) *dwrrState {
	s, ok := d.states[id]
	if !ok {
		s = &dwrrState{}
		d.states[id] = s
	}
	return s
}

func (d *dwrr) remove(id uint8) {
	delete(d.states, id)
	delete(d.lastCapacity, id)
}

// quantum returns a link's deficit quantum for this round: capacity
// (floored) minus the decaying penalty, never below zero.
func (d *dwrr) quantum(l *link.Link) int64 {
	s := d.ensure(l.ID)
	capBps := l.Metrics().CapacityBps
	if capBps < d.capacityFloorBps {
		capBps = d.capacityFloorBps
	}
	q := float64(capBps) - s.penalty
	if q < 0 {
		q = 0
	}
	return int64(q)
}

// Refresh applies one DWRR round: grants each eligible link its quantum
// (bounded above so unused credit from one round never exceeds a single
// quantum), grows the penalty for links whose capacity just dropped, and
// decays existing penalty otherwise.
func (d *dwrr) Refresh(links []*link.Link) {
	for _, l := range links {
		s := d.ensure(l.ID)
		capBps := l.Metrics().CapacityBps
		prev, seen := d.lastCapacity[l.ID]
		if seen && capBps < prev {
			drop := float64(prev-capBps) / float64(prev+1)
			s.penalty += drop * float64(prev)
		} else {
			s.penalty *= 0.8 // exponential decay on recovery/refresh
		}
		d.lastCapacity[l.ID] = capBps

		if !l.IsEligible() {
			continue
		}
		q := d.quantum(l)
		l.Credit += q
		if l.Credit > q {
			l.Credit = q // bound unused build-up to a single quantum
		}
	}
}

// Debit subtracts size bytes of credit on a successful send.
func (d *dwrr) Debit(l *link.Link, size int) {
	l.Credit -= int64(size)
}

// Refund restores size bytes of credit after a failed send.
func (d *dwrr) Refund(l *link.Link, size int) {
	l.Credit += int64(size)
}

// Pick selects the link with the highest credit among candidates,
// rotating the tie-break start point each call so equal-credit links
// alternate rather than one perpetually winning ties.
func (d *dwrr) Pick(candidates []*link.Link) *link.Link {
	if len(candidates) == 0 {
		return nil
	}
	d.rrCursor = (d.rrCursor + 1) % len(candidates)
	best := candidates[d.rrCursor]
	for i := 1; i < len(candidates); i++ {
		l := candidates[(d.rrCursor+i)%len(candidates)]
		if l.Credit > best.Credit {
			best = l
		}
	}
	return best
}
