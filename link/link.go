// Package link implements the per-link lifecycle state machine: phase
// transitions driven by consecutive good/bad sample counts and stats
// freshness, plus the Link struct carrying a link's smoothed metrics.
package link

import (
	"time"

	"github.com/bondrelay/bond/config"
)

// Phase is a link's lifecycle state.
type Phase int

const (
	Probe Phase = iota
	Warm
	Live
	Degrade
	Cooldown
	Reset
)

func (p Phase) String() string {
	switch p {
	case Probe:
		return "probe"
	case Warm:
		return "warm"
	case Live:
		return "live"
	case Degrade:
		return "degrade"
	case Cooldown:
		return "cooldown"
	case Reset:
		return "reset"
	default:
		return "unknown"
	}
}

// Metrics is a link's latest smoothed sample.
type Metrics struct {
	RttMs          float64
	LossRate       float64
	CapacityBps    int
	ObservedBps    int
	LastSampleTime time.Time
}

// Link tracks one bonded path: identity, lifecycle phase, smoothed metrics,
// DWRR credit, and consecutive good/bad sample counters.
type Link struct {
	ID    uint8
	URI   string
	OSUp  bool

	phase Phase

	consecutiveGood int
	consecutiveBad  int

	cooldownEnteredAt time.Time

	metrics Metrics

	// Credit is the DWRR deficit counter, owned by sched but stored here
	// since the link is the natural home for per-link accounting state.
	Credit int64

	// CumulativeBytes is the lifetime byte counter used for DWRR fairness
	// observation and stats.
	CumulativeBytes uint64

	cfg config.LifecycleConfig
}

// New creates a link in Probe phase.
func New(id uint8, uri string, cfg config.LifecycleConfig) *Link {
	return &Link{ID: id, URI: uri, OSUp: true, phase: Probe, cfg: cfg}
}

// Phase returns the link's current lifecycle phase.
func (l *Link) Phase() Phase { return l.phase }

// Metrics returns the link's latest smoothed metrics.
func (l *Link) Metrics() Metrics { return l.metrics }

// IsEligible reports whether the link may currently carry data traffic:
// not Cooldown/Reset, and OS-up.
func (l *Link) IsEligible() bool {
	if !l.OSUp {
		return false
	}
	return l.phase != Cooldown && l.phase != Reset
}

// isGood applies the spec's "good sample" predicate: low loss, and RTT /
// capacity lower bounds guarding against trivially-good zero samples.
func (l *Link) isGood(m Metrics) bool {
	if m.LossRate > l.cfg.GoodLossRateMax {
		return false
	}
	if m.RttMs < l.cfg.GoodRttMsMin {
		return false
	}
	if m.CapacityBps < l.cfg.GoodCapacityBpsMin {
		return false
	}
	return true
}

// Sample feeds a new metrics observation, updates the smoothed state
// (EWMA smoothing happens in the caller/estimator; this only stores the
// latest value and runs the phase transition table), and returns the new
// phase alongside whether it changed from before the call.
func (l *Link) Sample(now time.Time, m Metrics) (newPhase Phase, changed bool) {
	prev := l.phase
	m.LastSampleTime = now
	l.metrics = m

	if l.phase == Reset {
		l.phase = Probe
		l.consecutiveGood, l.consecutiveBad = 0, 0
		return l.phase, l.phase != prev
	}

	if l.phase == Cooldown {
		if now.Sub(l.cooldownEnteredAt) >= time.Duration(l.cfg.CooldownMs)*time.Millisecond {
			l.phase = Reset
		}
		return l.phase, l.phase != prev
	}

	if l.isGood(m) {
		l.consecutiveGood++
		l.consecutiveBad = 0
	} else {
		l.consecutiveBad++
		l.consecutiveGood = 0
	}

	switch l.phase {
	case Probe:
		if l.consecutiveGood >= l.cfg.ProbeToWarmGood {
			l.phase = Warm
		}
	case Warm:
		if l.consecutiveGood >= l.cfg.WarmToLiveGood {
			l.phase = Live
		} else if l.consecutiveBad >= l.cfg.WarmToDegradeBad {
			l.phase = Degrade
		}
	case Live:
		if l.consecutiveBad >= l.cfg.LiveToDegradeBad {
			l.phase = Degrade
		}
	case Degrade:
		if l.consecutiveGood >= l.cfg.DegradeToWarmGood {
			l.phase = Warm
		} else if l.consecutiveBad >= l.cfg.DegradeToCooldown {
			l.phase = Cooldown
			l.cooldownEnteredAt = now
		}
	}

	if l.phase != prev {
		l.consecutiveGood, l.consecutiveBad = 0, 0
	}
	return l.phase, l.phase != prev
}

// Fresh reports whether the last sample is within FreshMs of now.
func (l *Link) Fresh(now time.Time) bool {
	if l.metrics.LastSampleTime.IsZero() {
		return false
	}
	return now.Sub(l.metrics.LastSampleTime) <= time.Duration(l.cfg.FreshMs)*time.Millisecond
}

// Stale reports whether the last sample is older than StaleMs.
func (l *Link) Stale(now time.Time) bool {
	if l.metrics.LastSampleTime.IsZero() {
		return true
	}
	return now.Sub(l.metrics.LastSampleTime) > time.Duration(l.cfg.StaleMs)*time.Millisecond
}

// ForceCooldown transitions the link directly into Cooldown, independent
// of sampled metrics. The scheduler does not call it on send failures.
func (l *Link) ForceCooldown(now time.Time) {
	if l.phase == Cooldown || l.phase == Reset {
		return
	}
	l.phase = Cooldown
	l.cooldownEnteredAt = now
	l.consecutiveGood, l.consecutiveBad = 0, 0
}
