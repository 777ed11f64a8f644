// Package bitrate implements the closed-loop bitrate adaptation controller:
// aggregate link capacity plus receiver feedback drive periodic
// BitrateCmd events back to the media pipeline.
package bitrate

import (
	"time"

	"github.com/bondrelay/bond/wire"
)

// Config carries the adaptation loop's tuning knobs.
type Config struct {
	CongestionHeadroomRatio float64
	CongestionTriggerRatio  float64
	ResidualLossThreshold   float64
	AiStepRatio             float64
	DecreaseCooldown        time.Duration
	MinKbps                 uint32
	MaxKbps                 uint32
}

// ReceiverFeedback is the latest ReceiverReport-derived state the
// controller reacts to.
type ReceiverFeedback struct {
	GoodputBps     uint64
	ResidualLoss   float64
	JitterBufferMs uint32
}

// Controller closes the bitrate adaptation loop over per-link capacity
// estimates and receiver feedback.
type Controller struct {
	cfg Config

	currentTargetKbps uint32
	lastDecreaseAt    time.Time
	haveDecreased     bool

	recoveryStreak int
}

// New creates a controller seeded at the midpoint of the configured
// envelope.
func New(cfg Config) *Controller {
	start := cfg.MinKbps
	if cfg.MaxKbps > start {
		start = (cfg.MinKbps + cfg.MaxKbps) / 2
	}
	return &Controller{cfg: cfg, currentTargetKbps: start}
}

// SetEnvelope updates the min/max bitrate envelope (from
// Sender.SetAdaptationEnvelope), clamping the current target into range.
func (c *Controller) SetEnvelope(minKbps, maxKbps uint32) {
	c.cfg.MinKbps, c.cfg.MaxKbps = minKbps, maxKbps
	c.currentTargetKbps = clampU32(c.currentTargetKbps, minKbps, maxKbps)
}

// Evaluate is invoked periodically (typically on the stats tick) with the
// aggregate estimated capacity across all links and the latest receiver
// feedback; it returns a BitrateCmd when the target changes, or false when
// no change is warranted.
func (c *Controller) Evaluate(now time.Time, aggregateCapacityBps uint64, fb ReceiverFeedback) (wire.BitrateCmd, bool) {
	targetBps := c.cfg.CongestionHeadroomRatio * float64(aggregateCapacityBps)

	observedRatio := 0.0
	if aggregateCapacityBps > 0 {
		observedRatio = float64(fb.GoodputBps) / float64(aggregateCapacityBps)
	}

	canDecrease := !c.haveDecreased || now.Sub(c.lastDecreaseAt) >= c.cfg.DecreaseCooldown

	switch {
	case fb.ResidualLoss > c.cfg.ResidualLossThreshold && canDecrease:
		return c.applyDecrease(now, wire.BitrateReasonLinkFailure)
	case observedRatio > c.cfg.CongestionTriggerRatio && canDecrease:
		return c.applyDecrease(now, wire.BitrateReasonCongestion)
	default:
		newTarget := clampU32(uint32(targetBps/1000), c.cfg.MinKbps, c.cfg.MaxKbps)
		if newTarget > c.currentTargetKbps {
			step := uint32(float64(c.currentTargetKbps) * c.cfg.AiStepRatio)
			if step == 0 {
				step = 1
			}
			next := c.currentTargetKbps + step
			if next > newTarget {
				next = newTarget
			}
			if next > c.currentTargetKbps {
				c.currentTargetKbps = clampU32(next, c.cfg.MinKbps, c.cfg.MaxKbps)
				c.recoveryStreak++
				reason := wire.BitrateReasonCapacity
				if c.recoveryStreak > 1 {
					reason = wire.BitrateReasonRecovery
				}
				return wire.BitrateCmd{TargetKbps: c.currentTargetKbps, Reason: reason}, true
			}
		}
	}
	return wire.BitrateCmd{}, false
}

func (c *Controller) applyDecrease(now time.Time, reason wire.BitrateReason) (wire.BitrateCmd, bool) {
	step := uint32(float64(c.currentTargetKbps) * (1 - mdFactorFor(reason)))
	if step == 0 {
		step = 1
	}
	next := c.currentTargetKbps - step
	c.currentTargetKbps = clampU32(next, c.cfg.MinKbps, c.cfg.MaxKbps)
	c.lastDecreaseAt = now
	c.haveDecreased = true
	c.recoveryStreak = 0
	return wire.BitrateCmd{TargetKbps: c.currentTargetKbps, Reason: reason}, true
}

func mdFactorFor(reason wire.BitrateReason) float64 {
	if reason == wire.BitrateReasonLinkFailure {
		return 0.5
	}
	return 0.7
}

// CurrentKbps returns the controller's last emitted target without
// re-evaluating.
func (c *Controller) CurrentKbps() uint32 { return c.currentTargetKbps }

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
