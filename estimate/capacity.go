package estimate

import "time"

// CapacityConfig carries the AIMD tuning knobs the estimator needs, a
// subset of config.SchedulerConfig plus the rtt ratio thresholds.
type CapacityConfig struct {
	CongestionRatio   float64 // rtt/baseline above this triggers MD
	HeadroomRatio     float64 // rtt/baseline below this allows AI
	MdFactor          float64
	AiStepRatio       float64
	DecreaseCooldown  time.Duration
	LossMdThreshold   float64
	CapacityFloorBps  int
	MaxCapacityBps    int // 0 means unbounded
}

// Capacity is a per-link delay-gradient AIMD capacity estimator: it tracks
// a fast and slow min-RTT window and reacts to the ratio between current
// RTT and the slow baseline, plus an independent loss-triggered MD.
type Capacity struct {
	cfg CapacityConfig

	fastMinRtt float64
	slowMinRtt float64

	estimate float64

	lastDecreaseAt time.Time
	haveDecreased  bool
}

// NewCapacity creates an estimator seeded at initialBps.
func NewCapacity(cfg CapacityConfig, initialBps int) *Capacity {
	return &Capacity{cfg: cfg, estimate: float64(initialBps)}
}

// Sample feeds an RTT sample (ms) and the current loss rate (0-1), updates
// the internal min-RTT windows, and returns the new capacity estimate.
func (c *Capacity) Sample(now time.Time, rttMs, lossRate float64) int {
	if c.fastMinRtt == 0 || rttMs < c.fastMinRtt {
		c.fastMinRtt = rttMs
	}
	if c.slowMinRtt == 0 || rttMs < c.slowMinRtt {
		c.slowMinRtt = rttMs
	} else {
		// Slow window decays toward the current sample so a baseline
		// shift (new best path) is eventually tracked.
		c.slowMinRtt += (rttMs - c.slowMinRtt) * 0.01
	}

	canDecrease := !c.haveDecreased || now.Sub(c.lastDecreaseAt) >= c.cfg.DecreaseCooldown

	ratio := 1.0
	if c.slowMinRtt > 0 {
		ratio = rttMs / c.slowMinRtt
	}

	switch {
	case lossRate > c.cfg.LossMdThreshold && canDecrease:
		c.decrease(now)
	case ratio > c.cfg.CongestionRatio && canDecrease:
		c.decrease(now)
	case ratio < c.cfg.HeadroomRatio:
		c.estimate += c.cfg.AiStepRatio * c.estimate
	}

	c.clamp()
	return int(c.estimate)
}

func (c *Capacity) decrease(now time.Time) {
	c.estimate *= c.cfg.MdFactor
	c.lastDecreaseAt = now
	c.haveDecreased = true
}

func (c *Capacity) clamp() {
	if c.estimate < float64(c.cfg.CapacityFloorBps) {
		c.estimate = float64(c.cfg.CapacityFloorBps)
	}
	if c.cfg.MaxCapacityBps > 0 && c.estimate > float64(c.cfg.MaxCapacityBps) {
		c.estimate = float64(c.cfg.MaxCapacityBps)
	}
}

// Estimate returns the current capacity estimate without feeding a sample.
func (c *Capacity) Estimate() int { return int(c.estimate) }
