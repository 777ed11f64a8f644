package estimate

import (
	"testing"
	"time"
)

func TestKalmanRTTConvergesToConstant(t *testing.T) {
	k := NewKalmanRTT()
	var last float64
	for i := 0; i < 200; i++ {
		last = k.Update(50)
	}
	if diff := last - 50; diff > 0.5 || diff < -0.5 {
		t.Fatalf("kalman did not converge to constant RTT: got %v", last)
	}
}

func TestKalmanRTTSmoothsNoise(t *testing.T) {
	k := NewKalmanRTT()
	samples := []float64{50, 80, 40, 90, 30, 95, 45}
	var out []float64
	for _, s := range samples {
		out = append(out, k.Update(s))
	}
	// The filtered trajectory should have materially smaller spread than
	// the raw samples did.
	var rawMax, rawMin, outMax, outMin float64
	rawMax, rawMin = samples[0], samples[0]
	outMax, outMin = out[0], out[0]
	for _, v := range samples {
		if v > rawMax {
			rawMax = v
		}
		if v < rawMin {
			rawMin = v
		}
	}
	for _, v := range out {
		if v > outMax {
			outMax = v
		}
		if v < outMin {
			outMin = v
		}
	}
	if (outMax - outMin) >= (rawMax - rawMin) {
		t.Fatalf("filtered spread (%v) not smaller than raw spread (%v)", outMax-outMin, rawMax-rawMin)
	}
}

func testCapacityConfig() CapacityConfig {
	return CapacityConfig{
		CongestionRatio:  1.5,
		HeadroomRatio:    1.1,
		MdFactor:         0.7,
		AiStepRatio:      0.05,
		DecreaseCooldown: 500 * time.Millisecond,
		LossMdThreshold:  0.1,
		CapacityFloorBps: 64_000,
		MaxCapacityBps:   10_000_000,
	}
}

func TestCapacityDecreasesOnRttSpike(t *testing.T) {
	c := NewCapacity(testCapacityConfig(), 1_000_000)
	now := time.Now()
	for i := 0; i < 20; i++ {
		c.Sample(now, 20, 0)
		now = now.Add(10 * time.Millisecond)
	}
	before := c.Estimate()
	now = now.Add(time.Second)
	after := c.Sample(now, 80, 0) // 4x baseline RTT
	if after >= before {
		t.Fatalf("capacity should decrease on RTT spike: before=%d after=%d", before, after)
	}
}

func TestCapacityIncreasesWhenHeadroomAvailable(t *testing.T) {
	c := NewCapacity(testCapacityConfig(), 1_000_000)
	now := time.Now()
	c.Sample(now, 20, 0)
	before := c.Estimate()
	now = now.Add(10 * time.Millisecond)
	after := c.Sample(now, 20, 0)
	if after < before {
		t.Fatalf("capacity should not decrease under steady low RTT: before=%d after=%d", before, after)
	}
}

func TestCapacityRespectsFloor(t *testing.T) {
	cfg := testCapacityConfig()
	cfg.DecreaseCooldown = 0
	c := NewCapacity(cfg, 70_000)
	now := time.Now()
	c.Sample(now, 20, 0)
	for i := 0; i < 50; i++ {
		now = now.Add(time.Millisecond)
		c.Sample(now, 200, 0)
	}
	if c.Estimate() < cfg.CapacityFloorBps {
		t.Fatalf("capacity dropped below floor: %d", c.Estimate())
	}
}

func TestCapacityDecreasesOnSustainedLoss(t *testing.T) {
	cfg := testCapacityConfig()
	cfg.DecreaseCooldown = 0
	c := NewCapacity(cfg, 1_000_000)
	now := time.Now()
	c.Sample(now, 20, 0)
	before := c.Estimate()
	after := c.Sample(now, 20, 0.5)
	if after >= before {
		t.Fatalf("sustained loss above threshold should trigger MD: before=%d after=%d", before, after)
	}
}
