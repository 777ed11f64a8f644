package bitrate

import (
	"testing"
	"time"

	"github.com/bondrelay/bond/wire"
)

func testConfig() Config {
	return Config{
		CongestionHeadroomRatio: 0.85,
		CongestionTriggerRatio: 0.95,
		ResidualLossThreshold:  0.1,
		AiStepRatio:            0.05,
		DecreaseCooldown:       500 * time.Millisecond,
		MinKbps:                200,
		MaxKbps:                8000,
	}
}

// TestScenarioCapacityStep: aggregate capacity drops 50% mid-stream; within
// 8s (simulated as repeated Evaluate ticks) the emitted target_bitrate
// settles at or below headroom_ratio * new_capacity * 1.05.
func TestScenarioCapacityStep(t *testing.T) {
	cfg := testConfig()
	cfg.DecreaseCooldown = 0
	c := New(cfg)

	now := time.Now()
	capacity := uint64(6_000_000) // 6 Mbps
	fb := ReceiverFeedback{GoodputBps: 5_000_000}

	for i := 0; i < 20; i++ {
		now = now.Add(200 * time.Millisecond)
		if cmd, ok := c.Evaluate(now, capacity, fb); ok {
			_ = cmd
		}
	}

	// Step: capacity halves.
	capacity = 3_000_000
	fb.GoodputBps = 2_900_000 // near-saturating, triggers congestion signal

	limit := cfg.CongestionHeadroomRatio * float64(capacity) * 1.05 / 1000
	for i := 0; i < 40; i++ { // 40 * 200ms = 8s
		now = now.Add(200 * time.Millisecond)
		c.Evaluate(now, capacity, fb)
	}

	if float64(c.CurrentKbps()) > limit {
		t.Fatalf("target bitrate %d kbps exceeds headroom limit %.1f kbps after capacity step", c.CurrentKbps(), limit)
	}
}

func TestCongestionEmitsCongestionReason(t *testing.T) {
	cfg := testConfig()
	cfg.DecreaseCooldown = 0
	c := New(cfg)
	c.currentTargetKbps = 4000
	now := time.Now()
	cmd, ok := c.Evaluate(now, 4_000_000, ReceiverFeedback{GoodputBps: 3_900_000})
	if !ok {
		t.Fatal("expected a bitrate command on congestion")
	}
	if cmd.Reason != wire.BitrateReasonCongestion {
		t.Fatalf("reason = %v, want Congestion", cmd.Reason)
	}
	if cmd.TargetKbps >= 4000 {
		t.Fatalf("target should decrease under congestion: got %d", cmd.TargetKbps)
	}
}

func TestResidualLossEmitsLinkFailureReason(t *testing.T) {
	cfg := testConfig()
	cfg.DecreaseCooldown = 0
	c := New(cfg)
	c.currentTargetKbps = 4000
	now := time.Now()
	cmd, ok := c.Evaluate(now, 4_000_000, ReceiverFeedback{ResidualLoss: 0.2})
	if !ok {
		t.Fatal("expected a bitrate command on residual loss")
	}
	if cmd.Reason != wire.BitrateReasonLinkFailure {
		t.Fatalf("reason = %v, want LinkFailure", cmd.Reason)
	}
}

func TestDecreaseCooldownRateLimits(t *testing.T) {
	cfg := testConfig()
	cfg.DecreaseCooldown = time.Second
	c := New(cfg)
	c.currentTargetKbps = 4000
	now := time.Now()
	_, first := c.Evaluate(now, 4_000_000, ReceiverFeedback{ResidualLoss: 0.5})
	if !first {
		t.Fatal("expected first decrease to fire")
	}
	_, second := c.Evaluate(now.Add(10*time.Millisecond), 2_000_000, ReceiverFeedback{ResidualLoss: 0.5})
	if second {
		t.Fatal("second decrease within cooldown should not fire a new decrease")
	}
}

func TestEnvelopeClampsTarget(t *testing.T) {
	c := New(testConfig())
	c.SetEnvelope(500, 1000)
	if c.CurrentKbps() < 500 || c.CurrentKbps() > 1000 {
		t.Fatalf("current target %d outside new envelope [500,1000]", c.CurrentKbps())
	}
}
