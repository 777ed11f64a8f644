package jitterbuf

import (
	"bytes"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Capacity:             64,
		StartLatencyMs:       50,
		MinLatencyMs:         20,
		MaxLatencyMs:         2000,
		JitterMultiplier:     3,
		LossPenaltyMs:        200,
		StabilityThresholdMs: 2000,
		RampUpAlpha:          0.3,
		RampDownAlpha:        0.02,
		SkipAfterMs:          100,
	}
}

func TestScenarioInOrder(t *testing.T) {
	b := New(testConfig())
	start := time.Now()
	b.Push(2, []byte("P2"), start)
	b.Push(0, []byte("P0"), start)
	b.Push(1, []byte("P1"), start)

	released := b.Tick(start.Add(50 * time.Millisecond))
	if len(released) != 3 {
		t.Fatalf("expected 3 released packets, got %d: %v", len(released), released)
	}
	want := [][]byte{[]byte("P0"), []byte("P1"), []byte("P2")}
	for i, w := range want {
		if !bytes.Equal(released[i], w) {
			t.Fatalf("released[%d] = %q, want %q", i, released[i], w)
		}
	}
}

func TestScenarioDuplicate(t *testing.T) {
	b := New(testConfig())
	start := time.Now()
	b.Push(0, []byte("orig"), start)
	b.Push(0, []byte("dup"), start)

	if b.Stats().Duplicate != 1 {
		t.Fatalf("duplicate_packets = %d, want 1", b.Stats().Duplicate)
	}
	released := b.Tick(start.Add(60 * time.Millisecond))
	if len(released) != 1 || !bytes.Equal(released[0], []byte("orig")) {
		t.Fatalf("released = %v, want [orig]", released)
	}
}

func TestGapSkipping(t *testing.T) {
	cfg := testConfig()
	cfg.SkipAfterMs = 30
	b := New(cfg)
	start := time.Now()
	b.Push(0, []byte("P0"), start)
	b.Tick(start.Add(60 * time.Millisecond))

	// seq 1 never arrives; seq 3 arrives next.
	b.Push(3, []byte("P3"), start.Add(10*time.Millisecond))

	before := b.Stats().Lost
	released := b.Tick(start.Add(50 * time.Millisecond))
	after := b.Stats().Lost
	if after-before != 2 {
		t.Fatalf("gap skip should count 2 losses (seq 1,2), counted %d", after-before)
	}
	// next_seq jumps to 3 on the skip and then drains the already-ready
	// seq 3 packet in the same tick, landing on 4.
	if b.NextSeq() != 4 {
		t.Fatalf("next_seq = %d, want 4 after skip drains seq 3", b.NextSeq())
	}
	if len(released) != 1 || !bytes.Equal(released[0], []byte("P3")) {
		t.Fatalf("released = %v, want [P3]", released)
	}
}

func TestAdaptiveLatencyMonotonicUnderJitter(t *testing.T) {
	b := New(testConfig())
	start := time.Now()
	var prev float64
	increased := false
	for i := 0; i < 40; i++ {
		jitterMs := time.Duration(i%2*30+5) * time.Millisecond
		now := start.Add(time.Duration(i)*20*time.Millisecond + jitterMs)
		b.Push(uint64(i), []byte("x"), now)
		cur := b.CurrentLatencyMs()
		if cur < prev-0.001 {
			t.Fatalf("current latency decreased before stability window elapsed: prev=%v cur=%v at i=%d", prev, cur, i)
		}
		if cur > prev {
			increased = true
		}
		prev = cur
	}
	if !increased {
		t.Fatal("expected latency to ramp up under injected jitter")
	}
}

func TestDeliveredCounterAdvances(t *testing.T) {
	b := New(testConfig())
	start := time.Now()
	for i := 0; i < 5; i++ {
		b.Push(uint64(i), []byte("x"), start)
	}
	b.Tick(start.Add(100 * time.Millisecond))
	if b.Stats().Delivered != 5 {
		t.Fatalf("delivered = %d, want 5", b.Stats().Delivered)
	}
	if b.NextSeq() != 5 {
		t.Fatalf("next_seq = %d, want 5", b.NextSeq())
	}
}

func TestLateArrivalCounted(t *testing.T) {
	b := New(testConfig())
	start := time.Now()
	b.Push(5, []byte("x"), start)
	// nextSeq starts at 0: once seq 5 has waited past SkipAfterMs the gap
	// 0..4 is skipped and 5 is released, so a second 5 arrives late.
	b.Tick(start.Add(150 * time.Millisecond))
	b.Push(5, []byte("late"), start.Add(time.Millisecond))
	if b.Stats().Late != 1 {
		t.Fatalf("late = %d, want 1", b.Stats().Late)
	}
}
