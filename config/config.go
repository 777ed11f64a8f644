// Package config resolves raw, optional, user-supplied configuration into
// a fully-populated, clamped Config, following the same two-struct pattern
// the rest of this codebase uses for anything with defaults and bounds.
package config

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// CurrentVersion is the only config schema version this build accepts.
const CurrentVersion = 1

// SchedulerInput is the optional, pre-resolution form of SchedulerConfig.
type SchedulerInput struct {
	EwmaAlpha               *float64 `json:"ewma_alpha,omitempty"`
	RedundancyEnabled       *bool    `json:"redundancy_enabled,omitempty"`
	RedundancySpareRatio    *float64 `json:"redundancy_spare_ratio,omitempty"`
	RedundancyTargetLinks   *int     `json:"redundancy_target_links,omitempty"`
	RedundancyMaxPacketSize *int     `json:"redundancy_max_packet_bytes,omitempty"`
	CriticalBroadcast       *bool    `json:"critical_broadcast,omitempty"`
	FailoverRttSpikeFactor  *float64 `json:"failover_rtt_spike_factor,omitempty"`
	FailoverDurationMs      *int     `json:"failover_duration_ms,omitempty"`
	CongestionHeadroomRatio *float64 `json:"congestion_headroom_ratio,omitempty"`
	CongestionTriggerRatio  *float64 `json:"congestion_trigger_ratio,omitempty"`
	MdFactor                *float64 `json:"md_factor,omitempty"`
	AiStepRatio             *float64 `json:"ai_step_ratio,omitempty"`
	DecreaseCooldownMs      *int     `json:"decrease_cooldown_ms,omitempty"`
	ChannelCapacity         *int     `json:"channel_capacity,omitempty"`
	StatsIntervalMs         *int     `json:"stats_interval_ms,omitempty"`
	CapacityFloorBps        *int     `json:"capacity_floor_bps,omitempty"`
	LinkRateCeilingBps      *int     `json:"link_rate_ceiling_bps,omitempty"`
}

// SchedulerConfig is the resolved, clamped scheduler configuration.
type SchedulerConfig struct {
	EwmaAlpha               float64
	RedundancyEnabled       bool
	RedundancySpareRatio    float64
	RedundancyTargetLinks   int
	RedundancyMaxPacketSize int
	CriticalBroadcast       bool
	FailoverRttSpikeFactor  float64
	FailoverDurationMs      int
	CongestionHeadroomRatio float64
	CongestionTriggerRatio  float64
	MdFactor                float64
	AiStepRatio             float64
	DecreaseCooldownMs      int
	ChannelCapacity         int
	StatsIntervalMs         int
	CapacityFloorBps        int
	// LinkRateCeilingBps paces each link's outbound bytes/sec; 0 disables
	// pacing and lets the scheduler's own capacity estimate be the only
	// ceiling.
	LinkRateCeilingBps int
}

// LifecycleInput is the optional form of LifecycleConfig.
type LifecycleInput struct {
	GoodLossRateMax    *float64 `json:"good_loss_rate_max,omitempty"`
	GoodRttMsMin       *float64 `json:"good_rtt_ms_min,omitempty"`
	GoodCapacityBpsMin *int     `json:"good_capacity_bps_min,omitempty"`
	ProbeToWarmGood    *int     `json:"probe_to_warm_good,omitempty"`
	WarmToLiveGood     *int     `json:"warm_to_live_good,omitempty"`
	WarmToDegradeBad   *int     `json:"warm_to_degrade_bad,omitempty"`
	LiveToDegradeBad   *int     `json:"live_to_degrade_bad,omitempty"`
	DegradeToWarmGood  *int     `json:"degrade_to_warm_good,omitempty"`
	DegradeToCooldown  *int     `json:"degrade_to_cooldown_bad,omitempty"`
	CooldownMs         *int     `json:"cooldown_ms,omitempty"`
	FreshMs            *int     `json:"fresh_ms,omitempty"`
	StaleMs            *int     `json:"stale_ms,omitempty"`
}

// LifecycleConfig is the resolved per-edge transition threshold table.
type LifecycleConfig struct {
	GoodLossRateMax    float64
	GoodRttMsMin       float64
	GoodCapacityBpsMin int
	ProbeToWarmGood    int
	WarmToLiveGood     int
	WarmToDegradeBad   int
	LiveToDegradeBad   int
	DegradeToWarmGood  int
	DegradeToCooldown  int
	CooldownMs         int
	FreshMs            int
	StaleMs            int
}

// ReceiverInput is the optional form of ReceiverConfig.
type ReceiverInput struct {
	BufferCapacity       *int     `json:"buffer_capacity,omitempty"`
	StartLatencyMs       *int     `json:"start_latency_ms,omitempty"`
	MinLatencyMs         *int     `json:"min_latency_ms,omitempty"`
	MaxLatencyMs         *int     `json:"max_latency_ms,omitempty"`
	JitterMultiplier     *float64 `json:"jitter_multiplier,omitempty"`
	LossPenaltyMs        *float64 `json:"loss_penalty_ms,omitempty"`
	StabilityThresholdMs *int     `json:"stability_threshold_ms,omitempty"`
	RampUpAlpha          *float64 `json:"ramp_up_alpha,omitempty"`
	RampDownAlpha        *float64 `json:"ramp_down_alpha,omitempty"`
	SkipAfterMs          *int     `json:"skip_after_ms,omitempty"`
}

// ReceiverConfig is the resolved reassembly-buffer configuration.
type ReceiverConfig struct {
	BufferCapacity       int
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

// Input is the raw, user-facing configuration: every field optional, any
// unset field is filled from defaults during Resolve.
type Input struct {
	Version   int             `json:"version"`
	Scheduler *SchedulerInput `json:"scheduler,omitempty"`
	Lifecycle *LifecycleInput `json:"lifecycle,omitempty"`
	Receiver  *ReceiverInput  `json:"receiver,omitempty"`
}

// Config is the fully resolved, clamped configuration consumed by the rest
// of the module.
type Config struct {
	Version   int
	Scheduler SchedulerConfig
	Lifecycle LifecycleConfig
	Receiver  ReceiverConfig
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

func orF(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func orI(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func orB(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func defaultScheduler() SchedulerConfig {
	return SchedulerConfig{
		EwmaAlpha:               0.1,
		RedundancyEnabled:       true,
		RedundancySpareRatio:    0.3,
		RedundancyTargetLinks:   2,
		RedundancyMaxPacketSize: 1400,
		CriticalBroadcast:       true,
		FailoverRttSpikeFactor:  3.0,
		FailoverDurationMs:      2000,
		CongestionHeadroomRatio: 0.85,
		CongestionTriggerRatio:  0.95,
		MdFactor:                0.7,
		AiStepRatio:             0.05,
		DecreaseCooldownMs:      500,
		ChannelCapacity:         64,
		StatsIntervalMs:         1000,
		CapacityFloorBps:        64_000,
		LinkRateCeilingBps:      0,
	}
}

func defaultLifecycle() LifecycleConfig {
	return LifecycleConfig{
		GoodLossRateMax:    0.05,
		GoodRttMsMin:       0,
		GoodCapacityBpsMin: 0,
		ProbeToWarmGood:    3,
		WarmToLiveGood:     5,
		WarmToDegradeBad:   3,
		LiveToDegradeBad:   3,
		DegradeToWarmGood:  5,
		DegradeToCooldown:  5,
		CooldownMs:         5000,
		FreshMs:            2000,
		StaleMs:            5000,
	}
}

func defaultReceiver() ReceiverConfig {
	return ReceiverConfig{
		BufferCapacity:       256,
		StartLatencyMs:       50,
		MinLatencyMs:         20,
		MaxLatencyMs:         2000,
		JitterMultiplier:     3.0,
		LossPenaltyMs:        200,
		StabilityThresholdMs: 2000,
		RampUpAlpha:          0.3,
		RampDownAlpha:        0.02,
		SkipAfterMs:          100,
	}
}

// Resolve fills defaults, clamps every bounded field, and validates the
// version. An unsupported version is a wrapped error surfaced to the
// caller, per the rest of the core never surfacing per-field bounds
// violations (those are clamped silently instead).
func Resolve(in Input) (Config, error) {
	if in.Version == 0 {
		in.Version = CurrentVersion
	}
	if in.Version != CurrentVersion {
		return Config{}, errors.Errorf("config: unsupported version %d (want %d)", in.Version, CurrentVersion)
	}

	sched := defaultScheduler()
	if si := in.Scheduler; si != nil {
		sched.EwmaAlpha = clampF(orF(si.EwmaAlpha, sched.EwmaAlpha), 0.001, 1.0)
		sched.RedundancyEnabled = orB(si.RedundancyEnabled, sched.RedundancyEnabled)
		sched.RedundancySpareRatio = clampF(orF(si.RedundancySpareRatio, sched.RedundancySpareRatio), 0, 1)
		sched.RedundancyTargetLinks = clampI(orI(si.RedundancyTargetLinks, sched.RedundancyTargetLinks), 1, 0)
		sched.RedundancyMaxPacketSize = clampI(orI(si.RedundancyMaxPacketSize, sched.RedundancyMaxPacketSize), 0, 0)
		sched.CriticalBroadcast = orB(si.CriticalBroadcast, sched.CriticalBroadcast)
		sched.FailoverRttSpikeFactor = clampF(orF(si.FailoverRttSpikeFactor, sched.FailoverRttSpikeFactor), 1, 100)
		sched.FailoverDurationMs = clampI(orI(si.FailoverDurationMs, sched.FailoverDurationMs), 0, 0)
		sched.CongestionHeadroomRatio = clampF(orF(si.CongestionHeadroomRatio, sched.CongestionHeadroomRatio), 0, 1)
		sched.CongestionTriggerRatio = clampF(orF(si.CongestionTriggerRatio, sched.CongestionTriggerRatio), 0, 1)
		sched.MdFactor = clampF(orF(si.MdFactor, sched.MdFactor), 0.1, 1)
		sched.AiStepRatio = clampF(orF(si.AiStepRatio, sched.AiStepRatio), 0.001, 1)
		sched.DecreaseCooldownMs = clampI(orI(si.DecreaseCooldownMs, sched.DecreaseCooldownMs), 50, 0)
		sched.ChannelCapacity = clampI(orI(si.ChannelCapacity, sched.ChannelCapacity), 16, 0)
		sched.StatsIntervalMs = clampI(orI(si.StatsIntervalMs, sched.StatsIntervalMs), 100, 0)
		sched.CapacityFloorBps = clampI(orI(si.CapacityFloorBps, sched.CapacityFloorBps), 0, 0)
		sched.LinkRateCeilingBps = clampI(orI(si.LinkRateCeilingBps, sched.LinkRateCeilingBps), 0, 0)
	}

	life := defaultLifecycle()
	if li := in.Lifecycle; li != nil {
		life.GoodLossRateMax = clampF(orF(li.GoodLossRateMax, life.GoodLossRateMax), 0, 1)
		life.GoodRttMsMin = clampF(orF(li.GoodRttMsMin, life.GoodRttMsMin), 0, 0)
		life.GoodCapacityBpsMin = clampI(orI(li.GoodCapacityBpsMin, life.GoodCapacityBpsMin), 0, 0)
		life.ProbeToWarmGood = clampI(orI(li.ProbeToWarmGood, life.ProbeToWarmGood), 0, 0)
		life.WarmToLiveGood = clampI(orI(li.WarmToLiveGood, life.WarmToLiveGood), 0, 0)
		life.WarmToDegradeBad = clampI(orI(li.WarmToDegradeBad, life.WarmToDegradeBad), 0, 0)
		life.LiveToDegradeBad = clampI(orI(li.LiveToDegradeBad, life.LiveToDegradeBad), 0, 0)
		life.DegradeToWarmGood = clampI(orI(li.DegradeToWarmGood, life.DegradeToWarmGood), 0, 0)
		life.DegradeToCooldown = clampI(orI(li.DegradeToCooldown, life.DegradeToCooldown), 0, 0)
		life.CooldownMs = clampI(orI(li.CooldownMs, life.CooldownMs), 0, 0)
		life.FreshMs = clampI(orI(li.FreshMs, life.FreshMs), 0, 0)
		life.StaleMs = clampI(orI(li.StaleMs, life.StaleMs), 0, 0)
	}

	recv := defaultReceiver()
	if ri := in.Receiver; ri != nil {
		recv.BufferCapacity = clampI(orI(ri.BufferCapacity, recv.BufferCapacity), 16, 0)
		recv.StartLatencyMs = clampI(orI(ri.StartLatencyMs, recv.StartLatencyMs), 0, 0)
		recv.MinLatencyMs = clampI(orI(ri.MinLatencyMs, recv.MinLatencyMs), 0, 0)
		recv.MaxLatencyMs = clampI(orI(ri.MaxLatencyMs, recv.MaxLatencyMs), recv.MinLatencyMs, 0)
		recv.JitterMultiplier = clampF(orF(ri.JitterMultiplier, recv.JitterMultiplier), 0, 0)
		recv.LossPenaltyMs = clampF(orF(ri.LossPenaltyMs, recv.LossPenaltyMs), 0, 0)
		recv.StabilityThresholdMs = clampI(orI(ri.StabilityThresholdMs, recv.StabilityThresholdMs), 0, 0)
		recv.RampUpAlpha = clampF(orF(ri.RampUpAlpha, recv.RampUpAlpha), 0.001, 1)
		recv.RampDownAlpha = clampF(orF(ri.RampDownAlpha, recv.RampDownAlpha), 0.001, 1)
		recv.SkipAfterMs = clampI(orI(ri.SkipAfterMs, recv.SkipAfterMs), 0, 0)
	}
	if recv.BufferCapacity < 16 {
		recv.BufferCapacity = 16
	}

	return Config{Version: in.Version, Scheduler: sched, Lifecycle: life, Receiver: recv}, nil
}

// ParseJSON decodes a raw JSON document into an Input and resolves it,
// mirroring the server's parseJSONConfig: unknown top-level keys are
// rejected rather than silently ignored.
func ParseJSON(data []byte) (Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var in Input
	if err := dec.Decode(&in); err != nil {
		return Config{}, errors.Wrap(err, "config: decode")
	}
	return Resolve(in)
}
