// Package stats holds the atomically-swapped, immutable telemetry
// snapshots published by the sender and receiver control loops so readers
// never lock the control thread.
package stats

import "sync/atomic"

// SenderSnapshot is a point-in-time view of sender-side telemetry.
type SenderSnapshot struct {
	BytesSent        uint64
	PacketsSent      uint64
	SendFailures     uint64
	TotalDeadDrops   uint64
	TargetBitrateKbps uint32
	LinkCount        int
	FailoverActive   bool
}

// ReceiverSnapshot is a point-in-time view of receiver-side telemetry,
// mirroring the external interface's described fields.
type ReceiverSnapshot struct {
	QueueDepth        int
	NextSeq           uint64
	Lost              uint64
	Late              uint64
	Duplicate         uint64
	Delivered         uint64
	CurrentLatencyMs  float64
	TargetLatencyMs   float64
	JitterMs          float64
	LossRate          float64
}

// SenderRegistry publishes SenderSnapshot values without locking readers
// against the control thread.
type SenderRegistry struct {
	ptr atomic.Pointer[SenderSnapshot]
}

// NewSenderRegistry creates a registry seeded with a zero snapshot.
func NewSenderRegistry() *SenderRegistry {
	r := &SenderRegistry{}
	r.Publish(SenderSnapshot{})
	return r
}

// Publish atomically swaps in a new immutable snapshot.
func (r *SenderRegistry) Publish(s SenderSnapshot) {
	r.ptr.Store(&s)
}

// Load returns the latest published snapshot.
func (r *SenderRegistry) Load() SenderSnapshot {
	return *r.ptr.Load()
}

// ReceiverRegistry publishes ReceiverSnapshot values.
type ReceiverRegistry struct {
	ptr atomic.Pointer[ReceiverSnapshot]
}

// NewReceiverRegistry creates a registry seeded with a zero snapshot.
func NewReceiverRegistry() *ReceiverRegistry {
	r := &ReceiverRegistry{}
	r.Publish(ReceiverSnapshot{})
	return r
}

// Publish atomically swaps in a new immutable snapshot.
func (r *ReceiverRegistry) Publish(s ReceiverSnapshot) {
	r.ptr.Store(&s)
}

// Load returns the latest published snapshot.
func (r *ReceiverRegistry) Load() ReceiverSnapshot {
	return *r.ptr.Load()
}

// Header names SenderSnapshot's columns in CSVLog row order.
func (SenderSnapshot) Header() []string {
	return []string{"BytesSent", "PacketsSent", "SendFailures", "TotalDeadDrops", "TargetBitrateKbps", "LinkCount", "FailoverActive"}
}

// Row renders s as a CSVLog data row, matching Header's column order.
func (s SenderSnapshot) Row() []string {
	return []string{
		formatUint(s.BytesSent), formatUint(s.PacketsSent), formatUint(s.SendFailures),
		formatUint(s.TotalDeadDrops), formatUint(uint64(s.TargetBitrateKbps)),
		formatUint(uint64(s.LinkCount)), formatBool(s.FailoverActive),
	}
}

// Header names ReceiverSnapshot's columns in CSVLog row order.
func (ReceiverSnapshot) Header() []string {
	return []string{"QueueDepth", "NextSeq", "Lost", "Late", "Duplicate", "Delivered", "CurrentLatencyMs", "TargetLatencyMs", "JitterMs", "LossRate"}
}

// Row renders s as a CSVLog data row, matching Header's column order.
func (s ReceiverSnapshot) Row() []string {
	return []string{
		formatUint(uint64(s.QueueDepth)), formatUint(s.NextSeq), formatUint(s.Lost),
		formatUint(s.Late), formatUint(s.Duplicate), formatUint(s.Delivered),
		formatFloat(s.CurrentLatencyMs), formatFloat(s.TargetLatencyMs),
		formatFloat(s.JitterMs), formatFloat(s.LossRate),
	}
}
