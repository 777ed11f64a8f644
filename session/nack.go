package session

import (
	"sort"
	"time"

	"github.com/bondrelay/bond/wire"
)

// NackTracker watches for gaps that have persisted past a hold duration
// and emits coalesced ranges, capped at wire.MaxNackRanges.
type NackTracker struct {
	hold time.Duration

	firstSeenAt map[uint64]time.Time
	seen        map[uint64]bool
}

// NewNackTracker creates a tracker with the given gap hold duration.
func NewNackTracker(hold time.Duration) *NackTracker {
	return &NackTracker{hold: hold, firstSeenAt: make(map[uint64]time.Time), seen: make(map[uint64]bool)}
}

// ObserveReceived marks seq as received, clearing any pending gap record.
func (n *NackTracker) ObserveReceived(seq uint64) {
	n.seen[seq] = true
	delete(n.firstSeenAt, seq)
}

// ObserveGap records that seq is known missing as of now (first time
// seen); subsequent calls for the same seq don't reset its timer.
func (n *NackTracker) ObserveGap(seq uint64, now time.Time) {
	if n.seen[seq] {
		return
	}
	if _, ok := n.firstSeenAt[seq]; !ok {
		n.firstSeenAt[seq] = now
	}
}

// Pending returns the coalesced NACK ranges for gaps that have persisted
// at least `hold`, capped to wire.MaxNackRanges ranges.
func (n *NackTracker) Pending(now time.Time) []wire.NackRange {
	var stale []uint64
	for seq, at := range n.firstSeenAt {
		if now.Sub(at) >= n.hold {
			stale = append(stale, seq)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })

	var ranges []wire.NackRange
	start := stale[0]
	count := uint64(1)
	for i := 1; i < len(stale); i++ {
		if stale[i] == start+count {
			count++
			continue
		}
		ranges = append(ranges, wire.NackRange{Start: wire.VarInt(start), Count: wire.VarInt(count)})
		start = stale[i]
		count = 1
	}
	ranges = append(ranges, wire.NackRange{Start: wire.VarInt(start), Count: wire.VarInt(count)})

	if len(ranges) > wire.MaxNackRanges {
		ranges = ranges[:wire.MaxNackRanges]
	}
	return ranges
}

// Clear forgets gap-tracking state for sequences now covered by a repair
// or late arrival.
func (n *NackTracker) Clear(seq uint64) {
	delete(n.firstSeenAt, seq)
	n.seen[seq] = true
}
