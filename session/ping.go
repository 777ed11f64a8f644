package session

import "time"

// PingTracker issues Ping/Pong RTT probes on an interval, but skips a probe
// on a link that has carried data traffic recently — avoiding redundant
// probe traffic on links that are already yielding fresh RTT samples from
// their data flow.
type PingTracker struct {
	interval time.Duration

	lastPingAt map[uint8]time.Time
	lastDataAt map[uint8]time.Time

	nextID uint16
}

// NewPingTracker creates a tracker that probes every interval.
func NewPingTracker(interval time.Duration) *PingTracker {
	return &PingTracker{
		interval:   interval,
		lastPingAt: make(map[uint8]time.Time),
		lastDataAt: make(map[uint8]time.Time),
	}
}

// NoteDataSent records that data traffic was just sent on linkID.
func (p *PingTracker) NoteDataSent(linkID uint8, now time.Time) {
	p.lastDataAt[linkID] = now
}

// ShouldPing reports whether linkID is due for a fresh Ping: its last
// Ping was at least `interval` ago, and it hasn't carried data within
// interval/2.
func (p *PingTracker) ShouldPing(linkID uint8, now time.Time) bool {
	if last, ok := p.lastPingAt[linkID]; ok && now.Sub(last) < p.interval {
		return false
	}
	if lastData, ok := p.lastDataAt[linkID]; ok && now.Sub(lastData) < p.interval/2 {
		return false
	}
	return true
}

// NextPingID returns a fresh, wrapping ping identifier and marks linkID as
// just-pinged.
func (p *PingTracker) NextPingID(linkID uint8, now time.Time) uint16 {
	p.lastPingAt[linkID] = now
	id := p.nextID
	p.nextID++
	return id
}
