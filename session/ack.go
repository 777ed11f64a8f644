package session

import "github.com/bondrelay/bond/wire"

// AckTracker accumulates received sequence numbers into the cumulative +
// 64-bit SACK representation the wire format carries. The bitmap's bit i
// (0-indexed) represents sequence cumulative+1+i.
type AckTracker struct {
	cumulative uint64
	haveAny    bool
	sackBitmap uint64
}

// NewAckTracker creates an empty tracker.
func NewAckTracker() *AckTracker { return &AckTracker{} }

// Observe records a received sequence number, advancing the cumulative
// watermark through any now-contiguous run and re-aligning the SACK
// bitmap to the new watermark.
func (a *AckTracker) Observe(seq uint64) {
	if !a.haveAny {
		a.haveAny = true
		a.cumulative = seq
		a.sackBitmap = 0
		return
	}

	if seq <= a.cumulative {
		return // duplicate or already-cumulative; not tracked as a SACK bit
	}

	offset := seq - a.cumulative - 1
	if offset < 64 {
		a.sackBitmap |= 1 << offset
	}

	for a.sackBitmap&1 == 1 {
		a.cumulative++
		a.sackBitmap >>= 1
	}
}

// Snapshot returns the current Ack control body.
func (a *AckTracker) Snapshot() wire.Ack {
	return wire.Ack{CumulativeSeq: wire.VarInt(a.cumulative), SackBitmap: a.sackBitmap}
}

// Merge folds a peer-observed Ack into this tracker via cumulative-max
// plus SACK-bitmap union, the rule the control loop applies when acks
// are received out of order.
func (a *AckTracker) Merge(ack wire.Ack) {
	peerCum := uint64(ack.CumulativeSeq)
	if peerCum > a.cumulative {
		shift := peerCum - a.cumulative
		if shift < 64 {
			a.sackBitmap >>= shift
		} else {
			a.sackBitmap = 0
		}
		a.cumulative = peerCum
		a.haveAny = true
	}
	shift := a.cumulative - peerCum
	bitmap := ack.SackBitmap
	if peerCum < a.cumulative && shift < 64 {
		bitmap >>= shift
	} else if peerCum < a.cumulative {
		bitmap = 0
	}
	a.sackBitmap |= bitmap

	for a.sackBitmap&1 == 1 {
		a.cumulative++
		a.sackBitmap >>= 1
	}
}
