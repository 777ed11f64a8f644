package stats

import "testing"

func TestSenderRegistryPublishLoad(t *testing.T) {
	r := NewSenderRegistry()
	r.Publish(SenderSnapshot{BytesSent: 42, LinkCount: 3})
	got := r.Load()
	if got.BytesSent != 42 || got.LinkCount != 3 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestReceiverRegistryPublishLoad(t *testing.T) {
	r := NewReceiverRegistry()
	r.Publish(ReceiverSnapshot{Delivered: 10, NextSeq: 11})
	got := r.Load()
	if got.Delivered != 10 || got.NextSeq != 11 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestSnapshotsAreIndependentCopies(t *testing.T) {
	r := NewSenderRegistry()
	s := SenderSnapshot{BytesSent: 1}
	r.Publish(s)
	s.BytesSent = 99
	if got := r.Load().BytesSent; got != 1 {
		t.Fatalf("mutating the caller's struct after Publish affected the snapshot: got %d", got)
	}
}
