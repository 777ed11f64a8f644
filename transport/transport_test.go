package transport

import (
	"context"
	"testing"
	"time"

	"github.com/bondrelay/bond/config"
	"github.com/bondrelay/bond/netio"
	"github.com/bondrelay/bond/wire"
)

func testConfig(t *testing.T) config.Config {
	cfg, err := config.Resolve(config.Input{})
	if err != nil {
		t.Fatalf("config.Resolve: %v", err)
	}
	return cfg
}

func TestSenderPublishesStatsAfterSend(t *testing.T) {
	s := NewSender(testConfig(t), nil)
	sink := netio.NewMockLink(1)
	s.AddLink(1, "udp://test", sink)

	if err := s.Send(context.Background(), []byte("payload"), PacketProfile{SizeBytes: 7}); err != nil {
		t.Fatalf("send: %v", err)
	}

	st := s.Stats()
	if st.PacketsSent != 1 {
		t.Fatalf("PacketsSent = %d, want 1", st.PacketsSent)
	}
	if st.BytesSent != 7 {
		t.Fatalf("BytesSent = %d, want 7", st.BytesSent)
	}
	if st.LinkCount != 1 {
		t.Fatalf("LinkCount = %d, want 1", st.LinkCount)
	}
	if len(sink.Sent()) != 1 {
		t.Fatalf("sink received %d sends, want 1", len(sink.Sent()))
	}
}

func TestSenderDegradationDropDisposableSheddsLocally(t *testing.T) {
	s := NewSender(testConfig(t), nil)
	sink := netio.NewMockLink(1)
	s.AddLink(1, "udp://test", sink)
	s.SetDegradationStage(DegradationDropDisposable)

	if err := s.Send(context.Background(), []byte("x"), PacketProfile{CanDrop: true, SizeBytes: 1}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(sink.Sent()) != 0 {
		t.Fatalf("disposable packet reached the link under DropDisposable, sent=%d", len(sink.Sent()))
	}
	if s.Stats().PacketsSent != 0 {
		t.Fatalf("PacketsSent = %d, want 0 for a locally dropped packet", s.Stats().PacketsSent)
	}
}

func TestSenderDegradationKeyframeOnlyAllowsCritical(t *testing.T) {
	// Critical broadcast is disabled here so the critical packet takes
	// the single-link unicast path instead of requiring a Live/Warm
	// phase link for broadcast to succeed.
	noBroadcast := false
	cfg, err := config.Resolve(config.Input{Scheduler: &config.SchedulerInput{CriticalBroadcast: &noBroadcast}})
	if err != nil {
		t.Fatalf("config.Resolve: %v", err)
	}
	s := NewSender(cfg, nil)
	sink := netio.NewMockLink(1)
	s.AddLink(1, "udp://test", sink)
	s.SetDegradationStage(DegradationKeyframeOnly)

	if err := s.Send(context.Background(), []byte("key"), PacketProfile{IsCritical: true, SizeBytes: 3}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sink.Sent()) != 1 {
		t.Fatalf("critical packet dropped under KeyframeOnly, sent=%d", len(sink.Sent()))
	}
}

func TestReceiverPublishesStatsAfterHandleRaw(t *testing.T) {
	r := NewReceiver(testConfig(t), 16, nil)
	pkt := wire.NewDataPacket(0, 0, []byte("hello")).Encode()

	r.HandleRaw(time.Now(), pkt)

	st := r.Stats()
	if st.QueueDepth != 1 {
		t.Fatalf("QueueDepth = %d, want 1 right after a push", st.QueueDepth)
	}
}
