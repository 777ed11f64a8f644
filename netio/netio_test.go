package netio

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestMockLinkSendRecordsPayload(t *testing.T) {
	m := NewMockLink(1)
	n, err := m.Send([]byte("hello"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if n != 5 {
		t.Fatalf("n = %d, want 5", n)
	}
	if len(m.Sent()) != 1 {
		t.Fatalf("expected 1 recorded send, got %d", len(m.Sent()))
	}
}

func TestMockLinkFailNextSend(t *testing.T) {
	m := NewMockLink(1)
	m.FailNextSend()
	if _, err := m.Send([]byte("x")); err == nil {
		t.Fatal("expected simulated failure")
	}
	if _, err := m.Send([]byte("x")); err != nil {
		t.Fatalf("second send should succeed, got %v", err)
	}
}

func TestMockLinkReceiveDeliversInjected(t *testing.T) {
	m := NewMockLink(1)
	m.Deliver([]byte("payload"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := m.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("got %q, want payload", got)
	}
}

func TestMockLinkReceiveRespectsContextCancellation(t *testing.T) {
	m := NewMockLink(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := m.Receive(ctx); err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestMockLinkClosedRejectsSend(t *testing.T) {
	m := NewMockLink(1)
	m.Close()
	if _, err := m.Send([]byte("x")); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestUDPLinkRateLimitDeniesWithoutBlocking(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	link, err := DialUDPLink(1, conn.LocalAddr().String(), 8) // ~1 byte burst
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer link.Close()

	start := time.Now()
	_, err = link.Send([]byte("hello world"))
	if err != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("Send blocked for %v, want an immediate non-blocking denial", elapsed)
	}
}

func TestUDPLinkRateLimitAllowsUnderCeiling(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	link, err := DialUDPLink(1, conn.LocalAddr().String(), 1_000_000)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer link.Close()

	if _, err := link.Send([]byte("hi")); err != nil {
		t.Fatalf("send under ceiling should succeed, got %v", err)
	}
}

func TestParsePortRangeSinglePort(t *testing.T) {
	p, err := ParsePortRange("10.0.0.1:29900")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Host != "10.0.0.1" || p.MinPort != 29900 || p.MaxPort != 29900 {
		t.Fatalf("got %+v", p)
	}
	addrs := p.Addrs()
	if len(addrs) != 1 || addrs[0] != "10.0.0.1:29900" {
		t.Fatalf("addrs = %v", addrs)
	}
}

func TestParsePortRangeExpandsRange(t *testing.T) {
	p, err := ParsePortRange("relay.example.com:29900-29903")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	addrs := p.Addrs()
	want := []string{
		"relay.example.com:29900", "relay.example.com:29901",
		"relay.example.com:29902", "relay.example.com:29903",
	}
	if len(addrs) != len(want) {
		t.Fatalf("addrs = %v, want %v", addrs, want)
	}
	for i := range want {
		if addrs[i] != want[i] {
			t.Fatalf("addrs[%d] = %q, want %q", i, addrs[i], want[i])
		}
	}
}

func TestParsePortRangeRejectsInvertedRange(t *testing.T) {
	if _, err := ParsePortRange("host:30000-20000"); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestParsePortRangeRejectsMalformed(t *testing.T) {
	if _, err := ParsePortRange("not-an-address"); err == nil {
		t.Fatal("expected error for malformed address")
	}
}
