package netio

import (
	"context"
	"errors"
	"sync"
)

// MockLink is an in-memory LinkSender/LinkReceiver for tests: Send appends
// to an internal buffer, Receive drains an injected inbound queue.
type MockLink struct {
	id uint8

	mu      sync.Mutex
	sent    [][]byte
	inbound chan []byte
	closed  bool
	failNext bool
}

// NewMockLink creates a mock link with a buffered inbound queue.
func NewMockLink(id uint8) *MockLink {
	return &MockLink{id: id, inbound: make(chan []byte, 256)}
}

// ID returns the mock link's id.
func (m *MockLink) ID() uint8 { return m.id }

// FailNextSend makes the next Send call return an error, simulating a
// transient OS-level send failure.
func (m *MockLink) FailNextSend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
}

// Send records payload (unless FailNextSend armed a failure).
func (m *MockLink) Send(payload []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("netio: mock link closed")
	}
	if m.failNext {
		m.failNext = false
		return 0, errors.New("netio: simulated send failure")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.sent = append(m.sent, cp)
	return len(payload), nil
}

// Sent returns every payload recorded by Send, in order.
func (m *MockLink) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// Deliver injects a datagram for the next Receive call to return.
func (m *MockLink) Deliver(payload []byte) {
	m.inbound <- payload
}

// Receive blocks until a payload is delivered or ctx is done.
func (m *MockLink) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case p := <-m.inbound:
		return p, nil
	}
}

// Close marks the mock link closed; further Send calls fail.
func (m *MockLink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ LinkSender = (*MockLink)(nil)
var _ LinkReceiver = (*MockLink)(nil)
