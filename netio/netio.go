// Package netio defines the capability interfaces a link exposes to the
// scheduler (send bytes, receive bytes), and provides a UDP
// implementation plus a mock for tests.
package netio

import "context"

// LinkSender is the small capability interface a link exposes for
// outbound data: id, send, and close. Link metrics are not part of it.
type LinkSender interface {
	ID() uint8
	Send(payload []byte) (int, error)
	Close() error
}

// LinkReceiver is the capability interface for a link's inbound path: one
// receive loop blocking only on the OS socket read.
type LinkReceiver interface {
	ID() uint8
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}
