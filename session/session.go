// Package session implements the handshake state machine, ACK/NACK
// accounting, and ping/pong RTT refresh scheduling. Dispatching received
// control bodies to the FEC decoder and other components is done by the
// caller (package transport), not here.
package session

import (
	"time"

	"github.com/pkg/errors"
	"github.com/bondrelay/bond/wire"
)

// State is the session handshake's lifecycle.
type State int

const (
	StateIdle State = iota
	StateHelloSent
	StateEstablished
	StateTorndown
)

// ErrUnexpectedAction is returned when a control Session action arrives
// out of order for the current handshake state.
var ErrUnexpectedAction = errors.New("session: unexpected action for current state")

// Session tracks one bonded session's handshake state and per-link
// membership (LinkJoin/LinkLeave), plus the shared ack/nack/ping trackers
// the control loop drives.
type Session struct {
	ID    uint64
	state State

	links map[uint8]bool

	Acks  *AckTracker
	Nacks *NackTracker
	Pings *PingTracker
}

// NewClientSession creates a session in Idle state for the initiating
// side; call Hello to produce the first Session control body.
func NewClientSession(id uint64, nackHold time.Duration, pingInterval time.Duration) *Session {
	return &Session{
		ID:    id,
		state: StateIdle,
		links: make(map[uint8]bool),
		Acks:  NewAckTracker(),
		Nacks: NewNackTracker(nackHold),
		Pings: NewPingTracker(pingInterval),
	}
}

// NewServerSession creates a session awaiting a Hello from a client.
func NewServerSession(nackHold, pingInterval time.Duration) *Session {
	return &Session{
		state: StateIdle,
		links: make(map[uint8]bool),
		Acks:  NewAckTracker(),
		Nacks: NewNackTracker(nackHold),
		Pings: NewPingTracker(pingInterval),
	}
}

// Hello produces the client's initial Session(Hello) body on the first
// link and moves to StateHelloSent.
func (s *Session) Hello() wire.Session {
	s.state = StateHelloSent
	return wire.Session{Action: wire.SessionHello, SessionID: s.ID}
}

// State returns the session's current handshake state.
func (s *Session) State() State { return s.state }

// HandleControl applies a received Session control body, advancing the
// handshake or link-membership state. It returns an error only on a
// protocol violation (an out-of-order action or a link action without a
// link id), which is surfaced to the caller per the spec's
// "session-handshake rejection is surfaced" rule.
func (s *Session) HandleControl(body wire.Session) error {
	switch body.Action {
	case wire.SessionHello:
		if s.state != StateIdle {
			return errors.Wrap(ErrUnexpectedAction, "hello")
		}
		s.ID = body.SessionID
		s.state = StateEstablished
	case wire.SessionAccept:
		if s.state != StateHelloSent {
			return errors.Wrap(ErrUnexpectedAction, "accept")
		}
		s.state = StateEstablished
	case wire.SessionTeardown:
		s.state = StateTorndown
	case wire.SessionLinkJoin:
		if body.LinkID == nil {
			return errors.New("session: link_join missing link id")
		}
		s.links[*body.LinkID] = true
	case wire.SessionLinkLeave:
		if body.LinkID == nil {
			return errors.New("session: link_leave missing link id")
		}
		delete(s.links, *body.LinkID)
	}
	return nil
}

// Accept produces the server's Session(Accept) reply.
func (s *Session) Accept() wire.Session {
	s.state = StateEstablished
	return wire.Session{Action: wire.SessionAccept, SessionID: s.ID}
}

// Teardown produces a symmetric Session(Teardown) body and marks the
// session torn down locally.
func (s *Session) Teardown() wire.Session {
	s.state = StateTorndown
	return wire.Session{Action: wire.SessionTeardown, SessionID: s.ID}
}

// LinkJoin produces a Session(LinkJoin) body advertising a newly added
// link.
func (s *Session) LinkJoin(linkID uint8) wire.Session {
	s.links[linkID] = true
	id := linkID
	return wire.Session{Action: wire.SessionLinkJoin, SessionID: s.ID, LinkID: &id}
}

// LinkLeave produces a Session(LinkLeave) body for a removed link.
func (s *Session) LinkLeave(linkID uint8) wire.Session {
	delete(s.links, linkID)
	id := linkID
	return wire.Session{Action: wire.SessionLinkLeave, SessionID: s.ID, LinkID: &id}
}

// ActiveLinks returns the set of link ids currently advertised as joined.
func (s *Session) ActiveLinks() []uint8 {
	out := make([]uint8, 0, len(s.links))
	for id := range s.links {
		out = append(out, id)
	}
	return out
}
