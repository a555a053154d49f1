package realtime

import (
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/enpointe/notes/internal/notes"
)

const defaultSendBuffer = 64

// Identity is the authenticated user bound to a session for its lifetime.
type Identity struct {
	UserID notes.UserID `json:"user_id"`
	Email  string       `json:"email"`
}

// Session is one live realtime connection. Events queued with Send are delivered in order by the
// single writer draining Outbound.
type Session struct {
	id        string
	identity  Identity
	outbound  chan Outbound
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession allocates a session with a bounded outbound queue.
func NewSession(identity Identity, bufferSize int) *Session {
	if bufferSize <= 0 {
		bufferSize = defaultSendBuffer
	}
	return &Session{
		id:       ulid.Make().String(),
		identity: identity,
		outbound: make(chan Outbound, bufferSize),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Identity() Identity {
	return s.identity
}

// Outbound is the queue drained by the session's writer.
func (s *Session) Outbound() <-chan Outbound {
	return s.outbound
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Send enqueues event without blocking. A session whose queue is full is closed, so a slow
// client is dropped instead of silently missing events.
func (s *Session) Send(event Outbound) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.outbound <- event:
		return true
	default:
		s.Close()
		return false
	}
}

// Close marks the session closed. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
