// ABOUTME: Session is one authenticated WebSocket connection's server-side state
// ABOUTME: Carries the outbound frame queue drained by the connection's write pump

package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// outboundBufferSize is the per-session frame queue. A session that
	// falls this far behind is stale and gets detached.
	outboundBufferSize = 64
)

// Session is the server-side state for one connection. A user with several
// devices holds several sessions. The manager owns registration; the
// connection's pumps own the socket.
type Session struct {
	ID          string
	UserID      string
	Username    string
	ConnectedAt time.Time

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	stale     atomic.Bool
}

// NewSession creates an unattached session for an authenticated user.
func NewSession(userID, username string) *Session {
	return &Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		Username:    username,
		ConnectedAt: time.Now().UTC(),
		outbound:    make(chan []byte, outboundBufferSize),
		done:        make(chan struct{}),
	}
}

// trySend queues one encoded frame without blocking. Reports false when the
// buffer is full; the caller decides what a full buffer means.
func (s *Session) trySend(data []byte) bool {
	select {
	case s.outbound <- data:
		return true
	default:
		return false
	}
}

// Close signals the write pump to finish. Safe to call more than once.
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
