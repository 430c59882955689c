package registry

import (
	"sync/atomic"
	"time"

	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/liveness"
)

// Session is one live transport connection. Its identity is attached at
// most once, by the Registry; everything else is fixed at creation.
type Session struct {
	id          domain.SessionID
	conn        domain.Conn
	heartbeat   *liveness.Heartbeat
	connectedAt time.Time

	seq      uint64
	identity atomic.Pointer[domain.Identity]
}

// NewSession creates an unidentified session. heartbeat may be nil for
// sessions that are not liveness-monitored.
func NewSession(id domain.SessionID, conn domain.Conn, heartbeat *liveness.Heartbeat) *Session {
	return &Session{
		id:          id,
		conn:        conn,
		heartbeat:   heartbeat,
		connectedAt: time.Now(),
	}
}

func (s *Session) ID() domain.SessionID {
	return s.id
}

func (s *Session) Conn() domain.Conn {
	return s.conn
}

func (s *Session) Heartbeat() *liveness.Heartbeat {
	return s.heartbeat
}

func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

// Identity returns the attached identity, if any.
func (s *Session) Identity() (domain.Identity, bool) {
	ident := s.identity.Load()
	if ident == nil {
		return domain.Identity{}, false
	}
	return *ident, true
}

// UserID returns the attached user ID, or "" for unidentified sessions.
func (s *Session) UserID() string {
	ident, _ := s.Identity()
	return ident.UserID
}
