package domain

import (
	"context"

	"github.com/rs/xid"
)

// SessionID identifies one live transport connection.
type SessionID string

// NewSessionID returns a fresh, globally unique session handle.
func NewSessionID() SessionID {
	return SessionID(xid.New().String())
}

func (id SessionID) String() string {
	return string(id)
}

// Conn is the transport side of a session, owned by its registry entry.
type Conn interface {
	// Send enqueues a frame for the session. It must not block on the
	// network; a closed or saturated transport returns an error.
	Send(ctx context.Context, message []byte) error

	// Ping enqueues a liveness ping.
	Ping() error

	// Close closes the underlying transport. It is idempotent.
	Close() error
}

// Identity is the resolved owner of a session.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"username"`
}

// IdentityResolver turns a connection credential into an Identity.
type IdentityResolver interface {
	// Resolve returns ErrInvalidCredential when the token cannot be trusted.
	Resolve(ctx context.Context, token string) (Identity, error)
}
