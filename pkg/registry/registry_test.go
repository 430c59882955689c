package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HMasataka/chatrelay/internal/testutil"
	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/stretchr/testify/require"
)

func newSession() *Session {
	return NewSession(domain.NewSessionID(), testutil.NewConn(), nil)
}

func ids(sessions []*Session) []domain.SessionID {
	out := make([]domain.SessionID, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ID())
	}
	return out
}

func TestRegistry_AddRejectsDuplicateHandle(t *testing.T) {
	req := require.New(t)
	reg := New()
	s := newSession()

	req.NoError(reg.Add(s))
	req.ErrorIs(reg.Add(s), domain.ErrAlreadyExists)
	req.Equal(1, reg.Count())
}

func TestSession_StartsUnidentified(t *testing.T) {
	req := require.New(t)
	before := time.Now()
	s := newSession()

	req.False(s.ConnectedAt().Before(before))
	req.False(s.ConnectedAt().After(time.Now()))
	req.Empty(s.UserID())
	_, ok := s.Identity()
	req.False(ok)
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	req := require.New(t)
	reg := New()
	s := newSession()
	req.NoError(reg.Add(s))
	req.True(reg.AttachIdentity(s.ID(), domain.Identity{UserID: "alice", DisplayName: "Alice"}))

	removed, ok := reg.Remove(s.ID())
	req.True(ok)
	req.Equal(s, removed)

	_, ok = reg.Remove(s.ID())
	req.False(ok)
	req.Zero(reg.Count())
	req.Empty(reg.SessionsForUser("alice"))
}

func TestRegistry_AttachIdentityOnlyOnce(t *testing.T) {
	req := require.New(t)
	reg := New()
	s := newSession()
	req.NoError(reg.Add(s))

	req.True(reg.AttachIdentity(s.ID(), domain.Identity{UserID: "alice", DisplayName: "Alice"}))
	req.False(reg.AttachIdentity(s.ID(), domain.Identity{UserID: "bob", DisplayName: "Bob"}))

	ident, ok := s.Identity()
	req.True(ok)
	req.Equal("alice", ident.UserID)
	req.Empty(reg.SessionsForUser("bob"))
}

func TestRegistry_AttachIdentityAfterRemoveIsNoop(t *testing.T) {
	req := require.New(t)
	reg := New()
	s := newSession()
	req.NoError(reg.Add(s))
	reg.Remove(s.ID())

	req.False(reg.AttachIdentity(s.ID(), domain.Identity{UserID: "alice"}))
	req.Empty(reg.AllIdentified())
	req.Zero(reg.Count())
}

func TestRegistry_AttachEmptyIdentityIsNoop(t *testing.T) {
	req := require.New(t)
	reg := New()
	s := newSession()
	req.NoError(reg.Add(s))

	req.False(reg.AttachIdentity(s.ID(), domain.Identity{}))
	_, ok := s.Identity()
	req.False(ok)
}

func TestRegistry_SessionsForUserReturnsEveryDevice(t *testing.T) {
	req := require.New(t)
	reg := New()
	a1, a2, b1, anon := newSession(), newSession(), newSession(), newSession()
	for _, s := range []*Session{a1, a2, b1, anon} {
		req.NoError(reg.Add(s))
	}
	reg.AttachIdentity(a1.ID(), domain.Identity{UserID: "alice"})
	reg.AttachIdentity(a2.ID(), domain.Identity{UserID: "alice"})
	reg.AttachIdentity(b1.ID(), domain.Identity{UserID: "bob"})

	req.Equal([]domain.SessionID{a1.ID(), a2.ID()}, ids(reg.SessionsForUser("alice")))
	req.Equal([]domain.SessionID{b1.ID()}, ids(reg.SessionsForUser("bob")))
	req.Empty(reg.SessionsForUser("carol"))

	// unidentified sessions are excluded
	req.Equal([]domain.SessionID{a1.ID(), a2.ID(), b1.ID()}, ids(reg.AllIdentified()))
	req.Equal(4, reg.Count())
}

func TestRegistry_ViewUsersDeduplicates(t *testing.T) {
	req := require.New(t)
	reg := New()
	a1 := newSession()
	req.NoError(reg.Add(a1))
	reg.AttachIdentity(a1.ID(), domain.Identity{UserID: "alice"})

	var seen []*Session
	reg.ViewUsers([]string{"alice", "alice", "ghost"}, func(sessions []*Session) {
		seen = sessions
	})

	req.Equal([]domain.SessionID{a1.ID()}, ids(seen))
}

func TestRegistry_Drain(t *testing.T) {
	req := require.New(t)
	reg := New()
	a, b := newSession(), newSession()
	req.NoError(reg.Add(a))
	req.NoError(reg.Add(b))
	reg.AttachIdentity(a.ID(), domain.Identity{UserID: "alice"})

	drained := reg.Drain()

	req.Equal([]domain.SessionID{a.ID(), b.ID()}, ids(drained))
	req.Zero(reg.Count())
	req.Empty(reg.AllIdentified())
}

func TestRegistry_ConcurrentAddRemove(t *testing.T) {
	req := require.New(t)
	reg := New()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := newSession()
			if err := reg.Add(s); err != nil {
				return
			}
			reg.AttachIdentity(s.ID(), domain.Identity{UserID: fmt.Sprintf("user-%d", i%5)})
			reg.ViewIdentified(func([]*Session) {})
			if i%2 == 0 {
				reg.Remove(s.ID())
				reg.Remove(s.ID())
			}
		}(i)
	}
	wg.Wait()

	req.Equal(25, reg.Count())
	total := 0
	for u := range 5 {
		for _, s := range reg.SessionsForUser(fmt.Sprintf("user-%d", u)) {
			req.Equal(fmt.Sprintf("user-%d", u), s.UserID())
			total++
		}
	}
	req.Equal(25, total)
}
