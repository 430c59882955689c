// Package registry holds the authoritative in-memory set of live sessions.
package registry

import (
	"slices"
	"sync"

	"github.com/HMasataka/chatrelay/pkg/domain"
)

// Registry maps session handles to sessions and indexes identified
// sessions by user. A user connected from several devices owns several
// sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*Session
	byUser   map[string]map[domain.SessionID]*Session
	nextSeq  uint64
}

func New() *Registry {
	return &Registry{
		sessions: make(map[domain.SessionID]*Session),
		byUser:   make(map[string]map[domain.SessionID]*Session),
	}
}

// Add inserts an unidentified session. A handle can only be added once.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.id]; exists {
		return domain.ErrAlreadyExists
	}

	r.nextSeq++
	s.seq = r.nextSeq
	r.sessions[s.id] = s
	return nil
}

// AttachIdentity binds ident to the session. It is a no-op returning false
// when the session is gone, already identified, or ident has no user.
func (r *Registry) AttachIdentity(id domain.SessionID, ident domain.Identity) bool {
	if ident.UserID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}

	if !s.identity.CompareAndSwap(nil, &ident) {
		return false
	}

	users, ok := r.byUser[ident.UserID]
	if !ok {
		users = make(map[domain.SessionID]*Session)
		r.byUser[ident.UserID] = users
	}
	users[id] = s
	return true
}

// Remove deletes the session. Removing an absent handle is a no-op.
func (r *Registry) Remove(id domain.SessionID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)

	if userID := s.UserID(); userID != "" {
		if users, ok := r.byUser[userID]; ok {
			delete(users, id)
			if len(users) == 0 {
				delete(r.byUser, userID)
			}
		}
	}

	return s, true
}

// Get returns the live session for id.
func (r *Registry) Get(id domain.SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of live sessions, identified or not.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SessionsForUser returns the live sessions of userID in connection order.
func (r *Registry) SessionsForUser(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.forUsersLocked([]string{userID})
}

// AllIdentified returns every identified session in connection order.
func (r *Registry) AllIdentified() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.identifiedLocked()
}

// ViewIdentified calls fn with every identified session while holding the
// read lock, so no session can join or leave while fn runs. fn must not
// block and must not call back into the registry.
func (r *Registry) ViewIdentified(fn func(sessions []*Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn(r.identifiedLocked())
}

// ViewUsers calls fn with the live sessions of userIDs while holding the
// read lock. The same restrictions as ViewIdentified apply.
func (r *Registry) ViewUsers(userIDs []string, fn func(sessions []*Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn(r.forUsersLocked(userIDs))
}

// Drain removes and returns every session.
func (r *Registry) Drain() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[domain.SessionID]*Session)
	r.byUser = make(map[string]map[domain.SessionID]*Session)

	sortBySeq(all)
	return all
}

func (r *Registry) identifiedLocked() []*Session {
	var out []*Session
	for _, users := range r.byUser {
		for _, s := range users {
			out = append(out, s)
		}
	}
	sortBySeq(out)
	return out
}

func (r *Registry) forUsersLocked(userIDs []string) []*Session {
	var out []*Session
	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}

		for _, s := range r.byUser[userID] {
			out = append(out, s)
		}
	}
	sortBySeq(out)
	return out
}

func sortBySeq(sessions []*Session) {
	slices.SortFunc(sessions, func(a, b *Session) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
}
