package domain

import (
	"context"
	"time"
)

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	MobileNumber string    `json:"mobileNumber,omitempty"`
	Birthday     string    `json:"birthday,omitempty"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity returns the session identity of the user.
func (u User) Identity() Identity {
	return Identity{UserID: u.ID, DisplayName: u.Username}
}

// NewUser holds the fields supplied at registration.
type NewUser struct {
	Username     string
	Email        string
	MobileNumber string
	Birthday     string
	PasswordHash string
}

// UserStore manages accounts.
type UserStore interface {
	// CreateUser returns ErrAlreadyExists when the username or email is taken.
	CreateUser(ctx context.Context, user NewUser) (User, error)
	// UserByLogin looks a user up by username or email.
	UserByLogin(ctx context.Context, login string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	// SearchUsers returns users whose username contains query, case-insensitively.
	SearchUsers(ctx context.Context, query string) ([]User, error)
	// UserIDsByName resolves usernames, skipping unknown ones.
	UserIDsByName(ctx context.Context, usernames []string) ([]string, error)
}

// GroupStore manages group chats.
type GroupStore interface {
	CreateGroup(ctx context.Context, name string, memberIDs []string) (Group, error)
	Group(ctx context.Context, id string) (Group, error)
	GroupsForUser(ctx context.Context, userID string) ([]Group, error)
}

// HistoryStore reads persisted conversations in chronological order.
type HistoryStore interface {
	GroupHistory(ctx context.Context, groupID string) ([]MessageRecord, error)
	DirectHistory(ctx context.Context, userA, userB string) ([]MessageRecord, error)
}
