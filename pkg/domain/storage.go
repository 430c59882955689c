//go:generate go run go.uber.org/mock/mockgen -source=storage.go -destination=../../mocks/mock_storage.go -package=mocks
package domain

import (
	"context"
	"time"
)

// MessageRecord is a persisted chat message. Records are never mutated.
type MessageRecord struct {
	ID         string     `json:"id"`
	Sender     string     `json:"sender"`
	Recipient  string     `json:"recipient"`
	Kind       TargetKind `json:"kind"`
	Text       string     `json:"text,omitempty"`
	Attachment string     `json:"file,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Group is a named set of users. The relay never caches membership.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether userID belongs to the group.
func (g Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// MessageStore appends message records.
type MessageStore interface {
	// AppendMessage persists rec and returns the generated message ID.
	AppendMessage(ctx context.Context, rec MessageRecord) (string, error)
}

// Directory resolves chat targets.
type Directory interface {
	// GroupMembers returns ErrNotFound when groupID is not a group.
	GroupMembers(ctx context.Context, groupID string) ([]string, error)

	// UserExists reports whether userID names a registered user.
	UserExists(ctx context.Context, userID string) (bool, error)
}

// AttachmentStager stores raw attachment bytes and returns a stable reference.
type AttachmentStager interface {
	StageAttachment(ctx context.Context, data []byte, name string) (string, error)
}

// Storage is the persistence gateway consumed by the message router.
type Storage interface {
	MessageStore
	Directory
	AttachmentStager
}
