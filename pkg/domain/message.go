package domain

import (
	"encoding/json"
	"time"

	"github.com/rs/xid"
)

// MessageType represents the type of a session frame
type MessageType string

const (
	// MessageTypeChat is a chat event, inbound from the sender and
	// outbound to each fanout target.
	MessageTypeChat MessageType = "chat"
	// MessageTypePresence carries the full online roster.
	MessageTypePresence MessageType = "presence"
	// MessageTypeDeliveryFailed tells a sender its message was not persisted.
	MessageTypeDeliveryFailed MessageType = "delivery_failed"
)

// Message is the envelope of every frame exchanged on a session
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewMessage wraps payload in an envelope of the given type.
func NewMessage(messageType MessageType, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:        xid.New().String(),
		Type:      messageType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// FilePayload is an attachment as sent by clients. Data is either a base64
// data URL or plain base64.
type FilePayload struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// ChatRequest is the inbound chat frame payload
type ChatRequest struct {
	Recipient string       `json:"recipient"`
	Kind      TargetKind   `json:"kind,omitempty"`
	Text      string       `json:"text,omitempty"`
	File      *FilePayload `json:"file,omitempty"`
}

// ChatDelivered is the outbound chat frame payload, one per fanout session
type ChatDelivered struct {
	ID        string     `json:"id"`
	Sender    string     `json:"sender"`
	Recipient string     `json:"recipient"`
	Kind      TargetKind `json:"kind"`
	Text      string     `json:"text,omitempty"`
	File      string     `json:"file,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewChatDelivered builds the outbound payload for a persisted record.
func NewChatDelivered(rec MessageRecord) ChatDelivered {
	return ChatDelivered{
		ID:        rec.ID,
		Sender:    rec.Sender,
		Recipient: rec.Recipient,
		Kind:      rec.Kind,
		Text:      rec.Text,
		File:      rec.Attachment,
		CreatedAt: rec.CreatedAt,
	}
}

// Roster is the ordered list of online users
type Roster []Identity

// PresencePayload is the outbound presence frame payload
type PresencePayload struct {
	Online Roster `json:"online"`
}

// DeliveryFailed is sent back to a sender when persistence failed
type DeliveryFailed struct {
	Recipient string `json:"recipient"`
	Reason    string `json:"reason"`
}
