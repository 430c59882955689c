package eventbus

import (
	"time"

	"github.com/rs/xid"
)

// EventType represents the type of event
type EventType string

// Event types
const (
	EventSessionOpened     EventType = "session.opened"
	EventSessionIdentified EventType = "session.identified"
	EventSessionClosed     EventType = "session.closed"
	EventSessionEvicted    EventType = "session.evicted"
	EventPresenceAnnounced EventType = "presence.announced"
	EventMessageRouted     EventType = "message.routed"
	EventMessageDropped    EventType = "message.dropped"
	EventDeliveryFailed    EventType = "message.delivery_failed"
)

// Event represents a relay lifecycle event
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"`
	Data      any               `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionData is carried by session.* events.
type SessionData struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
}

// PresenceData is carried by presence.announced.
type PresenceData struct {
	Online int `json:"online"`
}

// MessageData is carried by message.routed. Fanout counts the sessions a
// chat frame was enqueued to.
type MessageData struct {
	MessageID string `json:"messageId"`
	Kind      string `json:"kind"`
	Fanout    int    `json:"fanout"`
}

// DropData is carried by message.dropped and message.delivery_failed.
type DropData struct {
	Reason string `json:"reason"`
}

// NewEvent creates a new event
func NewEvent(eventType EventType, source string, data any) *Event {
	return &Event{
		ID:        xid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
		Metadata:  make(map[string]string),
	}
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}
