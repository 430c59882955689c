package protocol

import (
	"context"

	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/errors"
)

// Handler processes one inbound frame from a session.
type Handler interface {
	Handle(ctx context.Context, sessionID domain.SessionID, msg *domain.Message) error
}

// HandlerFunc is a function adapter for Handler
type HandlerFunc func(ctx context.Context, sessionID domain.SessionID, msg *domain.Message) error

// Handle implements Handler
func (f HandlerFunc) Handle(ctx context.Context, sessionID domain.SessionID, msg *domain.Message) error {
	return f(ctx, sessionID, msg)
}

// HandlerRegistry manages frame handlers. Handlers are registered before
// any session is served; lookups are not synchronized.
type HandlerRegistry struct {
	handlers map[domain.MessageType]Handler
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[domain.MessageType]Handler),
	}
}

// Register registers a handler for a message type
func (r *HandlerRegistry) Register(messageType domain.MessageType, handler Handler) {
	r.handlers[messageType] = handler
}

// Get retrieves a handler for a message type
func (r *HandlerRegistry) Get(messageType domain.MessageType) (Handler, bool) {
	handler, ok := r.handlers[messageType]
	return handler, ok
}

// Handle routes a frame to the handler registered for its type.
func (r *HandlerRegistry) Handle(ctx context.Context, sessionID domain.SessionID, msg *domain.Message) error {
	handler, ok := r.Get(msg.Type)
	if !ok {
		return errors.New(errors.ErrorTypeProtocol, "UNKNOWN_TYPE", "no handler for message type").
			WithDetails(string(msg.Type))
	}

	return handler.Handle(ctx, sessionID, msg)
}
