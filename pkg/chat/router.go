// Package chat routes chat events from one session to the sessions of
// their recipients.
package chat

import (
	"context"
	"time"

	"github.com/HMasataka/chatrelay/internal/eventbus"
	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/errors"
	"github.com/HMasataka/chatrelay/pkg/registry"
	"github.com/HMasataka/chatrelay/pkg/transport/protocol"
	"github.com/samber/lo"
)

// Router persists each chat event once and fans it out to the live
// sessions of its recipients, never back to the sender.
type Router struct {
	registry *registry.Registry
	storage  domain.Storage
	codec    protocol.Codec
	events   eventbus.Bus
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures a Router
type Option func(*Router)

// WithEventBus publishes routing outcomes on bus.
func WithEventBus(bus eventbus.Bus) Option {
	return func(r *Router) {
		r.events = bus
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

func NewRouter(reg *registry.Registry, storage domain.Storage, codec protocol.Codec, logger *logging.Logger, opts ...Option) *Router {
	r := &Router{
		registry: reg,
		storage:  storage,
		codec:    codec,
		events:   eventbus.Nop{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route handles one chat event sent by senderID. It returns the delivered
// payload, or one of the routing errors of this package.
func (r *Router) Route(ctx context.Context, senderID string, req domain.ChatRequest) (*domain.ChatDelivered, error) {
	delivered, err := r.route(ctx, senderID, req)
	if err != nil {
		eventType := eventbus.EventMessageDropped
		if ReportToSender(err) {
			eventType = eventbus.EventDeliveryFailed
		}
		r.events.PublishAsync(eventbus.NewEvent(eventType, "chat-router", eventbus.DropData{Reason: Reason(err)}))
		return nil, err
	}
	return delivered, nil
}

func (r *Router) route(ctx context.Context, senderID string, req domain.ChatRequest) (*domain.ChatDelivered, error) {
	if senderID == "" {
		return nil, ErrUnauthenticatedFrame
	}
	if req.Text == "" && !hasAttachment(req.File) {
		return nil, ErrEmptyMessage
	}

	var attachment string
	if hasAttachment(req.File) {
		ref, err := r.stage(ctx, req.File)
		if err != nil {
			return nil, err
		}
		attachment = ref
	}

	target, members, err := r.resolve(ctx, req.Recipient, req.Kind)
	if err != nil {
		return nil, err
	}

	rec := domain.MessageRecord{
		Sender:     senderID,
		Recipient:  target.ID,
		Kind:       target.Kind,
		Text:       req.Text,
		Attachment: attachment,
		CreatedAt:  r.now().UTC(),
	}

	id, err := r.storage.AppendMessage(ctx, rec)
	if err != nil {
		return nil, errors.WrapAs(err, ErrPersistence).WithDetails(target.String())
	}
	rec.ID = id

	delivered := domain.NewChatDelivered(rec)
	recipients := lo.Without(members, senderID)
	fanout := r.fanout(ctx, recipients, delivered)

	r.logger.Debug("message routed",
		"message_id", rec.ID,
		"sender", senderID,
		"target", target.String(),
		"fanout", fanout,
	)
	r.events.PublishAsync(eventbus.NewEvent(eventbus.EventMessageRouted, "chat-router", eventbus.MessageData{
		MessageID: rec.ID,
		Kind:      string(target.Kind),
		Fanout:    fanout,
	}))

	return &delivered, nil
}

func (r *Router) stage(ctx context.Context, file *domain.FilePayload) (string, error) {
	raw, err := DecodeAttachment(file)
	if err != nil {
		return "", errors.WrapAs(err, ErrAttachmentStaging).WithDetails(file.Name)
	}

	ref, err := r.storage.StageAttachment(ctx, raw, file.Name)
	if err != nil {
		return "", errors.WrapAs(err, ErrAttachmentStaging).WithDetails(file.Name)
	}
	return ref, nil
}

// resolve maps a recipient onto a target and its member users. Without a
// kind tag the group lookup runs first.
func (r *Router) resolve(ctx context.Context, recipient string, kind domain.TargetKind) (domain.Target, []string, error) {
	if recipient == "" {
		return domain.Target{}, nil, ErrUnresolvableTarget
	}

	kind, err := domain.ParseTargetKind(string(kind))
	if err != nil {
		return domain.Target{}, nil, errors.WrapAs(err, ErrUnresolvableTarget)
	}

	switch kind {
	case domain.TargetGroup:
		return r.resolveGroup(ctx, recipient)
	case domain.TargetPeer:
		return r.resolvePeer(ctx, recipient)
	default:
		target, members, err := r.resolveGroup(ctx, recipient)
		if errors.Is(err, ErrUnresolvableTarget) {
			return r.resolvePeer(ctx, recipient)
		}
		return target, members, err
	}
}

func (r *Router) resolveGroup(ctx context.Context, groupID string) (domain.Target, []string, error) {
	members, err := r.storage.GroupMembers(ctx, groupID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Target{}, nil, errors.WrapAs(err, ErrUnresolvableTarget).WithDetails(groupID)
	}
	if err != nil {
		return domain.Target{}, nil, errors.WrapAs(err, ErrPersistence).WithDetails(groupID)
	}
	return domain.GroupTarget(groupID), members, nil
}

func (r *Router) resolvePeer(ctx context.Context, userID string) (domain.Target, []string, error) {
	exists, err := r.storage.UserExists(ctx, userID)
	if err != nil {
		return domain.Target{}, nil, errors.WrapAs(err, ErrPersistence).WithDetails(userID)
	}
	if !exists {
		return domain.Target{}, nil, errors.WrapAs(nil, ErrUnresolvableTarget).WithDetails(userID)
	}
	return domain.PeerTarget(userID), []string{userID}, nil
}

// fanout enqueues the chat frame on every live session of recipients and
// returns how many sessions accepted it.
func (r *Router) fanout(ctx context.Context, recipients []string, delivered domain.ChatDelivered) int {
	if len(recipients) == 0 {
		return 0
	}

	frame, err := protocol.EncodeFrame(r.codec, domain.MessageTypeChat, delivered)
	if err != nil {
		r.logger.Error("failed to encode chat frame", "message_id", delivered.ID, "error", err)
		return 0
	}

	var sent int
	r.registry.ViewUsers(recipients, func(sessions []*registry.Session) {
		for _, s := range sessions {
			if err := s.Conn().Send(ctx, frame); err != nil {
				r.logger.Warn("chat frame not delivered",
					"message_id", delivered.ID,
					"session_id", s.ID(),
					"user_id", s.UserID(),
					"error", err,
				)
				continue
			}
			sent++
		}
	})
	return sent
}
