// Package relay ties sessions, liveness, presence and routing together.
package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/HMasataka/chatrelay/internal/eventbus"
	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/HMasataka/chatrelay/pkg/chat"
	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/errors"
	"github.com/HMasataka/chatrelay/pkg/liveness"
	"github.com/HMasataka/chatrelay/pkg/presence"
	"github.com/HMasataka/chatrelay/pkg/registry"
	"github.com/HMasataka/chatrelay/pkg/transport/protocol"
)

// Transport is a session connection whose reads are driven by the hub.
type Transport interface {
	domain.Conn

	// Start begins delivering inbound frames and ping acknowledgements.
	Start(onMessage func([]byte), onPong func())

	// Done is closed when the transport is closed by either side.
	Done() <-chan struct{}
}

// HubOptions represents hub configuration options
type HubOptions struct {
	HeartbeatInterval time.Duration
	Logger            *logging.Logger
	EventBus          eventbus.Bus
}

// Stats is a snapshot of hub activity.
type Stats struct {
	Sessions       int           `json:"sessions"`
	OnlineUsers    int           `json:"onlineUsers"`
	FramesReceived int64         `json:"framesReceived"`
	Uptime         time.Duration `json:"uptime"`
}

// Hub owns the session lifecycle: it admits sessions, attaches their
// identity, runs their heartbeat and removes them on close or eviction.
type Hub struct {
	registry   *registry.Registry
	resolver   domain.IdentityResolver
	presence   *presence.Broadcaster
	codec      protocol.Codec
	handlers   *protocol.HandlerRegistry
	errHandler errors.Handler
	logger     *logging.Logger
	events     eventbus.Bus
	interval   time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	closing atomic.Bool

	framesReceived atomic.Int64
	startTime      time.Time
}

// NewHub creates a hub and registers the chat frame handler.
func NewHub(reg *registry.Registry, resolver domain.IdentityResolver, broadcaster *presence.Broadcaster,
	router *chat.Router, codec protocol.Codec, opts HubOptions) *Hub {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.EventBus == nil {
		opts.EventBus = eventbus.Nop{}
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		registry:   reg,
		resolver:   resolver,
		presence:   broadcaster,
		codec:      codec,
		handlers:   protocol.NewHandlerRegistry(),
		errHandler: errors.NewDefaultHandler(opts.Logger.Logger),
		logger:     opts.Logger,
		events:     opts.EventBus,
		interval:   opts.HeartbeatInterval,
		ctx:        ctx,
		cancel:     cancel,
		startTime:  time.Now(),
	}

	h.handlers.Register(domain.MessageTypeChat, NewChatHandler(reg, router, codec, opts.Logger))
	return h
}

// Serve runs one session until its transport closes. token is the
// connection credential; an unusable token yields an anonymous session
// that receives no presence and cannot chat.
func (h *Hub) Serve(ctx context.Context, token string, t Transport) {
	if h.closing.Load() {
		t.Close()
		return
	}

	id := domain.NewSessionID()
	logger := h.logger.WithFields(map[string]any{"session_id": id.String()})

	ident, resolveErr := h.resolver.Resolve(ctx, token)
	if resolveErr != nil {
		logger.Debug("session is anonymous", "error", resolveErr)
	}

	hb := liveness.New(h.interval, t, func() { h.evict(id) }, logger)
	session := registry.NewSession(id, t, hb)
	if err := h.registry.Add(session); err != nil {
		logger.Error("failed to register session", "error", err)
		t.Close()
		return
	}
	h.publish(eventbus.EventSessionOpened, session)

	identified := resolveErr == nil && h.registry.AttachIdentity(id, ident)

	t.Start(func(data []byte) { h.handleFrame(id, data, logger) }, hb.Ack)
	hb.Start()

	if identified {
		logger.Info("session identified", "user_id", ident.UserID)
		h.publish(eventbus.EventSessionIdentified, session)
		h.announce()
	}

	select {
	case <-t.Done():
	case <-h.ctx.Done():
	}
	h.disconnect(session, logger)
}

// Shutdown closes every session. Sessions admitted afterwards are refused.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.closing.Store(true)

	sessions := h.registry.Drain()
	for _, s := range sessions {
		s.Heartbeat().Stop()
		s.Conn().Close()
	}
	h.cancel()

	h.logger.Info("hub stopped", "sessions_closed", len(sessions))
	return ctx.Err()
}

// Stats returns a snapshot of hub activity.
func (h *Hub) Stats() Stats {
	return Stats{
		Sessions:       h.registry.Count(),
		OnlineUsers:    len(presence.Roster(h.registry.AllIdentified())),
		FramesReceived: h.framesReceived.Load(),
		Uptime:         time.Since(h.startTime),
	}
}

// Roster returns the current online roster without broadcasting it.
func (h *Hub) Roster() domain.Roster {
	return presence.Roster(h.registry.AllIdentified())
}

// disconnect stops the heartbeat before the session leaves the registry,
// so a ping can never race with removal.
func (h *Hub) disconnect(s *registry.Session, logger *logging.Logger) {
	s.Heartbeat().Stop()
	s.Conn().Close()

	if _, removed := h.registry.Remove(s.ID()); !removed {
		return
	}

	logger.Info("session closed", "user_id", s.UserID(), "connected_for", time.Since(s.ConnectedAt()))
	h.publish(eventbus.EventSessionClosed, s)
	h.announce()
}

// evict is the heartbeat callback for a session that missed its ping.
func (h *Hub) evict(id domain.SessionID) {
	s, ok := h.registry.Get(id)
	if !ok {
		return
	}

	s.Conn().Close()
	if _, removed := h.registry.Remove(id); !removed {
		return
	}

	h.logger.Info("session evicted",
		"session_id", id.String(),
		"user_id", s.UserID(),
		"connected_for", time.Since(s.ConnectedAt()),
	)
	h.publish(eventbus.EventSessionEvicted, s)
	h.announce()
}

func (h *Hub) announce() {
	roster := h.presence.Announce(h.ctx)
	h.events.PublishAsync(eventbus.NewEvent(eventbus.EventPresenceAnnounced, "hub",
		eventbus.PresenceData{Online: len(roster)}))
}

func (h *Hub) handleFrame(id domain.SessionID, data []byte, logger *logging.Logger) {
	h.framesReceived.Add(1)

	msg, err := h.codec.Decode(data)
	if err == nil {
		err = h.handlers.Handle(h.ctx, id, msg)
	}
	if err != nil {
		h.errHandler.HandleWithLogger(h.ctx, err, logger.Logger)
	}
}

func (h *Hub) publish(eventType eventbus.EventType, s *registry.Session) {
	h.events.PublishAsync(eventbus.NewEvent(eventType, "hub", eventbus.SessionData{
		SessionID: s.ID().String(),
		UserID:    s.UserID(),
	}))
}
