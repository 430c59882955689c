package relay

import (
	"context"

	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/HMasataka/chatrelay/pkg/chat"
	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/registry"
	"github.com/HMasataka/chatrelay/pkg/transport/protocol"
)

// ChatHandler handles inbound chat frames
type ChatHandler struct {
	registry *registry.Registry
	router   *chat.Router
	codec    protocol.Codec
	logger   *logging.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(reg *registry.Registry, router *chat.Router, codec protocol.Codec, logger *logging.Logger) *ChatHandler {
	return &ChatHandler{
		registry: reg,
		router:   router,
		codec:    codec,
		logger:   logger,
	}
}

// Handle implements protocol.Handler. Persistence failures are reported to
// the sending session with a delivery_failed frame.
func (h *ChatHandler) Handle(ctx context.Context, sessionID domain.SessionID, msg *domain.Message) error {
	sender, ok := h.registry.Get(sessionID)
	if !ok {
		return nil
	}

	var req domain.ChatRequest
	if err := protocol.DecodePayload(msg, &req); err != nil {
		return err
	}

	_, err := h.router.Route(ctx, sender.UserID(), req)
	if err == nil || !chat.ReportToSender(err) {
		return err
	}

	frame, encodeErr := protocol.EncodeFrame(h.codec, domain.MessageTypeDeliveryFailed, domain.DeliveryFailed{
		Recipient: req.Recipient,
		Reason:    chat.Reason(err),
	})
	if encodeErr != nil {
		return encodeErr
	}
	if sendErr := sender.Conn().Send(ctx, frame); sendErr != nil {
		h.logger.Warn("delivery failure not reported", "session_id", sessionID.String(), "error", sendErr)
	}
	return err
}
