package errors

import (
	"context"
	stderrors "errors"
	"log/slog"
)

// Handler reports errors that have no caller to return to, such as a
// failed inbound frame.
type Handler interface {
	Handle(ctx context.Context, err error)
	HandleWithLogger(ctx context.Context, err error, logger *slog.Logger)
}

// DefaultHandler logs structured errors at the level of their type.
type DefaultHandler struct {
	logger *slog.Logger
}

func NewDefaultHandler(logger *slog.Logger) *DefaultHandler {
	return &DefaultHandler{logger: logger}
}

// Handle implements Handler.
func (h *DefaultHandler) Handle(ctx context.Context, err error) {
	h.HandleWithLogger(ctx, err, h.logger)
}

// HandleWithLogger implements Handler. Plain errors are logged at error
// level since nothing classified them.
func (h *DefaultHandler) HandleWithLogger(ctx context.Context, err error, logger *slog.Logger) {
	if err == nil {
		return
	}

	var e *Error
	if !stderrors.As(err, &e) {
		logger.ErrorContext(ctx, "unhandled error", slog.String("error", err.Error()))
		return
	}

	attrs := []any{
		slog.String("error_code", e.Code),
		slog.String("error_type", e.Type.String()),
	}
	if e.Details != "" {
		attrs = append(attrs, slog.String("details", e.Details))
	}
	if e.Cause != nil {
		attrs = append(attrs, slog.String("cause", e.Cause.Error()))
	}

	logger.Log(ctx, e.Type.Level(), e.Message, attrs...)
}
