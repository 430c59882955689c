package errors

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesTypeAndCode(t *testing.T) {
	req := require.New(t)
	sentinel := New(ErrorTypeStorage, "PERSISTENCE_FAILED", "message could not be persisted")

	err := WrapAs(fmt.Errorf("disk full"), sentinel)

	req.True(Is(err, sentinel))
	req.False(Is(err, New(ErrorTypeStorage, "OTHER", "other")))
	req.ErrorContains(err, "disk full")
	req.Equal(ErrorTypeStorage, TypeOf(fmt.Errorf("wrapped: %w", err)))
	req.Equal(ErrorTypeInternal, TypeOf(fmt.Errorf("plain")))
}

func TestDefaultHandler_LevelByType(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := NewDefaultHandler(logger)

	h.Handle(context.Background(), New(ErrorTypeProtocol, "BAD_FRAME", "bad frame"))
	req.Empty(buf.String())

	h.Handle(context.Background(), New(ErrorTypeStorage, "PERSISTENCE_FAILED", "persist failed"))
	req.Contains(buf.String(), "level=ERROR")
	req.Contains(buf.String(), "error_code=PERSISTENCE_FAILED")
}

func TestErrorType_StringAndLevel(t *testing.T) {
	req := require.New(t)
	req.Equal("storage", ErrorTypeStorage.String())
	req.Equal("conflict", ErrorTypeConflict.String())
	req.Equal("unknown", ErrorType(99).String())

	req.Equal(slog.LevelError, ErrorTypeStorage.Level())
	req.Equal(slog.LevelWarn, ErrorTypeTransport.Level())
	req.Equal(slog.LevelDebug, ErrorTypeValidation.Level())
}
