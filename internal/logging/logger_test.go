package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSONWithFields(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	logger := NewWithWriter(Config{Level: "debug", Format: "json"}, &buf).
		WithFields(map[string]any{"session_id": "s1"})
	logger.Debug("session identified", "user_id", "u1")

	var line map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &line))
	req.Equal("session identified", line["msg"])
	req.Equal("s1", line["session_id"])
	req.Equal("u1", line["user_id"])
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "warning", Format: "text"}, &buf)

	logger.Info("dropped")
	require.Empty(t, buf.String())

	logger.Warn("kept")
	require.Contains(t, buf.String(), "kept")
}

func TestFromContext(t *testing.T) {
	req := require.New(t)
	logger := Discard()

	req.Same(logger, FromContext(WithLogger(context.Background(), logger)))
	req.Equal(slog.Default(), FromContext(context.Background()).Logger)
}
