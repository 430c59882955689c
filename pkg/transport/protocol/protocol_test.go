package protocol

import (
	"context"
	"testing"

	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec_RoundTripsEnvelope(t *testing.T) {
	req := require.New(t)
	codec := NewJSONCodec()

	raw, err := EncodeFrame(codec, domain.MessageTypeChat, domain.ChatRequest{Recipient: "bob", Text: "hi"})
	req.NoError(err)

	msg, err := codec.Decode(raw)
	req.NoError(err)
	req.Equal(domain.MessageTypeChat, msg.Type)
	req.NotEmpty(msg.ID)

	var chat domain.ChatRequest
	req.NoError(DecodePayload(msg, &chat))
	req.Equal("bob", chat.Recipient)
	req.Equal("hi", chat.Text)
	req.Equal(domain.TargetUnspecified, chat.Kind)
}

func TestJSONCodec_RejectsMalformedFrames(t *testing.T) {
	req := require.New(t)
	codec := NewJSONCodec()

	_, err := codec.Decode([]byte("{not json"))
	req.Equal(errors.ErrorTypeProtocol, errors.TypeOf(err))
	req.True(errors.Is(err, domain.ErrInvalidMessage))

	_, err = codec.Decode([]byte(`{"data":{}}`))
	req.Equal(errors.ErrorTypeProtocol, errors.TypeOf(err))
	req.True(errors.Is(err, domain.ErrInvalidMessage))

	err = DecodePayload(&domain.Message{Type: domain.MessageTypeChat}, &domain.ChatRequest{})
	req.Equal(errors.ErrorTypeProtocol, errors.TypeOf(err))
}

func TestHandlerRegistry_Dispatch(t *testing.T) {
	req := require.New(t)
	reg := NewHandlerRegistry()

	var got domain.SessionID
	reg.Register(domain.MessageTypeChat, HandlerFunc(func(_ context.Context, id domain.SessionID, _ *domain.Message) error {
		got = id
		return nil
	}))

	req.NoError(reg.Handle(context.Background(), "s1", &domain.Message{Type: domain.MessageTypeChat}))
	req.Equal(domain.SessionID("s1"), got)

	err := reg.Handle(context.Background(), "s1", &domain.Message{Type: "bogus"})
	req.Error(err)
	req.Equal(errors.ErrorTypeProtocol, errors.TypeOf(err))
}
