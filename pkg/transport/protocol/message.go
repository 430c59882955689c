package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/errors"
)

// Codec defines the interface for frame encoding/decoding
type Codec interface {
	// Encode encodes a domain message to bytes
	Encode(msg *domain.Message) ([]byte, error)

	// Decode decodes bytes to a domain message
	Decode(data []byte) (*domain.Message, error)
}

// JSONCodec implements Codec using JSON
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Encode implements the Codec interface
func (c *JSONCodec) Encode(msg *domain.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "MARSHAL_ERROR", "failed to marshal frame")
	}
	return data, nil
}

// Decode implements the Codec interface
func (c *JSONCodec) Decode(data []byte) (*domain.Message, error) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err),
			errors.ErrorTypeProtocol, "INVALID_MESSAGE", "failed to unmarshal frame")
	}
	if msg.Type == "" {
		return nil, errors.Wrap(domain.ErrInvalidMessage, errors.ErrorTypeProtocol, "INVALID_MESSAGE", "frame has no type")
	}
	return &msg, nil
}

// EncodeFrame wraps payload in a fresh envelope and encodes it.
func EncodeFrame(codec Codec, messageType domain.MessageType, payload any) ([]byte, error) {
	msg, err := domain.NewMessage(messageType, payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "MARSHAL_ERROR", "failed to marshal payload")
	}
	return codec.Encode(msg)
}

// DecodePayload decodes the data of msg into v.
func DecodePayload(msg *domain.Message, v any) error {
	if len(msg.Data) == 0 {
		return errors.New(errors.ErrorTypeProtocol, "INVALID_PAYLOAD", "frame has no data")
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProtocol, "INVALID_PAYLOAD", "failed to unmarshal payload").
			WithDetails(string(msg.Type))
	}
	return nil
}
