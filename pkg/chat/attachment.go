package chat

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/HMasataka/chatrelay/pkg/domain"
)

// DecodeAttachment extracts the raw bytes of a client attachment. Data may
// be a data URL ("data:image/png;base64,....") or bare base64.
func DecodeAttachment(file *domain.FilePayload) ([]byte, error) {
	data := file.Data
	if strings.HasPrefix(data, "data:") {
		header, payload, ok := strings.Cut(data, ",")
		if !ok {
			return nil, fmt.Errorf("malformed data url")
		}
		if !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("data url is not base64 encoded")
		}
		data = payload
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty attachment")
	}
	return raw, nil
}

func hasAttachment(file *domain.FilePayload) bool {
	return file != nil && file.Data != ""
}
