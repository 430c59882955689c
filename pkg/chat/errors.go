package chat

import (
	"github.com/HMasataka/chatrelay/pkg/errors"
)

// Routing failures. Everything but ErrPersistence is dropped silently;
// persistence failures are reported back to the sender.
var (
	ErrUnauthenticatedFrame = errors.New(errors.ErrorTypeUnauthorized, "UNAUTHENTICATED_FRAME", "chat frame from unidentified session")
	ErrEmptyMessage         = errors.New(errors.ErrorTypeValidation, "EMPTY_MESSAGE", "chat frame has neither text nor attachment")
	ErrUnresolvableTarget   = errors.New(errors.ErrorTypeNotFound, "UNRESOLVABLE_TARGET", "recipient is neither a group nor a user")
	ErrAttachmentStaging    = errors.New(errors.ErrorTypeStorage, "ATTACHMENT_STAGING", "failed to stage attachment")
	ErrPersistence          = errors.New(errors.ErrorTypeStorage, "PERSISTENCE", "failed to persist message")
)

// Reason returns a short machine-readable reason for a routing error.
func Reason(err error) string {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// ReportToSender reports whether err must be surfaced to the sending
// session instead of being dropped.
func ReportToSender(err error) bool {
	return errors.Is(err, ErrPersistence)
}
