package errors

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrorType represents the type of error
type ErrorType int

const (
	// ErrorTypeTransport indicates a transport layer error
	ErrorTypeTransport ErrorType = iota
	// ErrorTypeProtocol indicates a malformed or unexpected frame
	ErrorTypeProtocol
	// ErrorTypeStorage indicates a persistence or attachment staging error
	ErrorTypeStorage
	// ErrorTypeNotFound indicates a not found error
	ErrorTypeNotFound
	// ErrorTypeUnauthorized indicates an authorization error
	ErrorTypeUnauthorized
	// ErrorTypeInternal indicates an internal error
	ErrorTypeInternal
	// ErrorTypeTimeout indicates a timeout error
	ErrorTypeTimeout
	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation
	// ErrorTypeConflict indicates the resource already exists
	ErrorTypeConflict
)

var typeNames = [...]string{
	ErrorTypeTransport:    "transport",
	ErrorTypeProtocol:     "protocol",
	ErrorTypeStorage:      "storage",
	ErrorTypeNotFound:     "not_found",
	ErrorTypeUnauthorized: "unauthorized",
	ErrorTypeInternal:     "internal",
	ErrorTypeTimeout:      "timeout",
	ErrorTypeValidation:   "validation",
	ErrorTypeConflict:     "conflict",
}

func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// Level is the log level errors of this type are reported at. Client
// mistakes stay at debug so a misbehaving peer cannot flood the log.
func (t ErrorType) Level() slog.Level {
	switch t {
	case ErrorTypeInternal, ErrorTypeStorage:
		return slog.LevelError
	case ErrorTypeTimeout, ErrorTypeNotFound, ErrorTypeTransport:
		return slog.LevelWarn
	case ErrorTypeProtocol, ErrorTypeUnauthorized, ErrorTypeValidation:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Error represents a structured error with metadata
type Error struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Message, e.Details, e.Cause)
	}
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// New creates a new error
func New(errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Cause:     err,
		Timestamp: time.Now(),
	}
}

// WrapAs wraps err keeping the type and code of sentinel, so that
// errors.Is(result, sentinel) holds.
func WrapAs(err error, sentinel *Error) *Error {
	return Wrap(err, sentinel.Type, sentinel.Code, sentinel.Message)
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// TypeOf returns the ErrorType of err, or ErrorTypeInternal when err is not
// a structured error.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
