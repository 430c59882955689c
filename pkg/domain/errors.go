package domain

import "errors"

// Common domain errors
var (
	// ErrNotFound is returned by storage lookups for unknown identifiers
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a duplicate user or session
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidCredential is returned when a session credential cannot be verified
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrInvalidMessage is returned when a frame cannot be decoded
	ErrInvalidMessage = errors.New("invalid message")

	// ErrConnectionClosed is returned when trying to use a closed connection
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when a session cannot accept more frames
	ErrSendBufferFull = errors.New("send buffer full")
)
