package websocket

import (
	"net/http"

	"github.com/HMasataka/chatrelay/internal/logging"
)

// ServerOptions represents websocket server options
type ServerOptions struct {
	ReadBufferSize  int
	WriteBufferSize int
	AllowedOrigins  []string
	CheckOrigin     func(r *http.Request) bool
	Conn            ConnOptions
	Logger          *logging.Logger
}

// ServerOption is a function that configures ServerOptions
type ServerOption func(*ServerOptions)

// WithLogger sets the logger for the server
func WithLogger(logger *logging.Logger) ServerOption {
	return func(o *ServerOptions) {
		o.Logger = logger
	}
}

// WithAllowedOrigins restricts browser origins allowed to connect
func WithAllowedOrigins(origins ...string) ServerOption {
	return func(o *ServerOptions) {
		o.AllowedOrigins = origins
	}
}

// WithCheckOrigin sets the check origin function, overriding WithAllowedOrigins
func WithCheckOrigin(checkOrigin func(r *http.Request) bool) ServerOption {
	return func(o *ServerOptions) {
		o.CheckOrigin = checkOrigin
	}
}

// WithConnOptions sets the options of every accepted connection
func WithConnOptions(options ConnOptions) ServerOption {
	return func(o *ServerOptions) {
		o.Conn = options
	}
}
