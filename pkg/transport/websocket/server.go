// Package websocket carries relay sessions over gorilla websocket
// connections.
package websocket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
)

// SessionHandler serves one upgraded connection. It blocks until the
// session ends.
type SessionHandler func(r *http.Request, conn *Conn)

// Server upgrades HTTP requests and hands the connections to a
// SessionHandler.
type Server struct {
	upgrader websocket.Upgrader
	handler  SessionHandler
	logger   *logging.Logger
	options  ServerOptions
}

// NewServer creates a new WebSocket server
func NewServer(handler SessionHandler, opts ...ServerOption) *Server {
	options := ServerOptions{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Conn:            DefaultConnOptions(),
		Logger:          logging.Discard(),
	}

	for _, opt := range opts {
		opt(&options)
	}

	checkOrigin := options.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = AllowOrigins(options.AllowedOrigins)
	}

	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  options.ReadBufferSize,
			WriteBufferSize: options.WriteBufferSize,
			CheckOrigin:     checkOrigin,
		},
		handler: handler,
		logger:  options.Logger,
		options: options,
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error",
			"error", err,
			"remote_addr", r.RemoteAddr,
		)
		return
	}

	logger := s.logger.WithFields(map[string]any{
		"conn_id":     xid.New().String(),
		"remote_addr": r.RemoteAddr,
	})
	conn := NewConn(ws, logger, s.options.Conn)

	logger.Debug("websocket connected")
	s.handler(r, conn)

	conn.Close()
	conn.Wait()
	logger.Debug("websocket disconnected")
}

// AllowOrigins returns an origin check accepting requests without an Origin
// header, same-host requests, and the listed origins. An empty list accepts
// same-host requests only.
func AllowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[strings.ToLower(o)] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := allowed[strings.ToLower(origin)]; ok {
			return true
		}

		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
