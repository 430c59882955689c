// Package chatclient is a websocket client for the relay. It keeps one
// session open in the background and reconnects with a constant backoff,
// presenting the same credential so the server re-identifies it.
package chatclient

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/errors"
	"github.com/HMasataka/chatrelay/pkg/transport/protocol"
	"github.com/HMasataka/chatrelay/pkg/transport/websocket"
	"github.com/cenkalti/backoff/v4"
	gorillaws "github.com/gorilla/websocket"
)

// HandlerFunc handles one inbound frame.
type HandlerFunc func(ctx context.Context, msg *domain.Message) error

// ClientOptions represents chat client options
type ClientOptions struct {
	Logger *logging.Logger
	// Token is presented as a cookie named CookieName on every dial.
	Token         string
	CookieName    string
	ReconnectWait time.Duration
	// MaxReconnect bounds consecutive failed dials. Zero retries forever.
	MaxReconnect int
	Conn         websocket.ConnOptions
	// OnStateChange is called when the session opens or drops.
	OnStateChange func(connected bool)
}

// DefaultClientOptions returns default client options
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		CookieName:    "token",
		ReconnectWait: 5 * time.Second,
		Conn:          websocket.DefaultConnOptions(),
	}
}

// Client represents a chat client
type Client struct {
	url     url.URL
	options ClientOptions
	logger  *logging.Logger
	codec   protocol.Codec
	dialer  *gorillaws.Dialer

	handlers   map[domain.MessageType]HandlerFunc
	handlersMu sync.RWMutex

	conn *websocket.Conn
	mu   sync.RWMutex
}

// NewClient creates a new chat client
func NewClient(serverURL url.URL, options ClientOptions) *Client {
	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	if options.CookieName == "" {
		options.CookieName = "token"
	}
	if options.ReconnectWait <= 0 {
		options.ReconnectWait = DefaultClientOptions().ReconnectWait
	}

	return &Client{
		url:      serverURL,
		options:  options,
		logger:   options.Logger,
		codec:    protocol.NewJSONCodec(),
		dialer:   gorillaws.DefaultDialer,
		handlers: make(map[domain.MessageType]HandlerFunc),
	}
}

// OnMessage registers a handler for a specific message type
func (c *Client) OnMessage(messageType domain.MessageType, handler HandlerFunc) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[messageType] = handler
}

// Connected reports whether a session is currently open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Run keeps a session open until ctx is cancelled. It returns nil on
// cancellation and an error once MaxReconnect consecutive dials failed.
func (c *Client) Run(ctx context.Context) error {
	for {
		ws, err := c.dialWithRetry(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, errors.ErrorTypeTransport, "DIAL_ERROR", "failed to connect to server")
		}

		c.serve(ctx, ws)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("connection lost, reconnecting", "wait", c.options.ReconnectWait)
	}
}

// SendChat sends a chat frame on the open session.
func (c *Client) SendChat(ctx context.Context, req domain.ChatRequest) error {
	return c.send(ctx, domain.MessageTypeChat, req)
}

func (c *Client) send(ctx context.Context, messageType domain.MessageType, payload any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return errors.New(errors.ErrorTypeTransport, "NOT_CONNECTED", "not connected to server")
	}

	data, err := protocol.EncodeFrame(c.codec, messageType, payload)
	if err != nil {
		return err
	}
	return conn.Send(ctx, data)
}

func (c *Client) dialWithRetry(ctx context.Context) (*gorillaws.Conn, error) {
	var policy backoff.BackOff = backoff.NewConstantBackOff(c.options.ReconnectWait)
	if c.options.MaxReconnect > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(c.options.MaxReconnect))
	}

	header := http.Header{}
	if c.options.Token != "" {
		header.Add("Cookie", (&http.Cookie{Name: c.options.CookieName, Value: c.options.Token}).String())
	}

	dial := func() (*gorillaws.Conn, error) {
		c.logger.Debug("dialing relay", "url", c.url.String())
		ws, _, err := c.dialer.DialContext(ctx, c.url.String(), header)
		return ws, err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("dial failed", "error", err, "retry_in", wait)
	}

	return backoff.RetryNotifyWithData(dial, backoff.WithContext(policy, ctx), notify)
}

// serve runs one session until either side closes it or ctx ends.
func (c *Client) serve(ctx context.Context, ws *gorillaws.Conn) {
	conn := websocket.NewConn(ws, c.logger, c.options.Conn)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Info("connected to relay", "url", c.url.String())
	c.stateChanged(true)

	conn.Start(func(data []byte) { c.handleMessage(ctx, data) }, nil)

	select {
	case <-conn.Done():
	case <-ctx.Done():
	}
	conn.Close()
	conn.Wait()

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	c.stateChanged(false)
}

func (c *Client) stateChanged(connected bool) {
	if c.options.OnStateChange != nil {
		c.options.OnStateChange(connected)
	}
}

// handleMessage processes incoming messages
func (c *Client) handleMessage(ctx context.Context, data []byte) {
	msg, err := c.codec.Decode(data)
	if err != nil {
		c.logger.Warn("failed to decode frame", "error", err)
		return
	}

	c.handlersMu.RLock()
	handler, exists := c.handlers[msg.Type]
	c.handlersMu.RUnlock()

	if !exists {
		c.logger.Debug("no handler for message type", "type", msg.Type)
		return
	}
	if err := handler(ctx, msg); err != nil {
		c.logger.Warn("frame handler failed", "type", msg.Type, "error", err)
	}
}
