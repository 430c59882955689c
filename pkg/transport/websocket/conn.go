package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/errors"
	"github.com/gorilla/websocket"
)

// ConnOptions represents websocket connection options
type ConnOptions struct {
	WriteTimeout   time.Duration
	MaxMessageSize int64
	SendBufferSize int
}

// DefaultConnOptions returns default connection options
func DefaultConnOptions() ConnOptions {
	return ConnOptions{
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 16 << 20,
		SendBufferSize: 256,
	}
}

// Conn is one websocket connection with a single write pump. It implements
// domain.Conn: Send and Ping only enqueue, the pump does the writing, so
// writes on one connection never interleave.
type Conn struct {
	conn    *websocket.Conn
	logger  *logging.Logger
	options ConnOptions

	sendChan chan []byte
	pingChan chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewConn wraps an established websocket connection. Pumps start with Start.
func NewConn(conn *websocket.Conn, logger *logging.Logger, options ConnOptions) *Conn {
	ctx, cancel := context.WithCancel(context.Background())

	defaults := DefaultConnOptions()
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = defaults.WriteTimeout
	}
	if options.MaxMessageSize <= 0 {
		options.MaxMessageSize = defaults.MaxMessageSize
	}
	if options.SendBufferSize <= 0 {
		options.SendBufferSize = defaults.SendBufferSize
	}

	return &Conn{
		conn:     conn,
		logger:   logger,
		options:  options,
		sendChan: make(chan []byte, options.SendBufferSize),
		pingChan: make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Send implements domain.Conn. It never blocks on the network.
func (c *Conn) Send(ctx context.Context, message []byte) error {
	if c.ctx.Err() != nil {
		return domain.ErrConnectionClosed
	}

	select {
	case c.sendChan <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return domain.ErrConnectionClosed
	default:
		return errors.Wrap(domain.ErrSendBufferFull, errors.ErrorTypeTransport, "SEND_BUFFER_FULL", "send buffer is full")
	}
}

// Ping implements domain.Conn. At most one ping is queued at a time.
func (c *Conn) Ping() error {
	if c.ctx.Err() != nil {
		return domain.ErrConnectionClosed
	}

	select {
	case c.pingChan <- struct{}{}:
	default:
	}
	return nil
}

// Close implements domain.Conn. It does not wait for the pumps; use Wait.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.logger.Debug("closing websocket connection")
		c.cancel()

		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

		err = c.conn.Close()
	})
	return err
}

// Done is closed once the connection is closed by either side.
func (c *Conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Wait blocks until both pumps have exited.
func (c *Conn) Wait() {
	c.wg.Wait()
}

// Start launches the read and write pumps. onMessage receives every text or
// binary frame; onPong is called for every pong control frame. Both run on
// the read pump goroutine.
func (c *Conn) Start(onMessage func([]byte), onPong func()) {
	c.startOnce.Do(func() {
		c.conn.SetReadLimit(c.options.MaxMessageSize)
		c.conn.SetPongHandler(func(string) error {
			if onPong != nil {
				onPong()
			}
			return nil
		})

		c.wg.Add(2)
		go c.readPump(onMessage)
		go c.writePump()
	})
}

// readPump pumps messages from the websocket connection
func (c *Conn) readPump(onMessage func([]byte)) {
	defer c.wg.Done()
	defer func() {
		c.logger.Debug("read pump stopped")
		c.Close()
	}()

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		if onMessage != nil {
			onMessage(message)
		}
	}
}

// writePump pumps queued frames and pings to the websocket connection. A
// failed write is logged and the frame dropped; a dead peer is left to the
// liveness monitor.
func (c *Conn) writePump() {
	defer c.wg.Done()
	defer c.logger.Debug("write pump stopped")

	for {
		select {
		case <-c.ctx.Done():
			return

		case message := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("websocket write error", "error", err)
			}

		case <-c.pingChan:
			deadline := time.Now().Add(c.options.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("websocket ping error", "error", err)
			}
		}
	}
}
