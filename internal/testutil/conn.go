package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/HMasataka/chatrelay/pkg/domain"
)

// Conn is a domain.Conn that keeps sent frames in memory. It also
// satisfies the relay transport contract: inbound frames and pongs are
// injected with Receive and Pong.
type Conn struct {
	mu      sync.Mutex
	frames  [][]byte
	pings   int
	closed  bool
	SendErr error

	// AutoPong acknowledges every ping immediately.
	AutoPong bool

	onMessage func([]byte)
	onPong    func()
	started   chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func NewConn() *Conn {
	return &Conn{
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start records the callbacks of the session owner.
func (c *Conn) Start(onMessage func([]byte), onPong func()) {
	c.startOnce.Do(func() {
		c.mu.Lock()
		c.onMessage = onMessage
		c.onPong = onPong
		c.mu.Unlock()
		close(c.started)
	})
}

// Started is closed once Start was called.
func (c *Conn) Started() <-chan struct{} {
	return c.started
}

// Done is closed by Close.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Receive delivers an inbound frame as if read from the network.
func (c *Conn) Receive(frame []byte) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn != nil {
		fn(frame)
	}
}

// Pong delivers a ping acknowledgement.
func (c *Conn) Pong() {
	c.mu.Lock()
	fn := c.onPong
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Conn) Send(_ context.Context, message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrConnectionClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.frames = append(c.frames, message)
	return nil
}

func (c *Conn) Ping() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrConnectionClosed
	}
	c.pings++
	autoPong := c.AutoPong
	c.mu.Unlock()

	if autoPong {
		c.Pong()
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

// Messages decodes every recorded frame of the given type.
func (c *Conn) Messages(messageType domain.MessageType) []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []domain.Message
	for _, raw := range c.frames {
		var msg domain.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == messageType {
			out = append(out, msg)
		}
	}
	return out
}

// DeliveryFailures returns the decoded payloads of every delivery_failed frame.
func (c *Conn) DeliveryFailures() []domain.DeliveryFailed {
	var out []domain.DeliveryFailed
	for _, msg := range c.Messages(domain.MessageTypeDeliveryFailed) {
		var payload domain.DeliveryFailed
		if err := json.Unmarshal(msg.Data, &payload); err == nil {
			out = append(out, payload)
		}
	}
	return out
}

// Chats returns the decoded payloads of every chat frame.
func (c *Conn) Chats() []domain.ChatDelivered {
	var out []domain.ChatDelivered
	for _, msg := range c.Messages(domain.MessageTypeChat) {
		var payload domain.ChatDelivered
		if err := json.Unmarshal(msg.Data, &payload); err == nil {
			out = append(out, payload)
		}
	}
	return out
}

// Rosters returns the decoded payloads of every presence frame.
func (c *Conn) Rosters() []domain.Roster {
	var out []domain.Roster
	for _, msg := range c.Messages(domain.MessageTypePresence) {
		var payload domain.PresencePayload
		if err := json.Unmarshal(msg.Data, &payload); err == nil {
			out = append(out, payload.Online)
		}
	}
	return out
}

// LastRoster returns the most recent roster, or nil.
func (c *Conn) LastRoster() domain.Roster {
	rosters := c.Rosters()
	if len(rosters) == 0 {
		return nil
	}
	return rosters[len(rosters)-1]
}

// Reset forgets recorded frames.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}
