package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/xid"
)

// Handler represents an event handler function
type Handler func(event *Event)

// Bus represents an event bus
type Bus interface {
	// Publish delivers an event to all subscribers on the caller's goroutine
	Publish(event *Event)

	// PublishAsync hands the event to the worker pool. It never blocks;
	// events are dropped when the pool is saturated.
	PublishAsync(event *Event)

	// Subscribe subscribes to events of a specific type
	Subscribe(eventType EventType, handler Handler) string

	// SubscribeAll subscribes to all events
	SubscribeAll(handler Handler) string

	// Unsubscribe removes a subscription
	Unsubscribe(id string)

	// Stop waits for in-flight async events and releases the workers
	Stop()
}

// subscription represents a single subscription
type subscription struct {
	id        string
	eventType EventType
	handler   Handler
}

// InMemoryBus is an in-memory implementation of the event bus backed by an
// ants worker pool.
type InMemoryBus struct {
	subscribers map[EventType][]*subscription
	allHandlers []*subscription
	mu          sync.RWMutex

	pool    *ants.Pool
	logger  *logging.Logger
	wg      sync.WaitGroup
	closed  bool
	dropped atomic.Uint64
}

// NewInMemoryBus creates a bus dispatching async events on at most
// workers goroutines.
func NewInMemoryBus(workers int, logger *logging.Logger) (*InMemoryBus, error) {
	if workers <= 0 {
		workers = 1
	}

	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(true),
		ants.WithExpiryDuration(time.Minute),
		ants.WithPanicHandler(func(v any) {
			logger.Error("event handler panicked", "panic", v)
		}),
	)
	if err != nil {
		return nil, err
	}

	return &InMemoryBus{
		subscribers: make(map[EventType][]*subscription),
		allHandlers: make([]*subscription, 0),
		pool:        pool,
		logger:      logger,
	}, nil
}

// Publish publishes an event synchronously
func (b *InMemoryBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers[event.Type])+len(b.allHandlers))
	for _, sub := range b.subscribers[event.Type] {
		handlers = append(handlers, sub.handler)
	}
	for _, sub := range b.allHandlers {
		handlers = append(handlers, sub.handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// PublishAsync publishes an event asynchronously
func (b *InMemoryBus) PublishAsync(event *Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	b.wg.Add(1)
	b.mu.RUnlock()

	err := b.pool.Submit(func() {
		defer b.wg.Done()
		b.Publish(event)
	})
	if err != nil {
		b.wg.Done()
		b.dropped.Add(1)
		b.logger.Debug("event dropped", "event_type", event.Type, "error", err)
	}
}

// Dropped returns how many async events were discarded.
func (b *InMemoryBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe subscribes to events of a specific type
func (b *InMemoryBus) Subscribe(eventType EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		id:        xid.New().String(),
		eventType: eventType,
		handler:   handler,
	}

	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	return sub.id
}

// SubscribeAll subscribes to all events
func (b *InMemoryBus) SubscribeAll(handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		id:      xid.New().String(),
		handler: handler,
	}

	b.allHandlers = append(b.allHandlers, sub)
	return sub.id
}

// Unsubscribe removes a subscription
func (b *InMemoryBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for i, sub := range subs {
			if sub.id == id {
				b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}

	for i, sub := range b.allHandlers {
		if sub.id == id {
			b.allHandlers = append(b.allHandlers[:i:i], b.allHandlers[i+1:]...)
			return
		}
	}
}

// Stop stops the event bus. Events published after Stop are discarded.
func (b *InMemoryBus) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	b.pool.Release()
}

// Nop is a Bus that discards everything.
type Nop struct{}

func (Nop) Publish(*Event) {}
func (Nop) PublishAsync(*Event) {}
func (Nop) Subscribe(EventType, Handler) string { return "" }
func (Nop) SubscribeAll(Handler) string { return "" }
func (Nop) Unsubscribe(string) {}
func (Nop) Stop() {}
