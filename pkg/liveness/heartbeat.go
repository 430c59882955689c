// Package liveness detects silently dropped sessions with a per-session
// ping/acknowledge state machine.
package liveness

import (
	"sync"
	"time"

	"github.com/HMasataka/chatrelay/internal/logging"
)

// State is the liveness state of one session.
type State int

const (
	// Alive means the last ping was acknowledged, or none was sent yet.
	Alive State = iota
	// AwaitingPong means a ping is outstanding.
	AwaitingPong
	// Dead is terminal: the session missed a full period without acknowledging.
	Dead
)

func (s State) String() string {
	switch s {
	case Alive:
		return "alive"
	case AwaitingPong:
		return "awaiting_pong"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Pinger sends a liveness ping over the session transport.
type Pinger interface {
	Ping() error
}

// Heartbeat is the liveness state machine of a single session.
//
// Every period the timer fires: an Alive session is pinged and moves to
// AwaitingPong; a session still AwaitingPong is declared Dead and onDead is
// invoked once. Ack moves the session back to Alive from either live state.
type Heartbeat struct {
	period time.Duration
	pinger Pinger
	onDead func()
	logger *logging.Logger

	mu      sync.Mutex
	state   State
	stopped bool

	// firing is held for a whole fire, ping and onDead included
	firing sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a heartbeat in the Alive state. The timer does not run until
// Start is called.
func New(period time.Duration, pinger Pinger, onDead func(), logger *logging.Logger) *Heartbeat {
	return &Heartbeat{
		period: period,
		pinger: pinger,
		onDead: onDead,
		logger: logger,
		state:  Alive,
		stop:   make(chan struct{}),
	}
}

// Start launches the recurring timer.
func (h *Heartbeat) Start() {
	go h.run()
}

// Ack records a ping acknowledgement.
func (h *Heartbeat) Ack() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == Dead {
		return
	}
	h.state = Alive
}

// Stop cancels the timer. After Stop returns no further ping is sent and
// onDead is never invoked. A fire already in progress completes first, so
// Stop must not be called from onDead.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()

	// wait out an in-flight fire
	h.firing.Lock()
	h.firing.Unlock()

	h.closeStop()
}

// State returns the current state.
func (h *Heartbeat) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Heartbeat) run() {
	ticker := time.NewTicker(h.period)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.fire()
		}
	}
}

func (h *Heartbeat) fire() {
	h.firing.Lock()
	defer h.firing.Unlock()

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}

	switch h.state {
	case Alive:
		h.state = AwaitingPong
		h.mu.Unlock()

		// a failed ping is not fatal here; the next fire evicts
		if err := h.pinger.Ping(); err != nil {
			h.logger.Debug("liveness ping failed", "error", err)
		}

	case AwaitingPong:
		h.state = Dead
		h.stopped = true
		h.mu.Unlock()

		h.closeStop()
		if h.onDead != nil {
			h.onDead()
		}

	default:
		h.mu.Unlock()
	}
}

func (h *Heartbeat) closeStop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}
