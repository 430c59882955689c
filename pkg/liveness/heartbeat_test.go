package liveness

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	pings  atomic.Int32
	err    error
	onPing func()
}

func (p *fakePinger) Ping() error {
	p.pings.Add(1)
	if p.onPing != nil {
		p.onPing()
	}
	return p.err
}

func TestHeartbeat_AckingSessionIsNeverEvicted(t *testing.T) {
	req := require.New(t)
	period := 20 * time.Millisecond
	var evicted atomic.Bool

	pinger := &fakePinger{}
	hb := New(period, pinger, func() { evicted.Store(true) }, logging.Discard())
	// acknowledge every ping as soon as it is sent
	pinger.onPing = hb.Ack

	hb.Start()
	defer hb.Stop()

	time.Sleep(10 * period)

	req.False(evicted.Load())
	req.NotEqual(Dead, hb.State())
	req.GreaterOrEqual(pinger.pings.Load(), int32(5))
}

func TestHeartbeat_SilentSessionIsEvictedWithinTwoPeriods(t *testing.T) {
	req := require.New(t)
	period := 30 * time.Millisecond
	evicted := make(chan time.Time, 1)

	pinger := &fakePinger{}
	hb := New(period, pinger, func() { evicted <- time.Now() }, logging.Discard())

	start := time.Now()
	hb.Start()

	select {
	case at := <-evicted:
		elapsed := at.Sub(start)
		req.GreaterOrEqual(elapsed, 2*period-5*time.Millisecond)
		req.Less(elapsed, 2*period+100*time.Millisecond)
	case <-time.After(time.Second):
		req.Fail("session was not evicted")
	}

	req.Equal(Dead, hb.State())
	req.Equal(int32(1), pinger.pings.Load())
}

func TestHeartbeat_LateAckSavesSession(t *testing.T) {
	req := require.New(t)
	var evictions int

	hb := New(time.Hour, &fakePinger{}, func() { evictions++ }, logging.Discard())

	hb.fire()
	req.Equal(AwaitingPong, hb.State())

	// ack arrives just before the second fire
	hb.Ack()
	req.Equal(Alive, hb.State())

	hb.fire()
	req.Equal(AwaitingPong, hb.State())
	req.Zero(evictions)

	hb.fire()
	req.Equal(Dead, hb.State())
	req.Equal(1, evictions)

	// terminal: neither acks nor fires change anything
	hb.Ack()
	hb.fire()
	req.Equal(Dead, hb.State())
	req.Equal(1, evictions)
}

func TestHeartbeat_FailedPingDoesNotEvictImmediately(t *testing.T) {
	req := require.New(t)
	var evictions int

	hb := New(time.Hour, &fakePinger{err: errors.New("write failed")}, func() { evictions++ }, logging.Discard())

	hb.fire()

	req.Equal(AwaitingPong, hb.State())
	req.Zero(evictions)
}

func TestHeartbeat_StopCancelsTimer(t *testing.T) {
	req := require.New(t)
	period := 10 * time.Millisecond
	var evicted atomic.Bool

	pinger := &fakePinger{}
	hb := New(period, pinger, func() { evicted.Store(true) }, logging.Discard())

	hb.Start()
	hb.Stop()
	pingsAtStop := pinger.pings.Load()

	time.Sleep(5 * period)
	hb.fire()

	req.False(evicted.Load())
	req.Equal(pingsAtStop, pinger.pings.Load())
	req.Equal(Alive, hb.State())

	// idempotent
	hb.Stop()
}
