package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HMasataka/chatrelay/internal/eventbus"
	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_Observe(t *testing.T) {
	req := require.New(t)
	c := New()

	c.Observe(eventbus.NewEvent(eventbus.EventSessionOpened, "test", eventbus.SessionData{SessionID: "a"}))
	c.Observe(eventbus.NewEvent(eventbus.EventSessionOpened, "test", eventbus.SessionData{SessionID: "b"}))
	c.Observe(eventbus.NewEvent(eventbus.EventSessionEvicted, "test", eventbus.SessionData{SessionID: "a"}))
	c.Observe(eventbus.NewEvent(eventbus.EventPresenceAnnounced, "test", eventbus.PresenceData{Online: 3}))
	c.Observe(eventbus.NewEvent(eventbus.EventMessageRouted, "test", eventbus.MessageData{Kind: "group", Fanout: 2}))
	c.Observe(eventbus.NewEvent(eventbus.EventMessageDropped, "test", eventbus.DropData{Reason: "EMPTY_MESSAGE"}))
	c.Observe(eventbus.NewEvent(eventbus.EventDeliveryFailed, "test", eventbus.DropData{Reason: "PERSISTENCE"}))

	req.Equal(1.0, testutil.ToFloat64(c.sessions))
	req.Equal(3.0, testutil.ToFloat64(c.onlineUsers))
	req.Equal(1.0, testutil.ToFloat64(c.sessionEvents.WithLabelValues("evicted")))
	req.Equal(1.0, testutil.ToFloat64(c.routed.WithLabelValues("group")))
	req.Equal(1.0, testutil.ToFloat64(c.dropped.WithLabelValues("EMPTY_MESSAGE")))
	req.Equal(1.0, testutil.ToFloat64(c.failed))
}

func TestCollector_SubscribedToBus(t *testing.T) {
	req := require.New(t)
	bus, err := eventbus.NewInMemoryBus(2, logging.Discard())
	req.NoError(err)
	t.Cleanup(bus.Stop)

	c := New()
	c.Subscribe(bus)
	bus.PublishAsync(eventbus.NewEvent(eventbus.EventMessageRouted, "test", eventbus.MessageData{Kind: "peer", Fanout: 1}))

	req.Eventually(func() bool {
		return testutil.ToFloat64(c.routed.WithLabelValues("peer")) == 1
	}, time.Second, 5*time.Millisecond)

	c.Unsubscribe(bus)
	bus.Publish(eventbus.NewEvent(eventbus.EventMessageRouted, "test", eventbus.MessageData{Kind: "peer", Fanout: 1}))
	req.Equal(1.0, testutil.ToFloat64(c.routed.WithLabelValues("peer")))
}

func TestCollector_Handler(t *testing.T) {
	req := require.New(t)
	c := New()
	c.Observe(eventbus.NewEvent(eventbus.EventSessionOpened, "test", eventbus.SessionData{SessionID: "a"}))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.True(strings.Contains(rec.Body.String(), "chatrelay_sessions 1"))
}
