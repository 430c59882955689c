// Package metrics exports relay activity to Prometheus. The collector is fed
// by the event bus, so the session core never touches a metric directly.
package metrics

import (
	"net/http"

	"github.com/HMasataka/chatrelay/internal/eventbus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatrelay"

// fanoutBuckets count sessions reached by one chat frame.
var fanoutBuckets = prometheus.ExponentialBuckets(1, 2, 10)

// Collector turns relay events into Prometheus metrics.
type Collector struct {
	sessions      prometheus.Gauge
	onlineUsers   prometheus.Gauge
	sessionEvents *prometheus.CounterVec
	routed        *prometheus.CounterVec
	fanout        prometheus.Histogram
	dropped       *prometheus.CounterVec
	failed        prometheus.Counter

	registry *prometheus.Registry
	subs     []string
}

func New() *Collector {
	c := &Collector{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "number of open websocket sessions",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "number of users in the last announced roster",
		}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "session lifecycle transitions",
		}, []string{"event"}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_routed_total",
			Help:      "chat messages persisted and fanned out",
		}, []string{"kind"}),
		fanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_fanout_sessions",
			Help:      "sessions a chat frame was enqueued to",
			Buckets:   fanoutBuckets,
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "chat frames dropped before persistence",
		}, []string{"reason"}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "chat messages that could not be persisted",
		}),
		registry: prometheus.NewRegistry(),
	}

	c.registry.MustRegister(
		c.sessions,
		c.onlineUsers,
		c.sessionEvents,
		c.routed,
		c.fanout,
		c.dropped,
		c.failed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry holding every relay metric.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Subscribe starts consuming events from bus.
func (c *Collector) Subscribe(bus eventbus.Bus) {
	c.subs = append(c.subs, bus.SubscribeAll(c.Observe))
}

// Unsubscribe stops consuming events from bus.
func (c *Collector) Unsubscribe(bus eventbus.Bus) {
	for _, id := range c.subs {
		bus.Unsubscribe(id)
	}
	c.subs = nil
}

// Observe records one event.
func (c *Collector) Observe(event *eventbus.Event) {
	switch event.Type {
	case eventbus.EventSessionOpened:
		c.sessions.Inc()
		c.sessionEvents.WithLabelValues("opened").Inc()
	case eventbus.EventSessionIdentified:
		c.sessionEvents.WithLabelValues("identified").Inc()
	case eventbus.EventSessionClosed:
		c.sessions.Dec()
		c.sessionEvents.WithLabelValues("closed").Inc()
	case eventbus.EventSessionEvicted:
		c.sessions.Dec()
		c.sessionEvents.WithLabelValues("evicted").Inc()
	case eventbus.EventPresenceAnnounced:
		if data, ok := event.Data.(eventbus.PresenceData); ok {
			c.onlineUsers.Set(float64(data.Online))
		}
	case eventbus.EventMessageRouted:
		if data, ok := event.Data.(eventbus.MessageData); ok {
			c.routed.WithLabelValues(data.Kind).Inc()
			c.fanout.Observe(float64(data.Fanout))
		}
	case eventbus.EventMessageDropped:
		if data, ok := event.Data.(eventbus.DropData); ok {
			c.dropped.WithLabelValues(data.Reason).Inc()
		}
	case eventbus.EventDeliveryFailed:
		c.failed.Inc()
	}
}
