package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's Prometheus collectors on a private registry.
//
// A nil *Metrics is valid and records nothing, so components can take one
// optionally.
type Metrics struct {
	registry      *prometheus.Registry
	rooms         prometheus.Gauge
	relaysActive  prometheus.Gauge
	published     prometheus.Counter
	lagged        prometheus.Counter
	relayDuration prometheus.Histogram
	httpRequests  *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors.
//
// Postcondition: Returns a non-nil Metrics whose Handler serves every collector.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatrelay_rooms",
			Help: "Number of rooms currently registered.",
		}),
		relaysActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatrelay_relays_active",
			Help: "Number of connections currently relaying.",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_messages_published_total",
			Help: "Messages published to room topics.",
		}),
		lagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_messages_lagged_total",
			Help: "Messages skipped by receivers that fell behind.",
		}),
		relayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatrelay_relay_duration_seconds",
			Help:    "Lifetime of relay sessions.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(
		m.rooms,
		m.relaysActive,
		m.published,
		m.lagged,
		m.relayDuration,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RoomCreated increments the room gauge.
func (m *Metrics) RoomCreated() {
	if m != nil {
		m.rooms.Inc()
	}
}

// RoomDeleted decrements the room gauge.
func (m *Metrics) RoomDeleted() {
	if m != nil {
		m.rooms.Dec()
	}
}

// RelayStarted increments the active relay gauge.
func (m *Metrics) RelayStarted() {
	if m != nil {
		m.relaysActive.Inc()
	}
}

// RelayFinished decrements the active relay gauge and records the session lifetime.
func (m *Metrics) RelayFinished(d time.Duration) {
	if m != nil {
		m.relaysActive.Dec()
		m.relayDuration.Observe(d.Seconds())
	}
}

// MessagePublished counts one message published to a room.
func (m *Metrics) MessagePublished() {
	if m != nil {
		m.published.Inc()
	}
}

// MessagesLagged counts n messages skipped by a lagging receiver.
func (m *Metrics) MessagesLagged(n uint64) {
	if m != nil {
		m.lagged.Add(float64(n))
	}
}

// HTTPRequest counts one served request.
func (m *Metrics) HTTPRequest(route, code string) {
	if m != nil {
		m.httpRequests.WithLabelValues(route, code).Inc()
	}
}
