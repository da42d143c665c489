package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the relay's Prometheus collectors behind nil-safe record
// methods, so instrumentation can be omitted in tests without stubbing.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	mutationsTotal    *prometheus.CounterVec
	sessionsConnected prometheus.Gauge
	broadcastsDropped prometheus.Counter
	persistFailures   prometheus.Counter
}

// New registers the relay collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	mutationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "surveysync_mutations_total",
		Help: "Mutations applied to the state store, by command type",
	}, []string{"command"})

	sessionsConnected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "surveysync_sessions_connected",
		Help: "Currently connected client sessions",
	})

	broadcastsDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "surveysync_broadcasts_dropped_total",
		Help: "Change notifications dropped because a session buffer was full",
	})

	persistFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "surveysync_persist_failures_total",
		Help: "Snapshot persistence attempts that returned an error",
	})

	registry.MustRegister(
		collectors.NewGoCollector(),
		mutationsTotal,
		sessionsConnected,
		broadcastsDropped,
		persistFailures,
	)

	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		mutationsTotal:    mutationsTotal,
		sessionsConnected: sessionsConnected,
		broadcastsDropped: broadcastsDropped,
		persistFailures:   persistFailures,
	}
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// MutationApplied records one applied mutation of the given command type.
func (m *Metrics) MutationApplied(command string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(command).Inc()
}

// SessionOpened increments the connected-session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsConnected.Inc()
}

// SessionClosed decrements the connected-session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsConnected.Dec()
}

// BroadcastDropped records a notification dropped on a full session buffer.
func (m *Metrics) BroadcastDropped() {
	if m == nil {
		return
	}
	m.broadcastsDropped.Inc()
}

// PersistFailure records one failed snapshot write.
func (m *Metrics) PersistFailure() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}
