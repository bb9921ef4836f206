package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomePanic = "panic"

	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Metrics owns a private registry so that several servers (and tests) can
// live in one process.
type Metrics struct {
	registry *prometheus.Registry

	Connections      prometheus.Gauge
	Events           *prometheus.CounterVec
	BroadcastDropped prometheus.Counter
	AuthzCache       *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presence_connections",
			Help: "Live websocket connections.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_events_total",
			Help: "Inbound events by name and outcome.",
		}, []string{"event", "outcome"}),
		BroadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "presence_broadcast_dropped_total",
			Help: "Frames that could not be queued to a connection.",
		}),
		AuthzCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_authz_cache_total",
			Help: "Diagram authorization cache lookups.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.Connections,
		m.Events,
		m.BroadcastDropped,
		m.AuthzCache,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveEvent(event, outcome string) {
	m.Events.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
