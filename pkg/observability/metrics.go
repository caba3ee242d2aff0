// Package observability exposes Prometheus metrics for the runtime.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters the coordinator and server maintain.
type Metrics struct {
	registry *prometheus.Registry

	QueriesTotal    prometheus.Counter
	RunFailures     prometheus.Counter
	CachePromotions prometheus.Counter
	RetrievalHits   *prometheus.CounterVec
	StepsTotal      *prometheus.CounterVec
	WSConnections   prometheus.Gauge
}

// New creates a metrics set on a private registry, so tests can build as
// many as they like without duplicate-registration panics.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		QueriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "slate_queries_total",
			Help: "Queries accepted by the coordinator.",
		}),
		RunFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "slate_run_failures_total",
			Help: "Runs terminated by an unexpected error.",
		}),
		CachePromotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "slate_cache_promotions_total",
			Help: "Answers promoted into the cross-session cache.",
		}),
		RetrievalHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slate_retrieval_hits_total",
			Help: "Retrieval cascade hits by winning tier.",
		}, []string{"source"}),
		StepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slate_steps_total",
			Help: "Executed plan steps by terminal status.",
		}, []string{"status"}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "slate_ws_connections",
			Help: "Open WebSocket sessions.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
