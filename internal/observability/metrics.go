// Package observability provides Prometheus metrics for the proxy.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ragproxy"

// Metrics holds the proxy's Prometheus collectors on a private registry so
// tests can construct isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal         *prometheus.CounterVec
	EnrichmentTaskSeconds *prometheus.HistogramVec
	ActiveStreams         prometheus.Gauge
}

// NewMetrics creates and registers the proxy metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Requests handled, by route class and status code",
			},
			[]string{"route", "status"},
		),
		EnrichmentTaskSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "enrichment_task_seconds",
				Help:      "Duration of one enrichment subtask",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"task"},
		),
		ActiveStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_streams",
				Help:      "Client streams currently open",
			},
		),
	}

	registry.MustRegister(m.RequestsTotal, m.EnrichmentTaskSeconds, m.ActiveStreams)
	return m
}

// ObserveEnrichmentTask records one subtask duration.
func (m *Metrics) ObserveEnrichmentTask(task string, seconds float64) {
	m.EnrichmentTaskSeconds.WithLabelValues(task).Observe(seconds)
}

// CountRequest increments the request counter.
func (m *Metrics) CountRequest(route, status string) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
