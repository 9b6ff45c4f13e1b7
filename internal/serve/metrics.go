package serve

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects per-request counters and latency for the pipeline. Each
// pipeline owns its registry so rebuilding the pipeline on restart never
// double-registers collectors.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    *prometheus.HistogramVec
}

// NewMetrics creates the pipeline metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "breeze",
			Name:      "requests_total",
			Help:      "Requests handled, by method, source tag, and status class.",
		}, []string{"method", "source", "class"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "breeze",
			Name:      "request_duration_seconds",
			Help:      "Request handling duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		bytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "breeze",
			Name:      "response_size_bytes",
			Help:      "Response body size.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"source"}),
	}
}

// Observe records one completed request.
func (m *Metrics) Observe(ev TraceEvent) {
	m.requests.WithLabelValues(ev.Method, ev.Source, statusClass(ev.Status)).Inc()
	m.duration.WithLabelValues(ev.Source).Observe(ev.Elapsed.Seconds())
	m.bytes.WithLabelValues(ev.Source).Observe(float64(ev.Bytes))
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusClass buckets a status code ("2xx", "4xx", ...).
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}
