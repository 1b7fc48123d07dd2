// Package metrics exposes Prometheus counters and histograms for the
// completion path.
//
// Metrics:
//   - chat_gateway_requests_total: completions by terminal state and mode
//   - chat_gateway_backend_duration_seconds: backend call latency
//   - chat_gateway_tokens_total: approximate tokens by type
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_gateway"

// Collector owns a private registry so tests and multiple servers do not
// collide on the default one.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
}

// NewCollector creates and registers all metrics. A nil registry gets a
// fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Chat completion requests by terminal state",
			},
			[]string{"state", "stream"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_duration_seconds",
				Help:      "Duration of backend generate calls in seconds",
				// LLM latencies: 100ms - 2min
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"backend", "outcome"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Approximate tokens accounted, by type",
			},
			[]string{"type"},
		),
	}
	registry.MustRegister(c.requestsTotal, c.backendDuration, c.tokensTotal)
	return c
}

// RecordRequest counts one request that reached a terminal state.
func (c *Collector) RecordRequest(state string, stream bool) {
	c.requestsTotal.WithLabelValues(state, boolLabel(stream)).Inc()
}

// RecordBackend observes one backend call.
func (c *Collector) RecordBackend(backend string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.backendDuration.WithLabelValues(backend, outcome).Observe(d.Seconds())
}

// RecordTokens adds prompt and completion token counts.
func (c *Collector) RecordTokens(prompt, completion int) {
	c.tokensTotal.WithLabelValues("prompt").Add(float64(prompt))
	c.tokensTotal.WithLabelValues("completion").Add(float64(completion))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
