// Package metrics exposes Prometheus collectors for the payment server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors of one payment server. Each bundle owns its
// registry so several server variants can live in one process without
// colliding. A nil *Metrics records nothing, keeping instrumentation
// optional at every call site.
type Metrics struct {
	registry      *prometheus.Registry
	payments      *prometheus.CounterVec
	toolDurations *prometheus.HistogramVec
}

// New creates a Metrics bundle on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		payments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payonce",
			Name:      "payments_total",
			Help:      "Payment attempts by server variant and outcome.",
		}, []string{"variant", "outcome"}),
		toolDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "payonce",
			Name:      "tool_call_duration_seconds",
			Help:      "Duration of MCP tool calls, including simulated processing delay.",
		}, []string{"tool"}),
	}
}

// RecordPayment counts one payment attempt. The outcome is the result status
// for accepted payments and the error code for rejected ones.
func (m *Metrics) RecordPayment(variant, outcome string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(variant, outcome).Inc()
}

// ObserveToolCall records the duration of one tool call.
func (m *Metrics) ObserveToolCall(tool string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolDurations.WithLabelValues(tool).Observe(d.Seconds())
}

// Handler serves the bundle's registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
