// Package metrics exposes request and cache counters on a private
// Prometheus registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "calclient"

type Metrics struct {
	registry *prometheus.Registry

	dispatched   *prometheus.CounterVec
	completed    *prometheus.CounterVec
	pending      prometheus.Gauge
	materialized prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_dispatched_total",
			Help:      "Requests handed to the dispatcher, by path.",
		}, []string{"path"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_completed_total",
			Help:      "Requests applied to local state, by outcome.",
		}, []string{"outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_pending",
			Help:      "Requests dispatched but not yet observed complete.",
		}),
		materialized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "day_buckets_materialized_total",
			Help:      "Day buckets computed by the view cache.",
		}),
	}
	m.registry.MustRegister(m.dispatched, m.completed, m.pending, m.materialized)
	return m
}

func (m *Metrics) RequestDispatched(path string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(path).Inc()
}

func (m *Metrics) RequestCompleted(outcome string) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) BucketMaterialized() {
	if m == nil {
		return
	}
	m.materialized.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
