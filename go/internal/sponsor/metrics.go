package sponsor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the sponsor service's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	grants   *prometheus.CounterVec
	budget   prometheus.Counter
	duration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	grants := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sponsor",
		Name:      "requests_total",
		Help:      "Sponsorship requests by outcome.",
	}, []string{"outcome"})
	budget := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sponsor",
		Name:      "granted_budget_total",
		Help:      "Sum of gas budgets granted, in base units.",
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sponsor",
		Name:      "request_duration_seconds",
		Help:      "Duration of sponsor HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	registry.MustRegister(grants, budget, duration)
	return &Metrics{registry: registry, grants: grants, budget: budget, duration: duration}
}

func (m *Metrics) observeOutcome(outcome string) {
	m.grants.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeGrant(budget uint64) {
	m.grants.WithLabelValues("granted").Inc()
	m.budget.Add(float64(budget))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
