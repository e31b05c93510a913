// ABOUTME: Prometheus metrics for the coordinator's HTTP surface and queues.

package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the coordinator's Prometheus collectors on a private
// registry so tests can run many instances side by side.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	WorkSubmittedTotal prometheus.Counter
	WorkCompletedTotal prometheus.Counter
	DeadLettersTotal   prometheus.Counter
	SpinUpsTotal       prometheus.Counter
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heddle_http_requests_total",
			Help: "HTTP requests by method and route pattern.",
		}, []string{"method", "route"}),
		WorkSubmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heddle_work_submitted_total",
			Help: "Work items accepted by the router.",
		}),
		WorkCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heddle_work_completed_total",
			Help: "Work items acked and marked completed.",
		}),
		DeadLettersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heddle_dead_letters_total",
			Help: "Work items escalated to the dead-letter store.",
		}),
		SpinUpsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heddle_spin_ups_total",
			Help: "Capacity spin-ups triggered.",
		}),
	}
	reg.MustRegister(m.RequestsTotal, m.WorkSubmittedTotal, m.WorkCompletedTotal,
		m.DeadLettersTotal, m.SpinUpsTotal)
	return m
}

// ObserveAgentsOnline registers a gauge sourced from fn at scrape time.
func (m *Metrics) ObserveAgentsOnline(fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "heddle_agents_online",
		Help: "Agents currently online in the registry.",
	}, fn))
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
