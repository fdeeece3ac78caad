package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autoposter"

// Metrics holds the pipeline collectors.
type Metrics struct {
	SelectionOutcomes *prometheus.CounterVec
	Posts             *prometheus.CounterVec
	PublishFailures   *prometheus.CounterVec
	Fallbacks         *prometheus.CounterVec
	CircuitOpen       prometheus.Gauge
	Jobs              *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. A nil reg gets a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		SelectionOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "selection_outcomes_total",
				Help:      "Selection jobs by outcome",
			},
			[]string{"outcome"},
		),
		Posts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "posts_total",
				Help:      "Post status transitions",
			},
			[]string{"status"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_failures_total",
				Help:      "Failed publish attempts by kind",
			},
			[]string{"kind"},
		),
		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Absorbed failures that fell back to a degraded path",
			},
			[]string{"stage"},
		),
		CircuitOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_open",
				Help:      "1 while the publish circuit is open",
			},
		),
		Jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Queue job results",
			},
			[]string{"queue", "result"},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.SelectionOutcomes,
		m.Posts,
		m.PublishFailures,
		m.Fallbacks,
		m.CircuitOpen,
		m.Jobs,
	)
	return m
}

// Handler serves the registry this Metrics was registered on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) JobResult(queue, result string) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(queue, result).Inc()
}

func (m *Metrics) SelectionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SelectionOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PostStatus(status string) {
	if m == nil {
		return
	}
	m.Posts.WithLabelValues(status).Inc()
}

func (m *Metrics) PublishFailure(kind string) {
	if m == nil {
		return
	}
	m.PublishFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) Fallback(stage string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(stage).Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}
