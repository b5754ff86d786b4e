// Package metrics exposes engine measurements to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trivia-live-service/internal/domain"
)

const namespace = "trivia"

// Metrics implements app.Observer on its own registry.
type Metrics struct {
	registry         *prometheus.Registry
	answers          *prometheus.CounterVec
	phases           *prometheus.CounterVec
	snapshotFailures prometheus.Counter
}

// New registers the collectors. running reports the number of live
// countdowns and may be nil.
func New(running func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answer submissions by outcome.",
		}, []string{"outcome"}),
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Phase changes by target phase.",
		}, []string{"phase"}),
		snapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_save_failures_total",
			Help:      "Failed snapshot saves.",
		}),
	}
	m.registry.MustRegister(m.answers, m.phases, m.snapshotFailures)
	if running != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_timers",
			Help:      "Countdowns currently registered.",
		}, func() float64 { return float64(running()) }))
	}
	return m
}

func (m *Metrics) ObserveAnswer(outcome string) {
	m.answers.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePhase(phase domain.Phase) {
	m.phases.WithLabelValues(phase.String()).Inc()
}

// SnapshotFailed is meant for state.WithSaveFailureHook.
func (m *Metrics) SnapshotFailed(error) {
	m.snapshotFailures.Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
