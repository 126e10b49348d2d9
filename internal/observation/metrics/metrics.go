package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the lifecycle engine's Prometheus metrics.
type Metrics struct {
	TransitionsTotal      *prometheus.CounterVec
	StaleTransitionsTotal prometheus.Counter
	RecognitionOutcomes   *prometheus.CounterVec
	SweeperTimeoutsTotal  prometheus.Counter
}

// New creates and registers the lifecycle metrics.
func New() *Metrics {
	return &Metrics{
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldbook_observation_transitions_total",
			Help: "Total observation status transitions by from and to status",
		}, []string{"from", "to"}),
		StaleTransitionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fieldbook_observation_stale_transitions_total",
			Help: "Total transition attempts rejected because the record moved on",
		}),
		RecognitionOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldbook_recognition_outcomes_total",
			Help: "Total mediator callbacks by outcome (ready, failed, duplicate, ignored)",
		}, []string{"outcome"}),
		SweeperTimeoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fieldbook_recognition_sweeper_timeouts_total",
			Help: "Total observations moved to failed by the analysis deadline sweeper",
		}),
	}
}

// ObserveTransition records one applied transition.
func (m *Metrics) ObserveTransition(from, to string) {
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveRecognitionOutcome records one mediator callback outcome.
func (m *Metrics) ObserveRecognitionOutcome(outcome string) {
	m.RecognitionOutcomes.WithLabelValues(outcome).Inc()
}
