package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the confirmation workflow's Prometheus metrics.
type Metrics struct {
	ConfirmationsTotal *prometheus.CounterVec
	NewSpeciesTotal    prometheus.Counter
	CompensationsTotal prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		ConfirmationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldbook_discovery_confirmations_total",
			Help: "Total confirmation attempts by result (saved, resumed, conflict, rejected, incomplete)",
		}, []string{"result"}),
		NewSpeciesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fieldbook_discovery_new_species_total",
			Help: "Total confirmations that added a first-time species for the account",
		}),
		CompensationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fieldbook_discovery_stats_compensations_total",
			Help: "Total stats reverts after a failed final save",
		}),
	}
}
