package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (m *Manager) initStateMetrics() {
	f := promauto.With(m.registry)

	m.stateMutations = f.NewCounterVec(prometheus.CounterOpts{
		Name: "state_mutations_total",
		Help: "Applied persona state changes by kind",
	}, []string{"kind"})
	m.persistenceWarnings = f.NewCounterVec(prometheus.CounterOpts{
		Name: "persistence_warnings_total",
		Help: "Persistence failures that did not fail a turn",
	}, []string{"component"})
	m.snapshotQueueDepth = f.NewGauge(prometheus.GaugeOpts{
		Name: "snapshot_queue_depth",
		Help: "Keys waiting for a snapshot write",
	})
}

// RecordStateMutation records an applied change of kind.
func (m *Manager) RecordStateMutation(kind string) {
	if m.enabled {
		m.stateMutations.WithLabelValues(kind).Inc()
	}
}

// RecordPersistenceWarning records a swallowed persistence failure.
func (m *Manager) RecordPersistenceWarning(component string) {
	if m.enabled {
		m.persistenceWarnings.WithLabelValues(component).Inc()
	}
}

// SetSnapshotQueueDepth sets the number of keys awaiting a snapshot.
func (m *Manager) SetSnapshotQueueDepth(n int) {
	if m.enabled {
		m.snapshotQueueDepth.Set(float64(n))
	}
}
