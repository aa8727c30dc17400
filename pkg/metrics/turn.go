package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

func (m *Manager) initTurnMetrics(cfg Config) {
	f := promauto.With(m.registry)

	m.turns = f.NewCounterVec(prometheus.CounterOpts{
		Name: "turns_total",
		Help: "Conversation turns by outcome",
	}, []string{"outcome"})
	m.turnDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "turn_duration_seconds",
		Help:    "End-to-end turn duration",
		Buckets: cfg.TurnDurationBuckets,
	}, []string{"outcome"})

	m.generationDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "generation_duration_seconds",
		Help:    "Generation service call duration",
		Buckets: cfg.GenerationDurationBuckets,
	}, []string{"status"})

	// Collections are operator-created, so the label stays small.
	m.retrievalDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retrieval_duration_seconds",
		Help:    "Retrieval duration, query embedding included",
		Buckets: cfg.RetrievalDurationBuckets,
	}, []string{"collection"})
	m.retrievalHits = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retrieval_hits",
		Help:    "Chunks returned per retrieval",
		Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
	}, []string{"collection"})
}

// RecordTurn records a finished turn.
func (m *Manager) RecordTurn(outcome string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordGeneration records one generation service call.
func (m *Manager) RecordGeneration(duration time.Duration, success bool) {
	if !m.enabled {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.generationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordRetrieval records one retrieval against collection.
func (m *Manager) RecordRetrieval(collection string, duration time.Duration, hits int) {
	if !m.enabled {
		return
	}
	m.retrievalDuration.WithLabelValues(collection).Observe(duration.Seconds())
	m.retrievalHits.WithLabelValues(collection).Observe(float64(hits))
}
