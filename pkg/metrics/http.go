package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"
)

// httpLabels are bounded by the router: route is a chi pattern, never a raw
// URL path.
var httpLabels = []string{"method", "route", "status"}

func (m *Manager) initHTTPMetrics(cfg Config) {
	f := promauto.With(m.registry)

	m.httpRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests served, by route and status",
	}, httpLabels)

	m.httpDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Time to serve an HTTP request",
		Buckets: cfg.HTTPDurationBuckets,
	}, httpLabels[:2])

	m.httpConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "http_active_connections",
		Help: "Requests currently in flight",
	})
}

// RecordHTTPRequest records one served request.
func (m *Manager) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.RecordHTTPRequestContext(context.Background(), method, route, status, duration)
}

// RecordHTTPRequestContext records one served request. A sampled span in ctx
// becomes the exemplar of the duration observation, linking a slow chat
// bucket to its trace.
func (m *Manager) RecordHTTPRequestContext(ctx context.Context, method, route, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	observe(ctx, m.httpDuration.WithLabelValues(method, route), duration.Seconds())
}

// observe attaches trace exemplar labels when the span is sampled.
func observe(ctx context.Context, obs prometheus.Observer, v float64) {
	if labels, ok := traceExemplarLabels(ctx); ok {
		if eo, ok := obs.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(v, labels)
			return
		}
	}
	obs.Observe(v)
}

func (m *Manager) IncActiveConnections() {
	if m.enabled {
		m.httpConnections.Inc()
	}
}

func (m *Manager) DecActiveConnections() {
	if m.enabled {
		m.httpConnections.Dec()
	}
}

func traceExemplarLabels(ctx context.Context) (prometheus.Labels, bool) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil, false
	}
	return prometheus.Labels{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	}, true
}
