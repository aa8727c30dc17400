package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace"
)

func sampledContext() (context.Context, trace.SpanContext) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0xaa, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		SpanID:     trace.SpanID{0xbb, 1, 2, 3, 4, 5, 6, 7},
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc), sc
}

func TestRecordHTTPRequestContext_SeriesPerRoute(t *testing.T) {
	m := NewManager(DefaultConfig())
	ctx, _ := sampledContext()

	chat := "/api/v1/collections/{collection}/personas/{persona}/chat"
	m.RecordHTTPRequestContext(ctx, "POST", chat, "200", 900*time.Millisecond)
	m.RecordHTTPRequestContext(ctx, "POST", chat, "200", 1200*time.Millisecond)
	m.RecordHTTPRequestContext(context.Background(), "POST", chat, "502", 30*time.Second)
	m.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", chat, "200")); got != 2 {
		t.Errorf("chat 200 count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", chat, "502")); got != 1 {
		t.Errorf("chat 502 count = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.httpRequests); n != 3 {
		t.Errorf("request series = %d, want 3", n)
	}
	if n := testutil.CollectAndCount(m.httpDuration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestTraceExemplarLabels(t *testing.T) {
	ctx, sc := sampledContext()

	labels, ok := traceExemplarLabels(ctx)
	if !ok {
		t.Fatal("expected exemplar labels from a valid span context")
	}
	if labels["trace_id"] != sc.TraceID().String() || labels["span_id"] != sc.SpanID().String() {
		t.Errorf("unexpected labels %v", labels)
	}

	if labels, ok := traceExemplarLabels(context.Background()); ok {
		t.Errorf("expected no exemplar without a span, got %v", labels)
	}

	unsampled := trace.ContextWithSpanContext(context.Background(), sc.WithTraceFlags(0))
	if labels, ok := traceExemplarLabels(unsampled); ok {
		t.Errorf("expected no exemplar for an unsampled span, got %v", labels)
	}
}

func TestDisabledManagerIgnoresHTTP(t *testing.T) {
	m := NoOpManager()
	m.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
	m.IncActiveConnections()
	m.DecActiveConnections()
	if m.Enabled() {
		t.Error("NoOpManager must be disabled")
	}
}
