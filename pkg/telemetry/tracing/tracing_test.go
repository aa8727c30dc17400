package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type failingExporter struct {
	exportCalls int
}

func (f *failingExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error {
	f.exportCalls++
	return errors.New("collector unavailable")
}

func (f *failingExporter) Shutdown(context.Context) error { return nil }

func enabledConfig() Config {
	return Config{
		Enabled:    true,
		Endpoint:   "http://localhost:4317/v1/traces",
		Timeout:    time.Second,
		Sampler:    "always_on",
		SampleRate: 1,
	}
}

func TestInit_DisabledSkipsExporter(t *testing.T) {
	orig := newOTLPExporter
	t.Cleanup(func() { newOTLPExporter = orig })

	called := false
	newOTLPExporter = func(context.Context, Config) (sdktrace.SpanExporter, error) {
		called = true
		return tracetest.NewInMemoryExporter(), nil
	}

	shutdown, err := Init(context.Background(), Config{}, "personaforge", "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if called {
		t.Fatal("exporter created while tracing disabled")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
}

func TestInit_RequiresEndpointAndTimeout(t *testing.T) {
	cfg := enabledConfig()
	cfg.Endpoint = " "
	if _, err := Init(context.Background(), cfg, "personaforge", "test"); err == nil || !strings.Contains(err.Error(), "endpoint") {
		t.Fatalf("expected endpoint error, got %v", err)
	}

	cfg = enabledConfig()
	cfg.Timeout = 0
	if _, err := Init(context.Background(), cfg, "personaforge", "test"); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestInit_SpansReachExporter(t *testing.T) {
	orig := newOTLPExporter
	t.Cleanup(func() { newOTLPExporter = orig })

	exp := tracetest.NewInMemoryExporter()
	newOTLPExporter = func(context.Context, Config) (sdktrace.SpanExporter, error) {
		return exp, nil
	}

	shutdown, err := Init(context.Background(), enabledConfig(), "personaforge", "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	_, span := Start(context.Background(), "turn.retrieve")
	End(span, errors.New("index missing"))

	// The in-memory exporter is reset on shutdown, so flush first.
	if err := otel.GetTracerProvider().(*sdktrace.TracerProvider).ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush() error = %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "turn.retrieve" {
		t.Fatalf("unexpected spans: %+v", spans)
	}
	if len(spans[0].Events) == 0 {
		t.Fatal("expected recorded error event")
	}

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
}

func TestInit_ExporterFailureIsIsolated(t *testing.T) {
	origFactory := newOTLPExporter
	origReporter := reportExporterFailure
	t.Cleanup(func() {
		newOTLPExporter = origFactory
		reportExporterFailure = origReporter
	})

	exp := &failingExporter{}
	newOTLPExporter = func(context.Context, Config) (sdktrace.SpanExporter, error) {
		return exp, nil
	}
	reported := 0
	reportExporterFailure = func(err error, endpoint string, spanCount int) {
		reported++
		if endpoint != "localhost:4317" {
			t.Errorf("endpoint = %q", endpoint)
		}
	}

	shutdown, err := Init(context.Background(), enabledConfig(), "personaforge", "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	_, span := Start(context.Background(), "turn")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() should not fail on export failure: %v", err)
	}
	if exp.exportCalls == 0 || reported == 0 {
		t.Fatalf("exportCalls=%d reported=%d", exp.exportCalls, reported)
	}
}

func TestSelectSampler(t *testing.T) {
	if got := selectSampler(Config{Sampler: "always_on"}).Description(); !strings.Contains(got, "AlwaysOnSampler") {
		t.Fatalf("unexpected always_on sampler description: %s", got)
	}
	if got := selectSampler(Config{Sampler: "always_off"}).Description(); !strings.Contains(got, "AlwaysOffSampler") {
		t.Fatalf("unexpected always_off sampler description: %s", got)
	}
	if got := selectSampler(Config{SampleRate: 0.25}).Description(); !strings.Contains(strings.ToLower(got), "parentbased") {
		t.Fatalf("unexpected ratio sampler description: %s", got)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"localhost:4317":                  "localhost:4317",
		"http://localhost:4317/v1/traces": "localhost:4317",
		"":                                "",
	}
	for in, want := range cases {
		if got := normalizeEndpoint(in); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInjectHTTP(t *testing.T) {
	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	}()

	ctx, span := Start(context.Background(), "generation.generate")
	defer span.End()

	req := httptest.NewRequest(http.MethodPost, "http://llm.test/generate", nil).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	InjectHTTP(req)

	if req.Header.Get("traceparent") == "" {
		t.Fatal("expected traceparent header to be injected")
	}
	if !strings.Contains(req.Header.Get("traceparent"), span.SpanContext().TraceID().String()) {
		t.Fatalf("traceparent %q does not carry the span trace id", req.Header.Get("traceparent"))
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Fatal("expected existing headers to be preserved")
	}
}
