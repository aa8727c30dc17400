package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

const chatPattern = "/api/v1/collections/{collection}/personas/{persona}/chat"

// useSpanRecorder installs a synchronous recording provider for one test.
func useSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})
	return rec
}

// chatRouter serves the chat route with the given status behind Tracing.
func chatRouter(status int) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID())
	r.Use(Tracing(DefaultTracingOptions()))
	r.Post(chatPattern, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {})
	return r
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[string]string {
	out := map[string]string{}
	for _, kv := range s.Attributes() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestTracing_ChatSpan(t *testing.T) {
	rec := useSpanRecorder(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/collections/middle-earth/personas/gandalf/chat", nil)
	req.Header.Set(RequestIDHeader, "turn-1")
	chatRouter(http.StatusOK).ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "POST "+chatPattern, s.Name())
	assert.Equal(t, trace.SpanKindServer, s.SpanKind())
	assert.False(t, s.Parent().IsValid(), "no inbound headers means a root span")

	attrs := spanAttrs(s)
	assert.Equal(t, "middle-earth", attrs["personaforge.collection"])
	assert.Equal(t, "gandalf", attrs["personaforge.persona"])
	assert.Equal(t, chatPattern, attrs["http.route"])
	assert.Equal(t, "turn-1", attrs["http.request.id"])
	assert.Equal(t, "200", attrs["http.response.status_code"])
}

func TestTracing_ContinuesInboundTrace(t *testing.T) {
	rec := useSpanRecorder(t)

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0f, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		SpanID:     trace.SpanID{0x0e, 2, 2, 2, 2, 2, 2, 2},
		TraceFlags: trace.FlagsSampled,
	})
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(trace.ContextWithSpanContext(context.Background(), parent), carrier)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/collections/shire/personas/frodo/chat", nil)
	for k, v := range carrier {
		req.Header.Set(k, v)
	}
	chatRouter(http.StatusOK).ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, parent.TraceID(), spans[0].SpanContext().TraceID())
	assert.Equal(t, parent.SpanID(), spans[0].Parent().SpanID())
}

func TestTracing_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   otelcodes.Code
	}{
		{http.StatusOK, otelcodes.Unset},
		{http.StatusNotFound, otelcodes.Unset},
		{http.StatusBadGateway, otelcodes.Error},
		{http.StatusGatewayTimeout, otelcodes.Error},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			rec := useSpanRecorder(t)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/collections/me/personas/p/chat", nil)
			chatRouter(tt.status).ServeHTTP(httptest.NewRecorder(), req)

			spans := rec.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.want, spans[0].Status().Code)
		})
	}
}

func TestTracing_SkipsProbes(t *testing.T) {
	rec := useSpanRecorder(t)
	chatRouter(http.StatusOK).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, rec.Ended())
}
