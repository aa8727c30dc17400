package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordEngineSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prev := otel.GetTracerProvider()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return rec
}

func spansByName(spans []sdktrace.ReadOnlySpan) map[string]sdktrace.ReadOnlySpan {
	out := make(map[string]sdktrace.ReadOnlySpan, len(spans))
	for _, s := range spans {
		out[s.Name()] = s
	}
	return out
}

func TestRuntimeTracing_LifecycleSpans(t *testing.T) {
	rec := recordEngineSpans(t)

	eng := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	require.NoError(t, eng.Stop(ctx))

	spans := spansByName(rec.Ended())
	for _, name := range []string{spanEngineStart, spanEngineRestore, spanEngineStop} {
		require.Contains(t, spans, name)
	}

	start, restore := spans[spanEngineStart], spans[spanEngineRestore]
	assert.Equal(t, start.SpanContext().SpanID(), restore.Parent().SpanID(), "restore runs inside start")

	attrs := map[string]int64{}
	for _, kv := range restore.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInt64()
	}
	assert.Equal(t, int64(0), attrs["memory.windows"])
	assert.Equal(t, int64(0), attrs["memory.event_logs"])

	for _, kv := range start.Attributes() {
		if kv.Key == "storage.type" {
			assert.Equal(t, "memory", kv.Value.AsString())
		}
	}
}
