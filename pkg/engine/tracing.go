package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const runtimeTracerName = "personaforge.engine"

const (
	spanEngineStart   = "engine.start"
	spanEngineRestore = "engine.restore"
	spanEngineStop    = "engine.stop"
)

func runtimeTracer() trace.Tracer {
	return otel.Tracer(runtimeTracerName)
}
