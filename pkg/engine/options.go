package engine

import (
	"github.com/personaforge/personaforge/pkg/embedding"
	"github.com/personaforge/personaforge/pkg/generation"
	"github.com/personaforge/personaforge/pkg/metrics"
	"github.com/personaforge/personaforge/pkg/storage"
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithMetrics sets the metrics manager for the engine.
func WithMetrics(m *metrics.Manager) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithStorage replaces the configured storage backend. The engine closes it
// on Stop.
func WithStorage(kv storage.KV) Option {
	return func(e *Engine) {
		if kv != nil {
			e.kv = kv
		}
	}
}

// WithEmbedder replaces the configured embedder.
func WithEmbedder(em embedding.Embedder) Option {
	return func(e *Engine) {
		if em != nil {
			e.embedder = em
		}
	}
}

// WithGenerator replaces the HTTP generation client.
func WithGenerator(g generation.Generator) Option {
	return func(e *Engine) {
		if g != nil {
			e.generator = g
		}
	}
}
