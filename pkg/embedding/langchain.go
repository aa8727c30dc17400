package embedding

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/personaforge/personaforge/pkg/errs"
	"github.com/personaforge/personaforge/pkg/logger"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainEmbedder wraps langchaingo embeddings with dimension validation.
type LangChainEmbedder struct {
	model     embeddings.Embedder
	modelName string

	// dimension is fixed by config, or learned from the first response when
	// config leaves it at zero.
	dimension atomic.Int64
}

// NewLangChainEmbedder creates an Ollama or OpenAI backed embedder.
func NewLangChainEmbedder(cfg Config) (*LangChainEmbedder, error) {
	var (
		client embeddings.EmbedderClient
		err    error
	)

	switch cfg.Provider {
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.ServerURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
		}
		client, err = ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: openai provider requires an API key", errs.ErrInvalidInput)
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.ServerURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.ServerURL))
		}
		client, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}

	default:
		return nil, fmt.Errorf("embedding: provider %q is not served by langchaingo", cfg.Provider)
	}

	var embedOpts []embeddings.Option
	if cfg.BatchSize > 0 {
		embedOpts = append(embedOpts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	model, err := embeddings.NewEmbedder(client, embedOpts...)
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.Provider, err)
	}

	return newLangChainEmbedder(model, cfg.Model, cfg.Dimension), nil
}

func newLangChainEmbedder(model embeddings.Embedder, name string, dim int) *LangChainEmbedder {
	e := &LangChainEmbedder{model: model, modelName: name}
	e.dimension.Store(int64(dim))
	return e
}

// Embed generates an embedding vector for text.
func (e *LangChainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	vector, err := e.model.EmbedQuery(ctx, text)
	duration := time.Since(start)

	if err != nil {
		log.WarnContext(ctx, "embedding failed",
			"model", e.modelName,
			"text_len", len(text),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, fmt.Errorf("embed: %w: %v", errs.ErrUpstreamUnavailable, err)
	}
	if err := e.checkDimension(vector); err != nil {
		return nil, err
	}

	log.DebugContext(ctx, "embedding complete", "model", e.modelName, "duration_ms", duration.Milliseconds())
	return vector, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *LangChainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := e.model.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w: %v", errs.ErrUpstreamUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed batch: count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if err := e.checkDimension(v); err != nil {
			return nil, fmt.Errorf("embedding %d: %w", i, err)
		}
	}
	return vectors, nil
}

func (e *LangChainEmbedder) checkDimension(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("embed: %w: empty vector returned", errs.ErrUpstreamUnavailable)
	}
	want := e.dimension.Load()
	if want == 0 && e.dimension.CompareAndSwap(0, int64(len(v))) {
		return nil
	}
	want = e.dimension.Load()
	if int64(len(v)) != want {
		return fmt.Errorf("embed: dimension mismatch: got %d, want %d", len(v), want)
	}
	return nil
}

// Model returns the embedding model name.
func (e *LangChainEmbedder) Model() string { return e.modelName }

// Dimension returns the embedding dimension, 0 until known.
func (e *LangChainEmbedder) Dimension() int { return int(e.dimension.Load()) }
