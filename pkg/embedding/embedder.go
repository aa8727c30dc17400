// Package embedding turns text into fixed-dimension float32 vectors.
package embedding

import (
	"context"
	"fmt"
)

// Embedder defines the interface for text embedding providers.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension.
	Dimension() int
}

// ProviderType identifies the embedding provider.
type ProviderType string

const (
	// ProviderHash is a deterministic offline embedder.
	ProviderHash ProviderType = "hash"

	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings API.
	ProviderOpenAI ProviderType = "openai"
)

// Config holds configuration for creating an Embedder.
type Config struct {
	Provider  ProviderType
	Model     string
	Dimension int

	// ServerURL overrides the provider endpoint (Ollama host or OpenAI base URL).
	ServerURL string
	APIKey    string

	// BatchSize bounds how many texts go into one upstream request.
	BatchSize int

	// CacheSize enables an LRU of query embeddings when > 0.
	CacheSize int
}

// New creates an Embedder based on the provided configuration.
func New(cfg Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)

	switch cfg.Provider {
	case ProviderHash, "":
		e = NewHashEmbedder(cfg.Dimension)
	case ProviderOllama, ProviderOpenAI:
		e, err = NewLangChainEmbedder(cfg)
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		e = NewCached(e, cfg.CacheSize)
	}
	return e, nil
}
