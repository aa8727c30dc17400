// Package retriever embeds queries and maps nearest chunks back to text.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/personaforge/personaforge/pkg/embedding"
	"github.com/personaforge/personaforge/pkg/errs"
	"github.com/personaforge/personaforge/pkg/logger"
	"github.com/personaforge/personaforge/pkg/vectorindex"
)

// DefaultK is the number of chunks returned when the caller passes k <= 0.
const DefaultK = 5

// DefaultBatchSize bounds the number of chunks embedded per upstream call
// during a build.
const DefaultBatchSize = 64

// Index is the subset of the vector index used for retrieval.
type Index interface {
	Build(ctx context.Context, collection string, chunks []vectorindex.TextChunk, embeddings [][]float32) error
	Query(ctx context.Context, collection string, vector []float32, k int) ([]vectorindex.Hit, error)
	ChunkTexts(ctx context.Context, collection string, ids []string) ([]string, error)
}

type metricsRecorder interface {
	RecordRetrieval(collection string, duration time.Duration, hits int)
}

// Result is one retrieved chunk.
type Result struct {
	ChunkID  string  `json:"chunk_id"`
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

// Retriever answers "which chunks of collection are closest to query".
type Retriever struct {
	embedder  embedding.Embedder
	index     Index
	defaultK  int
	batchSize int
	metrics   metricsRecorder
	logger    logger.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithDefaultK overrides DefaultK.
func WithDefaultK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.defaultK = k
		}
	}
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithMetrics records retrieval latency.
func WithMetrics(m metricsRecorder) Option {
	return func(r *Retriever) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Retriever over index using embedder for queries and builds.
func New(embedder embedding.Embedder, index Index, opts ...Option) *Retriever {
	r := &Retriever{
		embedder:  embedder,
		index:     index,
		defaultK:  DefaultK,
		batchSize: DefaultBatchSize,
		logger:    logger.Global(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "retriever")
	return r
}

// Retrieve returns the texts of the k chunks closest to query, nearest first.
func (r *Retriever) Retrieve(ctx context.Context, query, collection string, k int) ([]string, error) {
	results, err := r.Search(ctx, query, collection, k)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Text
	}
	return texts, nil
}

// Search is Retrieve with chunk ids and distances.
func (r *Retriever) Search(ctx context.Context, query, collection string, k int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", errs.ErrInvalidInput)
	}
	if k <= 0 {
		k = r.defaultK
	}

	start := time.Now()
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}

	hits, err := r.index.Query(ctx, collection, vector, k)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("retriever: %q: %w", collection, errs.ErrCollectionNotIndexed)
		}
		return nil, fmt.Errorf("retriever: query %q: %w", collection, err)
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	texts, err := r.index.ChunkTexts(ctx, collection, ids)
	if err != nil {
		return nil, fmt.Errorf("retriever: resolve chunks: %w", err)
	}
	if len(texts) != len(hits) {
		return nil, fmt.Errorf("retriever: %q resolved %d of %d chunks", collection, len(texts), len(hits))
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{ChunkID: h.ChunkID, Text: texts[i], Distance: h.Distance}
	}

	if r.metrics != nil {
		r.metrics.RecordRetrieval(collection, time.Since(start), len(results))
	}
	r.logger.DebugContext(ctx, "retrieved chunks", "collection", collection, "k", k, "hits", len(results))
	return results, nil
}

// BuildCollection embeds texts in batches and replaces the index of collection.
// It returns the number of chunks indexed.
func (r *Retriever) BuildCollection(ctx context.Context, collection string, texts []string) (int, error) {
	if len(texts) == 0 {
		return 0, fmt.Errorf("%w: no chunks to index for %q", errs.ErrInvalidInput, collection)
	}

	chunks := make([]vectorindex.TextChunk, len(texts))
	for i, text := range texts {
		chunks[i] = vectorindex.TextChunk{ID: uuid.NewString(), Collection: collection, Text: text}
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += r.batchSize {
		end := min(start+r.batchSize, len(texts))
		batch, err := r.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return 0, fmt.Errorf("retriever: embed chunks %d-%d: %w", start, end, err)
		}
		embeddings = append(embeddings, batch...)
	}

	if err := r.index.Build(ctx, collection, chunks, embeddings); err != nil {
		return 0, err
	}
	r.logger.InfoContext(ctx, "collection indexed",
		"collection", collection,
		"chunks", len(chunks),
		"model", r.embedder.Model(),
	)
	return len(chunks), nil
}
