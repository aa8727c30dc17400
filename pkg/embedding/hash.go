package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimension matches all-MiniLM-L6-v2 so indexes built offline have
// the same shape as ones built against a local model.
const DefaultHashDimension = 384

// HashEmbedder generates deterministic embeddings without a model. Each
// lowercase word is hashed into a pseudo-random direction and the directions
// are summed, so texts sharing words land near each other.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a hash embedder. dim <= 0 selects DefaultHashDimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dimensions: dim}
}

// Embed creates a deterministic unit vector from text.
func (m *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embedding := make([]float32, m.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		addDirection(embedding, text)
	}
	for _, w := range words {
		addDirection(embedding, w)
	}

	return normalize(embedding), nil
}

// EmbedBatch embeds each text in order.
func (m *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Model returns the provider name.
func (m *HashEmbedder) Model() string { return string(ProviderHash) }

// Dimension returns the embedding size.
func (m *HashEmbedder) Dimension() int { return m.dimensions }

func addDirection(dst []float32, token string) {
	h := fnv.New64a()
	h.Write([]byte(token))
	seed := h.Sum64()

	for i := range dst {
		// LCG step, mapped to [-1, 1].
		seed = seed*6364136223846793005 + 1442695040888963407
		dst[i] += float32(int64(seed)) / float32(math.MaxInt64)
	}
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
