package embedding

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/personaforge/personaforge/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squaredDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "The Shire is green")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "the shire is GREEN!")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := NewHashEmbedder(DefaultHashDimension)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "where is the ring")
	near, _ := e.Embed(ctx, "the ring was lost in the river")
	far, _ := e.Embed(ctx, "dragons sleep under mountains of gold")

	assert.Less(t, squaredDistance(query, near), squaredDistance(query, far))
}

func TestHashEmbedder_Batch(t *testing.T) {
	e := NewHashEmbedder(0)
	assert.Equal(t, DefaultHashDimension, e.Dimension())

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	single, _ := e.Embed(context.Background(), "b")
	assert.Equal(t, single, vecs[2])
}

func TestHashEmbedder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(8).Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLRU(t *testing.T) {
	c := NewLRU(2)
	c.Put("a", []float32{1})
	c.Put("b", []float32{2})
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", []float32{3}) // evicts b
	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())

	rate, total := c.HitRate()
	assert.Equal(t, int64(3), total)
	assert.InDelta(t, 2.0/3.0, rate, 1e-9)
}

type countingEmbedder struct {
	*HashEmbedder
	calls atomic.Int32
	fail  bool
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, errs.ErrUpstreamUnavailable
	}
	return c.HashEmbedder.Embed(ctx, text)
}

func TestCached(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(8)}
	c := NewCached(inner, 4)
	ctx := context.Background()

	first, err := c.Embed(ctx, "mellon")
	require.NoError(t, err)
	first[0] = 42

	second, err := c.Embed(ctx, "mellon")
	require.NoError(t, err)
	assert.NotEqual(t, float32(42), second[0])
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 8, c.Dimension())
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(8), fail: true}
	c := NewCached(inner, 4)

	_, err := c.Embed(context.Background(), "x")
	assert.True(t, errors.Is(err, errs.ErrUpstreamUnavailable))
	_, _ = c.Embed(context.Background(), "x")
	assert.Equal(t, int32(2), inner.calls.Load())
}

type fakeLangChain struct {
	vectors [][]float32
	err     error
}

func (f *fakeLangChain) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[:len(texts)], nil
}

func (f *fakeLangChain) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[0], nil
}

func TestLangChainEmbedder_Dimension(t *testing.T) {
	ctx := context.Background()

	t.Run("learned from first response", func(t *testing.T) {
		e := newLangChainEmbedder(&fakeLangChain{vectors: [][]float32{{1, 2, 3}}}, "nomic-embed-text", 0)
		assert.Equal(t, 0, e.Dimension())
		_, err := e.Embed(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, 3, e.Dimension())
	})

	t.Run("mismatch rejected", func(t *testing.T) {
		e := newLangChainEmbedder(&fakeLangChain{vectors: [][]float32{{1, 2}, {1, 2, 3}}}, "m", 2)
		_, err := e.EmbedBatch(ctx, []string{"a", "b"})
		assert.ErrorContains(t, err, "dimension mismatch")
	})

	t.Run("upstream failure", func(t *testing.T) {
		e := newLangChainEmbedder(&fakeLangChain{err: errors.New("connection refused")}, "m", 2)
		_, err := e.Embed(ctx, "q")
		assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)
	})

	t.Run("empty batch", func(t *testing.T) {
		e := newLangChainEmbedder(&fakeLangChain{}, "m", 2)
		vecs, err := e.EmbedBatch(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vecs)
	})
}

func TestNew(t *testing.T) {
	e, err := New(Config{Provider: ProviderHash, Dimension: 16, CacheSize: 8})
	require.NoError(t, err)
	assert.IsType(t, &Cached{}, e)
	assert.Equal(t, 16, e.Dimension())

	_, err = New(Config{Provider: "word2vec"})
	assert.Error(t, err)

	_, err = New(Config{Provider: ProviderOpenAI, Model: "text-embedding-3-small"})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}
