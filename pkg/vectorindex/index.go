// Package vectorindex provides a per-collection exact nearest-neighbour index
// over embedded text chunks.
//
// Each collection is held as an immutable index instance. A rebuild creates
// a new instance, persists it and swaps it in, so queries never observe a
// half-built index and never need to take a lock while scanning.
package vectorindex

import (
	"fmt"
	"math"
	"sort"

	"github.com/personaforge/personaforge/pkg/errs"
)

// TextChunk is a unit of indexed background text.
type TextChunk struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Text       string `json:"text"`
}

// Hit is a single query result.
type Hit struct {
	// ChunkID identifies the matched chunk.
	ChunkID string `json:"chunk_id"`

	// Distance is the squared Euclidean distance to the query vector.
	Distance float64 `json:"distance"`

	// Position is the chunk's insertion position in the index.
	Position int `json:"position"`
}

// Stats describes a built index.
type Stats struct {
	Collection string `json:"collection"`
	Dim        int    `json:"dim"`
	Count      int    `json:"count"`
}

// index is an immutable snapshot of one collection. len(vectors) == len(ids) == len(texts).
type index struct {
	collection string
	dim        int
	ids        []string
	vectors    [][]float32
	texts      []string
	positions  map[string]int
}

func newIndex(collection string, chunks []TextChunk, embeddings [][]float32) (*index, error) {
	if len(chunks) == 0 || len(chunks) != len(embeddings) {
		return nil, fmt.Errorf("%w: %d chunks for %d embeddings", errs.ErrInvalidInput, len(chunks), len(embeddings))
	}
	dim := len(embeddings[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-dimension embedding", errs.ErrInvalidInput)
	}

	idx := &index{
		collection: collection,
		dim:        dim,
		ids:        make([]string, len(chunks)),
		vectors:    make([][]float32, len(chunks)),
		texts:      make([]string, len(chunks)),
		positions:  make(map[string]int, len(chunks)),
	}
	for i, chunk := range chunks {
		if len(embeddings[i]) != dim {
			return nil, fmt.Errorf("%w: embedding %d has dimension %d, want %d", errs.ErrInvalidInput, i, len(embeddings[i]), dim)
		}
		if j, ok := finite(embeddings[i]); !ok {
			return nil, fmt.Errorf("%w: embedding %d has a non-finite component at %d", errs.ErrInvalidInput, i, j)
		}
		if containsSeparator(chunk.Text) {
			return nil, fmt.Errorf("%w: chunk %d contains the sidecar separator", errs.ErrInvalidInput, i)
		}
		id := chunk.ID
		if id == "" {
			id = fmt.Sprintf("%d", i)
		}
		if _, dup := idx.positions[id]; dup {
			return nil, fmt.Errorf("%w: duplicate chunk id %q", errs.ErrInvalidInput, id)
		}
		idx.ids[i] = id
		idx.vectors[i] = append([]float32(nil), embeddings[i]...)
		idx.texts[i] = chunk.Text
		idx.positions[id] = i
	}
	return idx, nil
}

// search scans every vector and keeps the k closest. Candidates are visited
// in insertion order and inserted after any equal distances, so ties resolve
// by insertion order.
func (x *index) search(query []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", errs.ErrInvalidInput, k)
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", errs.ErrInvalidInput, len(query), x.dim)
	}
	if j, ok := finite(query); !ok {
		return nil, fmt.Errorf("%w: query has a non-finite component at %d", errs.ErrInvalidInput, j)
	}
	if k > len(x.vectors) {
		k = len(x.vectors)
	}

	top := make([]Hit, 0, k)
	for pos, vec := range x.vectors {
		d := squaredL2(query, vec)
		if len(top) == k && d >= top[k-1].Distance {
			continue
		}
		at := sort.Search(len(top), func(i int) bool { return top[i].Distance > d })
		hit := Hit{ChunkID: x.ids[pos], Distance: d, Position: pos}
		if len(top) < k {
			top = append(top, Hit{})
		}
		copy(top[at+1:], top[at:len(top)-1])
		top[at] = hit
	}
	return top, nil
}

// finite reports whether every component of v is a real number, and the
// position of the first that is not.
func finite(v []float32) (int, bool) {
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return i, false
		}
	}
	return 0, true
}

func (x *index) text(id string) (string, bool) {
	pos, ok := x.positions[id]
	if !ok {
		return "", false
	}
	return x.texts[pos], true
}

func (x *index) stats() Stats {
	return Stats{Collection: x.collection, Dim: x.dim, Count: len(x.ids)}
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
