package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/personaforge/personaforge/pkg/errs"
	"github.com/personaforge/personaforge/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "text", Output: "stderr"}))
}

func chunks(collection string, texts ...string) []TextChunk {
	out := make([]TextChunk, len(texts))
	for i, text := range texts {
		out[i] = TextChunk{ID: text, Collection: collection, Text: text}
	}
	return out
}

func TestStore_QueryNearest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Build(ctx, "world", chunks("world", "a", "b"), [][]float32{{0, 0}, {1, 0}}); err != nil {
		t.Fatal(err)
	}

	hits, err := s.Query(ctx, "world", []float32{0.9, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "b" {
		t.Fatalf("expected [b], got %+v", hits)
	}
	if math.Abs(hits[0].Distance-0.01) > 1e-6 {
		t.Errorf("expected distance ~0.01, got %f", hits[0].Distance)
	}

	hits, err = s.Query(ctx, "world", []float32{0.9, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[1].ChunkID != "a" || math.Abs(hits[1].Distance-0.81) > 1e-6 {
		t.Errorf("expected a at 0.81 second, got %+v", hits)
	}
}

func TestStore_TiesKeepInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	texts := []string{"n", "e", "s", "w", "center"}
	vecs := [][]float32{{0, 1}, {1, 0}, {0, -1}, {-1, 0}, {0, 0}}
	if err := s.Build(ctx, "compass", chunks("compass", texts...), vecs); err != nil {
		t.Fatal(err)
	}

	hits, err := s.Query(ctx, "compass", []float32{0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"center", "n", "e", "s", "w"}
	for i, h := range hits {
		if h.ChunkID != want[i] {
			t.Fatalf("position %d: got %q, want %q (hits %+v)", i, h.ChunkID, want[i], hits)
		}
	}

	hits, err = s.Query(ctx, "compass", []float32{0, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if hits[1].ChunkID != "n" || hits[2].ChunkID != "e" {
		t.Errorf("truncated ties should keep insertion order, got %+v", hits)
	}
}

func TestStore_QueryCountAndOrderProperty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	const n, dim = 57, 8
	cs := make([]TextChunk, n)
	vecs := make([][]float32, n)
	for i := range cs {
		cs[i] = TextChunk{ID: fmt.Sprintf("c%d", i), Text: fmt.Sprintf("chunk %d", i)}
		vecs[i] = make([]float32, dim)
		for j := range vecs[i] {
			// Coarse values produce plenty of exact ties.
			vecs[i][j] = float32(rng.Intn(3))
		}
	}
	if err := s.Build(ctx, "random", cs, vecs); err != nil {
		t.Fatal(err)
	}

	for _, k := range []int{1, 2, 5, 56, 57, 58, 200} {
		q := make([]float32, dim)
		for j := range q {
			q[j] = float32(rng.Intn(3))
		}
		hits, err := s.Query(ctx, "random", q, k)
		if err != nil {
			t.Fatal(err)
		}
		want := k
		if want > n {
			want = n
		}
		if len(hits) != want {
			t.Fatalf("k=%d: expected %d hits, got %d", k, want, len(hits))
		}
		for i := 1; i < len(hits); i++ {
			if hits[i].Distance < hits[i-1].Distance {
				t.Fatalf("k=%d: distances not sorted at %d", k, i)
			}
			if hits[i].Distance == hits[i-1].Distance && hits[i].Position < hits[i-1].Position {
				t.Fatalf("k=%d: tie at %d not in insertion order", k, i)
			}
		}
	}
}

func TestStore_BuildValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		chunks []TextChunk
		vecs   [][]float32
	}{
		{"empty", nil, nil},
		{"length mismatch", chunks("w", "a", "b"), [][]float32{{1}}},
		{"ragged dimensions", chunks("w", "a", "b"), [][]float32{{1, 0}, {1}}},
		{"duplicate ids", []TextChunk{{ID: "x", Text: "a"}, {ID: "x", Text: "b"}}, [][]float32{{1}, {2}}},
		{"separator in text", []TextChunk{{ID: "x", Text: "a" + ChunkSeparator + "b"}}, [][]float32{{1}}},
		{"NaN component", chunks("w", "a", "b", "c"), [][]float32{{0, 0}, {float32(math.NaN()), 0}, {1, 0}}},
		{"infinite component", chunks("w", "a", "b"), [][]float32{{0, float32(math.Inf(1))}, {1, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Build(ctx, "w", tt.chunks, tt.vecs)
			if !errors.Is(err, errs.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(s.root, "w")); !os.IsNotExist(err) {
		t.Errorf("failed builds must not persist anything")
	}
}

func TestStore_QueryValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Build(ctx, "w", chunks("w", "a"), [][]float32{{1, 2}}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Query(ctx, "w", []float32{1, 2}, 0); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("k=0: expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.Query(ctx, "w", []float32{1}, 1); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("dimension mismatch: expected ErrInvalidInput, got %v", err)
	}
	for _, q := range [][]float32{{float32(math.NaN()), 2}, {1, float32(math.Inf(-1))}} {
		if _, err := s.Query(ctx, "w", q, 1); !errors.Is(err, errs.ErrInvalidInput) {
			t.Errorf("query %v: expected ErrInvalidInput, got %v", q, err)
		}
	}
	if _, err := s.Query(ctx, "missing", []float32{1, 2}, 1); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("missing collection: expected ErrNotFound, got %v", err)
	}
}

func TestStore_LoadNotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.Load(context.Background(), "nowhere"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Output: "stderr"})

	first := NewStore(dir, log)
	texts := []TextChunk{
		{ID: "lore-0", Text: "The Shire is green.\nHobbits live there."},
		{ID: "lore-1", Text: ""},
		{ID: "lore-2", Text: "Mordor\n--"},
	}
	vecs := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	if err := first.Build(ctx, "middle-earth", texts, vecs); err != nil {
		t.Fatal(err)
	}

	second := NewStore(dir, log)
	if err := second.Load(ctx, "middle-earth"); err != nil {
		t.Fatal(err)
	}
	stats, err := second.Stats(ctx, "middle-earth")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Count != 3 || stats.Dim != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}

	hits, err := second.Query(ctx, "middle-earth", []float32{0, 0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	got, err := second.ChunkTexts(ctx, "middle-earth", []string{hits[0].ChunkID, "lore-0", "lore-1"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{texts[2].Text, texts[0].Text, ""}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("text %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStore_LazyLoadOnQuery(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	if err := NewStore(dir, nil).Build(ctx, "w", chunks("w", "a", "b"), [][]float32{{0}, {1}}); err != nil {
		t.Fatal(err)
	}

	fresh := NewStore(dir, nil)
	hits, err := fresh.Query(ctx, "w", []float32{1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].ChunkID != "b" {
		t.Errorf("expected b, got %+v", hits)
	}
}

func TestStore_RebuildReplacesWholeIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Build(ctx, "w", chunks("w", "old-a", "old-b"), [][]float32{{0}, {1}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Build(ctx, "w", chunks("w", "new"), [][]float32{{5, 5}}); err != nil {
		t.Fatal(err)
	}

	stats, _ := s.Stats(ctx, "w")
	if stats.Count != 1 || stats.Dim != 2 {
		t.Fatalf("expected rebuilt index, got %+v", stats)
	}

	reloaded := NewStore(s.root, nil)
	hits, err := reloaded.Query(ctx, "w", []float32{0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "new" {
		t.Errorf("expected only the new chunk on disk, got %+v", hits)
	}

	entries, _ := os.ReadDir(s.root)
	for _, e := range entries {
		if e.Name() != "w" {
			t.Errorf("leftover entry %q in index root", e.Name())
		}
	}
}

func TestStore_ConcurrentQueriesDuringRebuild(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Build(ctx, "w", chunks("w", "a", "b"), [][]float32{{0, 0}, {1, 1}}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				hits, err := s.Query(ctx, "w", []float32{0, 0}, 2)
				if err != nil {
					errCh <- err
					return
				}
				if len(hits) == 0 {
					errCh <- fmt.Errorf("empty result")
					return
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		if err := s.Build(ctx, "w", chunks("w", "x", "y", "z"), [][]float32{{0, 0}, {1, 1}, {2, 2}}); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}

func TestStore_CollectionsAndDrop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, c := range []string{"b-world", "a-world"} {
		if err := s.Build(ctx, c, chunks(c, "x"), [][]float32{{1}}); err != nil {
			t.Fatal(err)
		}
	}
	names, err := s.Collections()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "a-world" || names[1] != "b-world" {
		t.Errorf("unexpected collections %v", names)
	}

	if err := s.Drop(ctx, "a-world"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Query(ctx, "a-world", []float32{1}, 1); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected dropped collection to be not found, got %v", err)
	}
	if err := s.Drop(ctx, "a-world"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("second drop: expected ErrNotFound, got %v", err)
	}
}

func TestStore_RejectsPathLikeCollections(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"", "../etc", ".hidden", `a\b`} {
		err := s.Build(context.Background(), name, chunks(name, "x"), [][]float32{{1}})
		if !errors.Is(err, errs.ErrInvalidInput) {
			t.Errorf("%q: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"unit", []float32{0, 0}, []float32{1, 0}, 1},
		{"diagonal", []float32{0, 0}, []float32{3, 4}, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := squaredL2(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("squaredL2 = %f, want %f", got, tt.want)
			}
		})
	}
}
