package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/personaforge/personaforge/pkg/errs"
	"github.com/personaforge/personaforge/pkg/logger"
)

// Store owns one index per collection and persists them under a root directory.
type Store struct {
	root   string
	logger logger.Logger

	mu      sync.RWMutex
	indexes map[string]*index

	// buildMu serializes builds and lazy loads so a slow load never
	// overwrites a newer build.
	buildMu sync.Mutex
}

// NewStore creates a store rooted at dir. Indexes are loaded lazily.
func NewStore(dir string, log logger.Logger) *Store {
	if log == nil {
		log = logger.Global()
	}
	return &Store{
		root:    dir,
		logger:  log.With("component", "vectorindex"),
		indexes: make(map[string]*index),
	}
}

func (s *Store) dir(collection string) string {
	return filepath.Join(s.root, collection)
}

func validCollection(collection string) error {
	if collection == "" || strings.ContainsAny(collection, `/\`) || strings.HasPrefix(collection, ".") {
		return fmt.Errorf("%w: bad collection name %q", errs.ErrInvalidInput, collection)
	}
	return nil
}

// Build replaces the index for collection with chunks and their embeddings
// and persists it. The previous index keeps serving queries until the new
// one is durable.
func (s *Store) Build(ctx context.Context, collection string, chunks []TextChunk, embeddings [][]float32) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	idx, err := newIndex(collection, chunks, embeddings)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	if err := writeIndex(s.dir(collection), idx); err != nil {
		return err
	}

	s.mu.Lock()
	s.indexes[collection] = idx
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "index built",
		"collection", collection,
		"chunks", len(idx.ids),
		"dim", idx.dim,
	)
	return nil
}

// Load reads the persisted index for collection, replacing any resident copy.
func (s *Store) Load(ctx context.Context, collection string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	_, err := s.loadLocked(ctx, collection)
	return err
}

func (s *Store) loadLocked(ctx context.Context, collection string) (*index, error) {
	idx, err := readIndex(s.dir(collection), collection)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.indexes[collection] = idx
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "index loaded", "collection", collection, "chunks", len(idx.ids))
	return idx, nil
}

// get returns the resident index, loading it from disk on first use.
func (s *Store) get(ctx context.Context, collection string) (*index, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	idx, ok := s.indexes[collection]
	s.mu.RUnlock()
	if ok {
		return idx, nil
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	s.mu.RLock()
	idx, ok = s.indexes[collection]
	s.mu.RUnlock()
	if ok {
		return idx, nil
	}
	return s.loadLocked(ctx, collection)
}

// Query returns up to k chunk hits ranked by ascending squared Euclidean
// distance, ties broken by insertion order.
func (s *Store) Query(ctx context.Context, collection string, vector []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", errs.ErrInvalidInput, k)
	}
	idx, err := s.get(ctx, collection)
	if err != nil {
		return nil, err
	}
	return idx.search(vector, k)
}

// ChunkTexts maps chunk ids of collection back to their text, in order.
// Unknown ids are skipped.
func (s *Store) ChunkTexts(ctx context.Context, collection string, ids []string) ([]string, error) {
	idx, err := s.get(ctx, collection)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(ids))
	for _, id := range ids {
		if text, ok := idx.text(id); ok {
			texts = append(texts, text)
		}
	}
	return texts, nil
}

// Stats returns the shape of the index for collection.
func (s *Store) Stats(ctx context.Context, collection string) (Stats, error) {
	idx, err := s.get(ctx, collection)
	if err != nil {
		return Stats{}, err
	}
	return idx.stats(), nil
}

// Collections lists every collection that is resident or persisted.
func (s *Store) Collections() ([]string, error) {
	seen := make(map[string]struct{})
	s.mu.RLock()
	for name := range s.indexes {
		seen[name] = struct{}{}
	}
	s.mu.RUnlock()

	entries, err := os.ReadDir(s.root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("vectorindex: list collections: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), indexFileName)); err == nil {
			seen[e.Name()] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Drop removes the index for collection from memory and disk.
func (s *Store) Drop(ctx context.Context, collection string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	s.mu.Lock()
	_, resident := s.indexes[collection]
	delete(s.indexes, collection)
	s.mu.Unlock()

	dir := s.dir(collection)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if !resident {
			return fmt.Errorf("vectorindex: collection %q: %w", collection, errs.ErrNotFound)
		}
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("vectorindex: drop %q: %w", collection, err)
	}
	s.logger.InfoContext(ctx, "index dropped", "collection", collection)
	return nil
}
