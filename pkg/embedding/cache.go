package embedding

import (
	"container/list"
	"context"
	"sync"
)

// LRU is an in-memory LRU cache of embeddings keyed by text.
type LRU struct {
	mu       sync.Mutex
	maxSize  int
	items    map[string]*list.Element
	eviction *list.List
	hits     int64
	misses   int64
}

type lruItem struct {
	key    string
	vector []float32
}

// NewLRU creates a new LRU cache with the given max size.
func NewLRU(maxSize int) *LRU {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRU{
		maxSize:  maxSize,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// Get retrieves a vector from the cache, promoting it to the front.
func (c *LRU) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		c.hits++
		return elem.Value.(*lruItem).vector, true
	}
	c.misses++
	return nil, false
}

// Put adds or updates a vector in the cache.
func (c *LRU) Put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		elem.Value.(*lruItem).vector = vector
		return
	}

	if c.eviction.Len() >= c.maxSize {
		c.evictOldest()
	}

	c.items[key] = c.eviction.PushFront(&lruItem{key: key, vector: vector})
}

// Len returns the number of items in the cache.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// HitRate returns the cache hit rate (0.0-1.0) and total accesses.
func (c *LRU) HitRate() (rate float64, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total = c.hits + c.misses
	if total == 0 {
		return 0, 0
	}
	return float64(c.hits) / float64(total), total
}

func (c *LRU) evictOldest() {
	back := c.eviction.Back()
	if back == nil {
		return
	}
	c.eviction.Remove(back)
	delete(c.items, back.Value.(*lruItem).key)
}

// Cached memoises single-text embeddings of another Embedder. Batch calls
// pass straight through since they come from index builds.
type Cached struct {
	Embedder
	cache *LRU
}

// NewCached wraps e with an LRU of size entries.
func NewCached(e Embedder, size int) *Cached {
	return &Cached{Embedder: e, cache: NewLRU(size)}
}

// Embed returns the cached vector for text or computes and caches it.
// Returned slices are copies.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return append([]float32(nil), v...), nil
	}
	v, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Put(text, append([]float32(nil), v...))
	return v, nil
}

// HitRate exposes the cache statistics.
func (c *Cached) HitRate() (float64, int64) { return c.cache.HitRate() }
