package memory

import (
	"sort"
	"sync"
	"time"
)

// Clock hands out strictly increasing UTC timestamps, even when the wall
// clock stalls or steps backwards.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewClock creates a clock over time.Now.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Next returns a timestamp after every previous one.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Round(0)
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}

// Observe moves the clock past t, used when restoring snapshots.
func (c *Clock) Observe(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.last) {
		c.last = t.UTC().Round(0)
	}
}

// keyedLog is a map of bounded FIFO slices. Oldest entries are evicted first.
type keyedLog[T any] struct {
	mu    sync.RWMutex
	limit int
	items map[Key][]T
}

func newKeyedLog[T any](limit int) *keyedLog[T] {
	if limit < 1 {
		limit = 1
	}
	return &keyedLog[T]{limit: limit, items: make(map[Key][]T)}
}

// append adds entries built under the write lock so stamping and insertion
// are ordered together.
func (l *keyedLog[T]) append(key Key, build func() []T) []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := build()
	list := append(l.items[key], added...)
	if over := len(list) - l.limit; over > 0 {
		// Copy so the evicted prefix can be collected.
		list = append([]T(nil), list[over:]...)
	}
	l.items[key] = list
	return added
}

// recent returns up to n newest entries in chronological order.
func (l *keyedLog[T]) recent(key Key, n int) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	list := l.items[key]
	if n <= 0 || len(list) == 0 {
		return nil
	}
	if n > len(list) {
		n = len(list)
	}
	return append([]T(nil), list[len(list)-n:]...)
}

func (l *keyedLog[T]) snapshot(key Key) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]T(nil), l.items[key]...)
}

func (l *keyedLog[T]) restore(key Key, entries []T) {
	if over := len(entries) - l.limit; over > 0 {
		entries = entries[over:]
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(entries) == 0 {
		delete(l.items, key)
		return
	}
	l.items[key] = append([]T(nil), entries...)
}

func (l *keyedLog[T]) clear(key Key) {
	l.mu.Lock()
	delete(l.items, key)
	l.mu.Unlock()
}

func (l *keyedLog[T]) len(key Key) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items[key])
}

func (l *keyedLog[T]) keys() []Key {
	l.mu.RLock()
	keys := make([]Key, 0, len(l.items))
	for k := range l.items {
		keys = append(keys, k)
	}
	l.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
