package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/personaforge/personaforge/pkg/errs"
	"github.com/personaforge/personaforge/pkg/storage"
)

const (
	turnsKeyPrefix  = "memory:"
	eventsKeyPrefix = "events:"

	snapshotVersion = 1
)

// snapshot is the durable document for one key.
type snapshot[T any] struct {
	Version int       `json:"version"`
	Key     Key       `json:"key"`
	SavedAt time.Time `json:"saved_at"`
	Entries []T       `json:"entries"`
}

// Store persists conversation windows and event logs in a storage.KV, one
// document per key.
type Store struct {
	kv storage.KV
}

// NewStore creates a snapshot store over kv.
func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// SaveTurns writes the window of key. An empty window removes the document.
func (s *Store) SaveTurns(ctx context.Context, key Key, turns []ConversationTurn) error {
	return save(ctx, s.kv, turnsKeyPrefix, key, turns)
}

// LoadTurns reads the window of key.
func (s *Store) LoadTurns(ctx context.Context, key Key) ([]ConversationTurn, error) {
	return load[ConversationTurn](ctx, s.kv, turnsKeyPrefix+key.String())
}

// LoadAllTurns reads every persisted window.
func (s *Store) LoadAllTurns(ctx context.Context) (map[Key][]ConversationTurn, error) {
	return loadAll[ConversationTurn](ctx, s.kv, turnsKeyPrefix)
}

// SaveEvents writes the event log of key.
func (s *Store) SaveEvents(ctx context.Context, key Key, events []CharacterEvent) error {
	return save(ctx, s.kv, eventsKeyPrefix, key, events)
}

// LoadAllEvents reads every persisted event log.
func (s *Store) LoadAllEvents(ctx context.Context) (map[Key][]CharacterEvent, error) {
	return loadAll[CharacterEvent](ctx, s.kv, eventsKeyPrefix)
}

func save[T any](ctx context.Context, kv storage.KV, prefix string, key Key, entries []T) error {
	k := prefix + key.String()
	if len(entries) == 0 {
		if err := kv.Delete(ctx, k); err != nil {
			return fmt.Errorf("memory: delete %s: %w", k, err)
		}
		return nil
	}
	doc := snapshot[T]{
		Version: snapshotVersion,
		Key:     key,
		SavedAt: time.Now().UTC(),
		Entries: entries,
	}
	if err := storage.PutJSON(ctx, kv, k, doc); err != nil {
		return fmt.Errorf("memory: save %s: %w", k, err)
	}
	return nil
}

func load[T any](ctx context.Context, kv storage.KV, k string) ([]T, error) {
	var doc snapshot[T]
	if err := storage.GetJSON(ctx, kv, k, &doc); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("memory: load %s: %w", k, err)
	}
	if doc.Version != snapshotVersion {
		return nil, fmt.Errorf("memory: %s has unsupported snapshot version %d", k, doc.Version)
	}
	return doc.Entries, nil
}

func loadAll[T any](ctx context.Context, kv storage.KV, prefix string) (map[Key][]T, error) {
	keys, err := kv.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("memory: list %s: %w", prefix, err)
	}
	out := make(map[Key][]T, len(keys))
	for _, k := range keys {
		key, err := ParseKey(strings.TrimPrefix(k, prefix))
		if err != nil {
			return nil, err
		}
		entries, err := load[T](ctx, kv, k)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			out[key] = entries
		}
	}
	return out, nil
}
