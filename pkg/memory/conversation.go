package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/personaforge/personaforge/pkg/errs"
)

// ConversationMemory holds a bounded window of recent turns per key.
type ConversationMemory struct {
	log   *keyedLog[ConversationTurn]
	clock *Clock
	store *Store
}

// Option configures ConversationMemory and EventLog.
type Option func(*options)

type options struct {
	clock *Clock
	store *Store
}

// WithClock shares a clock between instances.
func WithClock(c *Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithStore enables Persist and LoadAll.
func WithStore(s *Store) Option {
	return func(o *options) { o.store = s }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = NewClock()
	}
	return o
}

// NewConversationMemory creates a memory keeping at most maxHistory turns
// per key. maxHistory <= 0 selects DefaultMaxHistory.
func NewConversationMemory(maxHistory int, opts ...Option) *ConversationMemory {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	o := buildOptions(opts)
	return &ConversationMemory{
		log:   newKeyedLog[ConversationTurn](maxHistory),
		clock: o.clock,
		store: o.store,
	}
}

func (m *ConversationMemory) turn(key Key, role Role, content string) ConversationTurn {
	return ConversationTurn{
		Role:         role,
		Content:      content,
		Timestamp:    m.clock.Next(),
		PersonaID:    key.PersonaID,
		CollectionID: key.CollectionID,
	}
}

// AddTurn appends one turn, evicting the oldest beyond the window cap.
func (m *ConversationMemory) AddTurn(key Key, role Role, content string) (ConversationTurn, error) {
	if !role.Valid() {
		return ConversationTurn{}, fmt.Errorf("%w: unknown role %q", errs.ErrInvalidInput, role)
	}
	added := m.log.append(key, func() []ConversationTurn {
		return []ConversationTurn{m.turn(key, role, content)}
	})
	return added[0], nil
}

// AddExchange appends a user turn and the assistant reply together, so no
// reader observes half an exchange.
func (m *ConversationMemory) AddExchange(key Key, user, assistant string) []ConversationTurn {
	return m.log.append(key, func() []ConversationTurn {
		return []ConversationTurn{
			m.turn(key, RoleUser, user),
			m.turn(key, RoleAssistant, assistant),
		}
	})
}

// RecentTurns returns up to maxTurns newest turns, oldest first.
func (m *ConversationMemory) RecentTurns(key Key, maxTurns int) []ConversationTurn {
	return m.log.recent(key, maxTurns)
}

// RecentContext formats up to maxTurns newest turns as "User: ..." and
// "<personaName>: ..." lines in chronological order. maxTurns <= 0 selects
// DefaultContextTurns.
func (m *ConversationMemory) RecentContext(key Key, personaName string, maxTurns int) string {
	if maxTurns <= 0 {
		maxTurns = DefaultContextTurns
	}
	turns := m.log.recent(key, maxTurns)
	if len(turns) == 0 {
		return ""
	}

	lines := make([]string, len(turns))
	for i, t := range turns {
		if t.Role == RoleUser {
			lines[i] = "User: " + t.Content
		} else {
			lines[i] = personaName + ": " + t.Content
		}
	}
	return strings.Join(lines, "\n")
}

// Len returns the number of turns held for key.
func (m *ConversationMemory) Len(key Key) int { return m.log.len(key) }

// Clear removes the window of key. Clearing an unknown key is a no-op.
func (m *ConversationMemory) Clear(key Key) { m.log.clear(key) }

// Snapshot returns a copy of the whole window of key.
func (m *ConversationMemory) Snapshot(key Key) []ConversationTurn { return m.log.snapshot(key) }

// Restore replaces the window of key with turns, keeping their order and
// timestamps. Only the newest turns up to the cap are kept.
func (m *ConversationMemory) Restore(key Key, turns []ConversationTurn) {
	for _, t := range turns {
		m.clock.Observe(t.Timestamp)
	}
	m.log.restore(key, turns)
}

// Keys lists every key with a window.
func (m *ConversationMemory) Keys() []Key { return m.log.keys() }

// Persist saves the window of key. An empty window deletes the snapshot.
func (m *ConversationMemory) Persist(ctx context.Context, key Key) error {
	if m.store == nil {
		return nil
	}
	return m.store.SaveTurns(ctx, key, m.Snapshot(key))
}

// LoadAll restores every persisted window and returns how many were loaded.
func (m *ConversationMemory) LoadAll(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	snapshots, err := m.store.LoadAllTurns(ctx)
	if err != nil {
		return 0, err
	}
	for key, turns := range snapshots {
		m.Restore(key, turns)
	}
	return len(snapshots), nil
}
