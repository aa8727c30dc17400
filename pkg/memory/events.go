package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/personaforge/personaforge/pkg/errs"
)

// EventLog holds the capped long-term event list per key.
type EventLog struct {
	log   *keyedLog[CharacterEvent]
	clock *Clock
	store *Store
}

// NewEventLog creates a log keeping at most maxEvents per key. maxEvents <= 0
// selects DefaultMaxEvents.
func NewEventLog(maxEvents int, opts ...Option) *EventLog {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	o := buildOptions(opts)
	return &EventLog{
		log:   newKeyedLog[CharacterEvent](maxEvents),
		clock: o.clock,
		store: o.store,
	}
}

// AddEvent appends an event, evicting the oldest beyond the cap.
func (l *EventLog) AddEvent(key Key, kind EventKind, description string, details map[string]string) (CharacterEvent, error) {
	if !kind.Valid() {
		return CharacterEvent{}, fmt.Errorf("%w: unknown event kind %q", errs.ErrInvalidInput, kind)
	}
	if details == nil {
		details = map[string]string{}
	}
	added := l.log.append(key, func() []CharacterEvent {
		return []CharacterEvent{cloneEvent(CharacterEvent{
			Kind:         kind,
			Description:  description,
			Timestamp:    l.clock.Next(),
			PersonaID:    key.PersonaID,
			CollectionID: key.CollectionID,
			Details:      details,
		})}
	})
	return added[0], nil
}

// RecentEvents returns up to maxEvents newest events, oldest first.
// maxEvents <= 0 selects DefaultRecentEvents.
func (l *EventLog) RecentEvents(key Key, maxEvents int) []CharacterEvent {
	if maxEvents <= 0 {
		maxEvents = DefaultRecentEvents
	}
	events := l.log.recent(key, maxEvents)
	for i := range events {
		events[i] = cloneEvent(events[i])
	}
	return events
}

// FormatRecent renders up to maxEvents newest events as a prompt section,
// or "" when there are none.
func (l *EventLog) FormatRecent(key Key, maxEvents int) string {
	if maxEvents <= 0 {
		maxEvents = DefaultContextEvents
	}
	events := l.log.recent(key, maxEvents)
	if len(events) == 0 {
		return ""
	}
	lines := make([]string, len(events))
	for i, e := range events {
		lines[i] = "- " + e.Description
	}
	return "Important recent events:\n" + strings.Join(lines, "\n")
}

// Len returns the number of events held for key.
func (l *EventLog) Len(key Key) int { return l.log.len(key) }

// Clear removes all events of key.
func (l *EventLog) Clear(key Key) { l.log.clear(key) }

// Snapshot returns a copy of every event of key.
func (l *EventLog) Snapshot(key Key) []CharacterEvent {
	events := l.log.snapshot(key)
	for i := range events {
		events[i] = cloneEvent(events[i])
	}
	return events
}

// Restore replaces the events of key, keeping order and timestamps.
func (l *EventLog) Restore(key Key, events []CharacterEvent) {
	copied := make([]CharacterEvent, len(events))
	for i, e := range events {
		l.clock.Observe(e.Timestamp)
		copied[i] = cloneEvent(e)
	}
	l.log.restore(key, copied)
}

// Keys lists every key with events.
func (l *EventLog) Keys() []Key { return l.log.keys() }

// Persist saves the events of key.
func (l *EventLog) Persist(ctx context.Context, key Key) error {
	if l.store == nil {
		return nil
	}
	return l.store.SaveEvents(ctx, key, l.Snapshot(key))
}

// LoadAll restores every persisted event log.
func (l *EventLog) LoadAll(ctx context.Context) (int, error) {
	if l.store == nil {
		return 0, nil
	}
	snapshots, err := l.store.LoadAllEvents(ctx)
	if err != nil {
		return 0, err
	}
	for key, events := range snapshots {
		l.Restore(key, events)
	}
	return len(snapshots), nil
}
