// Package memory keeps bounded per-persona conversation windows and capped
// character event logs in process memory, with snapshot persistence.
package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/personaforge/personaforge/pkg/errs"
)

// Default caps.
const (
	DefaultMaxHistory    = 10
	DefaultMaxEvents     = 50
	DefaultContextTurns  = 3
	DefaultContextEvents = 5
	DefaultRecentEvents  = 10
)

// Key identifies one persona within one collection.
type Key struct {
	PersonaID    string `json:"persona_id"`
	CollectionID string `json:"collection_id"`
}

// String renders the key as "collection:persona".
func (k Key) String() string {
	return k.CollectionID + ":" + k.PersonaID
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	collection, persona, ok := strings.Cut(s, ":")
	if !ok || collection == "" || persona == "" {
		return Key{}, fmt.Errorf("%w: bad memory key %q", errs.ErrInvalidInput, s)
	}
	return Key{PersonaID: persona, CollectionID: collection}, nil
}

// Role is the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ConversationTurn is one message in a dialogue.
type ConversationTurn struct {
	Role         Role      `json:"role"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	PersonaID    string    `json:"persona_id"`
	CollectionID string    `json:"collection_id"`
}

// EventKind classifies a character event.
type EventKind string

const (
	EventEmotionChange      EventKind = "emotion_change"
	EventInventoryChange    EventKind = "inventory_change"
	EventRelationshipChange EventKind = "relationship_change"
	EventLocationChange     EventKind = "location_change"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventEmotionChange, EventInventoryChange, EventRelationshipChange, EventLocationChange:
		return true
	}
	return false
}

// CharacterEvent is a long-term memory entry about a persona.
type CharacterEvent struct {
	Kind         EventKind         `json:"event_type"`
	Description  string            `json:"description"`
	Timestamp    time.Time         `json:"timestamp"`
	PersonaID    string            `json:"persona_id"`
	CollectionID string            `json:"collection_id"`
	Details      map[string]string `json:"details"`
}

func cloneEvent(e CharacterEvent) CharacterEvent {
	if e.Details != nil {
		details := make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		e.Details = details
	}
	return e
}
