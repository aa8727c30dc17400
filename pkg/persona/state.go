// Package persona holds the mutable state of a role-played character and its
// persistence.
package persona

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/personaforge/personaforge/pkg/memory"
)

// Default mood values for a persona created without one.
const (
	DefaultEmotion   = "neutral"
	DefaultIntensity = "low"
)

// Mood is the persona's current emotional state.
type Mood struct {
	PrimaryEmotion string   `json:"primary_emotion"`
	Intensity      string   `json:"intensity"`
	Axis           []string `json:"plutchik_axis"`
}

// Relationships describes the persona's social ties.
type Relationships struct {
	Faction     string   `json:"faction,omitempty"`
	Allies      []string `json:"allies"`
	Enemies     []string `json:"enemies"`
	Mentor      string   `json:"mentor,omitempty"`
	Apprentices []string `json:"apprentices"`
}

// Metadata tracks manifest bookkeeping.
type Metadata struct {
	Created     time.Time `json:"created"`
	LastUpdated time.Time `json:"last_updated"`
	Version     string    `json:"version"`
}

// State is the persisted record of a persona within one collection.
type State struct {
	ID         string `json:"id" validate:"required,max=100,excludesall=:/\\"`
	Collection string `json:"collection" validate:"required,max=100,excludesall=:/\\"`
	Name       string `json:"name" validate:"required,max=200"`
	Role       string `json:"role"`
	Location   string `json:"location"`
	Backstory  string `json:"backstory"`

	Mood      Mood     `json:"current_mood"`
	Inventory []string `json:"inventory"`

	PersonalityTraits []string       `json:"personality_traits,omitempty"`
	KeyQuotes         []string       `json:"key_quotes,omitempty"`
	KnowledgeDomains  []string       `json:"knowledge_domains,omitempty"`
	Relationships     *Relationships `json:"relationships,omitempty"`

	Metadata Metadata `json:"metadata"`
}

// Slug derives a persona id from a display name.
func Slug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// Key returns the conversation key of this persona.
func (s *State) Key() memory.Key {
	return memory.Key{PersonaID: s.ID, CollectionID: s.Collection}
}

// Normalize fills derived and default fields.
func (s *State) Normalize(now time.Time) {
	if s.ID == "" {
		s.ID = Slug(s.Name)
	}
	if s.Mood.PrimaryEmotion == "" {
		s.Mood.PrimaryEmotion = DefaultEmotion
	}
	if s.Mood.Intensity == "" {
		s.Mood.Intensity = DefaultIntensity
	}
	if s.Inventory == nil {
		s.Inventory = []string{}
	}
	if s.Metadata.Created.IsZero() {
		s.Metadata.Created = now
	}
	if s.Metadata.LastUpdated.IsZero() {
		s.Metadata.LastUpdated = now
	}
	if s.Metadata.Version == "" {
		s.Metadata.Version = "1.0"
	}
}

// HasItem reports whether item is in the inventory.
func (s *State) HasItem(item string) bool {
	return slices.Contains(s.Inventory, item)
}

// AddItem appends item unless already held. It reports whether the
// inventory changed.
func (s *State) AddItem(item string) bool {
	if s.HasItem(item) {
		return false
	}
	s.Inventory = append(s.Inventory, item)
	return true
}

// RemoveItem removes item if held. It reports whether the inventory changed.
func (s *State) RemoveItem(item string) bool {
	i := slices.Index(s.Inventory, item)
	if i < 0 {
		return false
	}
	s.Inventory = slices.Delete(s.Inventory, i, i+1)
	return true
}

// Description is the one-line introduction used in prompts.
func (s *State) Description() string {
	return fmt.Sprintf("%s, a %s from %s", s.Name, s.Role, s.Location)
}

// DescribeMood renders the mood for prompts and debug output.
func (s *State) DescribeMood() string {
	if s.Mood.PrimaryEmotion == "" && s.Mood.Intensity == "" {
		return "Mood unknown."
	}
	return fmt.Sprintf("Primary emotion: %s, Intensity: %s, Plutchik axis: %s",
		s.Mood.PrimaryEmotion, s.Mood.Intensity, strings.Join(s.Mood.Axis, ", "))
}

// Snapshot renders mood and inventory as a prompt section.
func (s *State) Snapshot() string {
	inventory := "Empty"
	if len(s.Inventory) > 0 {
		inventory = strings.Join(s.Inventory, ", ")
	}
	return fmt.Sprintf("Current mood: %s\nInventory: %s", s.DescribeMood(), inventory)
}

// Chunks returns index chunks describing the persona so retrieval can
// surface its backstory and whereabouts.
func (s *State) Chunks() []string {
	return []string{
		fmt.Sprintf("Character: %s is a %s located at %s. Backstory: %s Current mood: %s (%s). Inventory: %s",
			s.Name, s.Role, s.Location, s.Backstory,
			s.Mood.PrimaryEmotion, s.Mood.Intensity, strings.Join(s.Inventory, ", ")),
		fmt.Sprintf("%s backstory: %s", s.Name, s.Backstory),
		fmt.Sprintf("Location %s: %s the %s can be found here.", s.Location, s.Name, s.Role),
	}
}

func (s *State) String() string {
	return fmt.Sprintf("%s the %s at %s", s.Name, s.Role, s.Location)
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	c.Mood.Axis = slices.Clone(s.Mood.Axis)
	c.Inventory = slices.Clone(s.Inventory)
	c.PersonalityTraits = slices.Clone(s.PersonalityTraits)
	c.KeyQuotes = slices.Clone(s.KeyQuotes)
	c.KnowledgeDomains = slices.Clone(s.KnowledgeDomains)
	if s.Relationships != nil {
		r := *s.Relationships
		r.Allies = slices.Clone(r.Allies)
		r.Enemies = slices.Clone(r.Enemies)
		r.Apprentices = slices.Clone(r.Apprentices)
		c.Relationships = &r
	}
	return &c
}
