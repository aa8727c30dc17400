package statechange

import (
	"sync"
	"testing"

	"github.com/personaforge/personaforge/pkg/memory"
	"github.com/personaforge/personaforge/pkg/persona"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEmotionChanges(t *testing.T) {
	tests := []struct {
		name      string
		user      string
		assistant string
		want      []EmotionChange
	}{
		{
			name: "extreme joy",
			user: "I am extremely happy",
			want: []EmotionChange{{"joy", IntensityExtreme}},
		},
		{
			name: "no keyword",
			user: "Tell me about the mountains.",
			want: nil,
		},
		{
			name: "keyword without modifier is low",
			user: "I feel sad today",
			want: []EmotionChange{{"sadness", IntensityLow}},
		},
		{
			name: "moderate phrase",
			user: "I'm kind of worried about the road",
			want: []EmotionChange{{"fear", IntensityModerate}},
		},
		{
			name: "extreme beats high in same text",
			user: "I am very, utterly furious",
			want: []EmotionChange{{"anger", IntensityExtreme}},
		},
		{
			name: "excited maps to joy and anticipation in lexicon order",
			user: "I'm excited",
			want: []EmotionChange{{"joy", IntensityLow}, {"anticipation", IntensityLow}},
		},
		{
			name:      "assistant overwrites user intensity but keeps position",
			user:      "I trust you and I am happy",
			assistant: "I am really happy to hear it",
			want:      []EmotionChange{{"joy", IntensityHigh}, {"trust", IntensityLow}},
		},
		{
			name:      "assistant adds new emotion after user ones",
			user:      "I am afraid",
			assistant: "Do not be afraid. I am angry at the orcs.",
			want:      []EmotionChange{{"fear", IntensityLow}, {"anger", IntensityLow}},
		},
		{
			name: "case insensitive multiword keyword",
			user: "I am Looking Forward to the feast",
			want: []EmotionChange{{"anticipation", IntensityLow}},
		},
		{
			// Substring matching is inherited: "so" inside "sorrow".
			name: "substring intensity",
			user: "such sorrow",
			want: []EmotionChange{{"sadness", IntensityHigh}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectEmotionChanges(tt.user, tt.assistant))
		})
	}
}

func TestDetectInventoryChanges(t *testing.T) {
	tests := []struct {
		name string
		user string
		want []InventoryChange
	}{
		{"here is", "here is my sword", []InventoryChange{{InventoryAdd, "sword"}}},
		{"give", "I give you the elven cloak", []InventoryChange{{InventoryAdd, "elven cloak"}}},
		{"take this", "Take this lembas", []InventoryChange{{InventoryAdd, "lembas"}}},
		{"steal", "I will steal your ring", []InventoryChange{{InventoryRemove, "ring"}}},
		{"possessive stripped", "here is their lantern", []InventoryChange{{InventoryAdd, "lantern"}}},
		{"demonstrative stripped", "here is that old staff", []InventoryChange{{InventoryAdd, "old staff"}}},
		{"short match dropped", "I give you it", nil},
		{"nothing", "What a lovely day.", nil},
		{
			name: "all matches kept adds first",
			user: "I lose your map. Here is a torch. I hand him rope",
			want: []InventoryChange{
				{InventoryAdd, "rope"},
				{InventoryAdd, "torch"},
				{InventoryRemove, "map"},
			},
		},
		{
			name: "duplicates collapsed",
			user: "here is bread, here is bread",
			want: []InventoryChange{{InventoryAdd, "bread"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectInventoryChanges(tt.user))
		})
	}
}

func TestAnalyze(t *testing.T) {
	p := Analyze("I am so happy, here is my sword", "")
	assert.False(t, p.Empty())
	assert.Equal(t, []EmotionChange{{"joy", IntensityHigh}}, p.Emotions)
	assert.Equal(t, []InventoryChange{{InventoryAdd, "sword"}}, p.Inventory)

	assert.True(t, Analyze("", "").Empty())
}

type countingRecorder struct {
	mu    sync.Mutex
	kinds map[string]int
}

func (c *countingRecorder) RecordStateMutation(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kinds == nil {
		c.kinds = map[string]int{}
	}
	c.kinds[kind]++
}

var frodo = memory.Key{PersonaID: "frodo", CollectionID: "middle-earth"}

func newState(inventory ...string) *persona.State {
	return &persona.State{
		ID:         "frodo",
		Collection: "middle-earth",
		Name:       "Frodo",
		Mood:       persona.Mood{PrimaryEmotion: "neutral", Intensity: "low"},
		Inventory:  inventory,
	}
}

func TestMutator_AddItem(t *testing.T) {
	log := memory.NewEventLog(50)
	rec := &countingRecorder{}
	m := NewMutator(log, rec)
	state := newState()

	changed, events := m.Apply(frodo, state, Proposals{Inventory: DetectInventoryChanges("here is my sword")})

	assert.True(t, changed)
	assert.Equal(t, []string{"sword"}, state.Inventory)
	require.Len(t, events, 1)
	assert.Equal(t, memory.EventInventoryChange, events[0].Kind)
	assert.Equal(t, "Added sword to inventory", events[0].Description)
	assert.Equal(t, 1, log.Len(frodo))
	assert.Equal(t, 1, rec.kinds["inventory_add"])
	assert.False(t, state.Metadata.LastUpdated.IsZero())
}

func TestMutator_RefusedChangesLogNothing(t *testing.T) {
	log := memory.NewEventLog(50)
	m := NewMutator(log, nil)
	state := newState("sword")

	changed, events := m.Apply(frodo, state, Proposals{Inventory: []InventoryChange{
		{InventoryRemove, "shield"},
		{InventoryAdd, "sword"},
	}})

	assert.False(t, changed)
	assert.Empty(t, events)
	assert.Equal(t, []string{"sword"}, state.Inventory)
	assert.Equal(t, 0, log.Len(frodo))
	assert.True(t, state.Metadata.LastUpdated.IsZero())
}

func TestMutator_RemoveItem(t *testing.T) {
	log := memory.NewEventLog(50)
	m := NewMutator(log, nil)
	state := newState("sword", "ring", "cloak")

	changed, events := m.Apply(frodo, state, Proposals{Inventory: []InventoryChange{{InventoryRemove, "ring"}}})

	assert.True(t, changed)
	assert.Equal(t, []string{"sword", "cloak"}, state.Inventory)
	require.Len(t, events, 1)
	assert.Equal(t, "Removed ring from inventory", events[0].Description)
	assert.Equal(t, map[string]string{"action": "remove", "item": "ring"}, events[0].Details)
}

func TestMutator_EmotionsLastWins(t *testing.T) {
	log := memory.NewEventLog(50)
	rec := &countingRecorder{}
	m := NewMutator(log, rec)
	state := newState()

	changed, events := m.Apply(frodo, state, Proposals{Emotions: DetectEmotionChanges("I'm excited", "")})

	assert.True(t, changed)
	assert.Equal(t, "anticipation", state.Mood.PrimaryEmotion)
	assert.Equal(t, IntensityLow, state.Mood.Intensity)
	assert.Equal(t, []string{"anticipation"}, state.Mood.Axis)
	require.Len(t, events, 2)
	assert.Equal(t, "Emotion changed to joy (low)", events[0].Description)
	assert.Equal(t, "Emotion changed to anticipation (low)", events[1].Description)
	assert.Equal(t, 2, rec.kinds["emotion"])
}

func TestMutator_EmptyProposals(t *testing.T) {
	m := NewMutator(memory.NewEventLog(50), nil)
	changed, events := m.Apply(frodo, newState(), Proposals{})
	assert.False(t, changed)
	assert.Nil(t, events)
}
