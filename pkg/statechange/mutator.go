package statechange

import (
	"fmt"
	"time"

	"github.com/personaforge/personaforge/pkg/memory"
	"github.com/personaforge/personaforge/pkg/persona"
)

type mutationRecorder interface {
	RecordStateMutation(kind string)
}

// Mutator applies proposals to persona state and records one event per
// applied change.
type Mutator struct {
	events  *memory.EventLog
	metrics mutationRecorder
	now     func() time.Time
}

// NewMutator creates a Mutator logging into events. metrics may be nil.
func NewMutator(events *memory.EventLog, metrics mutationRecorder) *Mutator {
	return &Mutator{events: events, metrics: metrics, now: time.Now}
}

// Apply mutates state in place. Emotion proposals are applied in order so
// the last one sets the mood. Adding a held item or removing a missing one
// is refused silently. The returned events are those appended to the log.
func (m *Mutator) Apply(key memory.Key, state *persona.State, p Proposals) (bool, []memory.CharacterEvent) {
	var events []memory.CharacterEvent
	record := func(kind memory.EventKind, label, description string, details map[string]string) {
		e, err := m.events.AddEvent(key, kind, description, details)
		if err == nil {
			events = append(events, e)
		}
		if m.metrics != nil {
			m.metrics.RecordStateMutation(label)
		}
	}

	changed := false
	for _, ec := range p.Emotions {
		state.Mood.PrimaryEmotion = ec.Emotion
		state.Mood.Intensity = ec.Intensity
		state.Mood.Axis = []string{ec.Emotion}
		changed = true

		record(memory.EventEmotionChange, "emotion",
			fmt.Sprintf("Emotion changed to %s (%s)", ec.Emotion, ec.Intensity),
			map[string]string{"emotion": ec.Emotion, "intensity": ec.Intensity})
	}

	for _, ic := range p.Inventory {
		switch ic.Op {
		case InventoryAdd:
			if !state.AddItem(ic.Item) {
				continue
			}
			record(memory.EventInventoryChange, "inventory_add",
				fmt.Sprintf("Added %s to inventory", ic.Item),
				map[string]string{"action": "add", "item": ic.Item})
		case InventoryRemove:
			if !state.RemoveItem(ic.Item) {
				continue
			}
			record(memory.EventInventoryChange, "inventory_remove",
				fmt.Sprintf("Removed %s from inventory", ic.Item),
				map[string]string{"action": "remove", "item": ic.Item})
		default:
			continue
		}
		changed = true
	}

	if changed {
		state.Metadata.LastUpdated = m.now().UTC()
	}
	return changed, events
}
