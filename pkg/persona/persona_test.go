package persona

import (
	"context"
	"testing"
	"time"

	"github.com/personaforge/personaforge/pkg/errs"
	"github.com/personaforge/personaforge/pkg/memory"
	storagemem "github.com/personaforge/personaforge/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gandalf() *State {
	return &State{
		Name:       "Gandalf",
		Collection: "middle-earth",
		Role:       "Wizard",
		Location:   "Rivendell",
		Backstory:  "A Maia sent to Middle-earth.",
		Mood:       Mood{PrimaryEmotion: "trust", Intensity: "high", Axis: []string{"trust"}},
		Inventory:  []string{"staff", "pipe"},
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "gandalf-the-grey", Slug("  Gandalf  the Grey "))
	assert.Equal(t, "", Slug(""))
}

func TestState_Normalize(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s := &State{Name: "Sam Gamgee", Collection: "middle-earth"}
	s.Normalize(now)

	assert.Equal(t, "sam-gamgee", s.ID)
	assert.Equal(t, DefaultEmotion, s.Mood.PrimaryEmotion)
	assert.Equal(t, DefaultIntensity, s.Mood.Intensity)
	assert.NotNil(t, s.Inventory)
	assert.Equal(t, now, s.Metadata.Created)
	assert.Equal(t, now, s.Metadata.LastUpdated)
	assert.Equal(t, "1.0", s.Metadata.Version)
	assert.Equal(t, memory.Key{PersonaID: "sam-gamgee", CollectionID: "middle-earth"}, s.Key())
}

func TestState_Inventory(t *testing.T) {
	s := gandalf()

	assert.False(t, s.AddItem("staff"))
	assert.True(t, s.AddItem("sword"))
	assert.Equal(t, []string{"staff", "pipe", "sword"}, s.Inventory)

	assert.False(t, s.RemoveItem("shield"))
	assert.True(t, s.RemoveItem("pipe"))
	assert.Equal(t, []string{"staff", "sword"}, s.Inventory)
}

func TestState_Rendering(t *testing.T) {
	s := gandalf()

	assert.Equal(t, "Gandalf, a Wizard from Rivendell", s.Description())
	assert.Equal(t, "Primary emotion: trust, Intensity: high, Plutchik axis: trust", s.DescribeMood())
	assert.Equal(t,
		"Current mood: Primary emotion: trust, Intensity: high, Plutchik axis: trust\nInventory: staff, pipe",
		s.Snapshot())

	s.Inventory = nil
	assert.Contains(t, s.Snapshot(), "Inventory: Empty")

	s.Mood = Mood{}
	assert.Equal(t, "Mood unknown.", s.DescribeMood())

	chunks := gandalf().Chunks()
	require.Len(t, chunks, 3)
	assert.Equal(t, "Gandalf backstory: A Maia sent to Middle-earth.", chunks[1])
	assert.Equal(t, "Location Rivendell: Gandalf the Wizard can be found here.", chunks[2])
}

func TestState_CloneIsDeep(t *testing.T) {
	s := gandalf()
	s.Relationships = &Relationships{Allies: []string{"Frodo"}}

	c := s.Clone()
	c.Inventory[0] = "sword"
	c.Mood.Axis[0] = "anger"
	c.Relationships.Allies[0] = "Saruman"

	assert.Equal(t, "staff", s.Inventory[0])
	assert.Equal(t, "trust", s.Mood.Axis[0])
	assert.Equal(t, "Frodo", s.Relationships.Allies[0])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		state *State
		ok    bool
	}{
		{"valid", &State{ID: "gandalf", Collection: "middle-earth", Name: "Gandalf"}, true},
		{"missing name", &State{ID: "gandalf", Collection: "middle-earth"}, false},
		{"missing collection", &State{ID: "gandalf", Name: "Gandalf"}, false},
		{"colon in id", &State{ID: "a:b", Collection: "middle-earth", Name: "A"}, false},
		{"slash in collection", &State{ID: "a", Collection: "x/y", Name: "A"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.state)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errs.ErrInvalidInput)
			}
		})
	}
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storagemem.NewMemoryStorage())

	_, err := store.Get(ctx, "middle-earth", "gandalf")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	g := gandalf()
	require.NoError(t, store.Put(ctx, g))
	require.NoError(t, store.Put(ctx, &State{Name: "Frodo", Collection: "middle-earth"}))
	require.NoError(t, store.Put(ctx, &State{Name: "Luke", Collection: "star-wars"}))

	got, err := store.Get(ctx, "middle-earth", "gandalf")
	require.NoError(t, err)
	assert.Equal(t, g.Inventory, got.Inventory)
	assert.Equal(t, "Rivendell", got.Location)

	all, err := store.List(ctx, "middle-earth")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "frodo", all[0].ID)
	assert.Equal(t, "gandalf", all[1].ID)

	require.NoError(t, store.Delete(ctx, "middle-earth", "gandalf"))
	assert.ErrorIs(t, store.Delete(ctx, "middle-earth", "gandalf"), errs.ErrNotFound)

	all, err = store.List(ctx, "middle-earth")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_PutRejectsInvalid(t *testing.T) {
	store := NewStore(storagemem.NewMemoryStorage())
	err := store.Put(context.Background(), &State{Name: "Nobody"})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}
