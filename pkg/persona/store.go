package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/personaforge/personaforge/pkg/errs"
	"github.com/personaforge/personaforge/pkg/storage"
)

const keyPrefix = "persona:"

var validate = validator.New()

func storageKey(collection, id string) string {
	return keyPrefix + collection + ":" + id
}

// Store persists persona state in a storage.KV.
type Store struct {
	kv  storage.KV
	now func() time.Time
}

// NewStore creates a persona store over kv.
func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Validate checks the fields required to store s.
func Validate(s *State) error {
	if err := validate.Struct(s); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make([]string, 0, len(ve))
			for _, fe := range ve {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: persona: %s", errs.ErrInvalidInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: persona: %v", errs.ErrInvalidInput, err)
	}
	return nil
}

// Get loads the persona id of collection.
func (s *Store) Get(ctx context.Context, collection, id string) (*State, error) {
	var st State
	if err := storage.GetJSON(ctx, s.kv, storageKey(collection, id), &st); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("persona %q in %q: %w", id, collection, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("persona: load %s/%s: %w", collection, id, err)
	}
	return &st, nil
}

// Put normalizes, validates and saves st.
func (s *Store) Put(ctx context.Context, st *State) error {
	st.Normalize(s.now())
	if err := Validate(st); err != nil {
		return err
	}
	if err := storage.PutJSON(ctx, s.kv, storageKey(st.Collection, st.ID), st); err != nil {
		return fmt.Errorf("persona: save %s/%s: %w", st.Collection, st.ID, err)
	}
	return nil
}

// List returns every persona of collection ordered by id.
func (s *Store) List(ctx context.Context, collection string) ([]*State, error) {
	keys, err := s.kv.List(ctx, keyPrefix+collection+":")
	if err != nil {
		return nil, fmt.Errorf("persona: list %s: %w", collection, err)
	}
	out := make([]*State, 0, len(keys))
	for _, k := range keys {
		var st State
		if err := storage.GetJSON(ctx, s.kv, k, &st); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				continue // deleted since List
			}
			return nil, fmt.Errorf("persona: load %s: %w", k, err)
		}
		out = append(out, &st)
	}
	return out, nil
}

// Delete removes the persona id of collection.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.Get(ctx, collection, id); err != nil {
		return err
	}
	return s.kv.Delete(ctx, storageKey(collection, id))
}
