package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/personaforge/personaforge/pkg/errs"
)

// StorageTestSuite defines a test suite that can be run against any KV implementation.
type StorageTestSuite struct {
	NewStorage func(t *testing.T) KV
}

// RunAllTests runs all storage tests against the provided storage implementation.
func (s *StorageTestSuite) RunAllTests(t *testing.T) {
	t.Run("PutGetDelete", s.TestPutGetDelete)
	t.Run("Overwrite", s.TestOverwrite)
	t.Run("ListByPrefix", s.TestListByPrefix)
	t.Run("JSONHelpers", s.TestJSONHelpers)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
	t.Run("KeyNotFound", s.TestKeyNotFound)
}

// TestPutGetDelete tests the basic round trip.
func (s *StorageTestSuite) TestPutGetDelete(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	if err := store.Put(ctx, "persona:middle-earth:gandalf", []byte(`{"name":"Gandalf"}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "persona:middle-earth:gandalf")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"name":"Gandalf"}` {
		t.Errorf("unexpected value %q", got)
	}

	if err := store.Delete(ctx, "persona:middle-earth:gandalf"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "persona:middle-earth:gandalf"); err == nil {
		t.Error("expected error when getting deleted key")
	}

	// Deleting again is a no-op.
	if err := store.Delete(ctx, "persona:middle-earth:gandalf"); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

// TestOverwrite tests that Put replaces the previous value and that
// returned slices are not aliased.
func (s *StorageTestSuite) TestOverwrite(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	value := []byte("v1")
	if err := store.Put(ctx, "k", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	value[0] = 'x'
	if err := store.Put(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Put (overwrite) failed: %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("expected v2, got %q", got)
	}
	got[0] = 'z'
	again, _ := store.Get(ctx, "k")
	if string(again) != "v2" {
		t.Errorf("stored value was mutated through returned slice: %q", again)
	}
}

// TestListByPrefix tests prefix listing order and filtering.
func (s *StorageTestSuite) TestListByPrefix(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()
	for _, k := range []string{"memory:b", "memory:a", "events:a", "memory:c"} {
		if err := store.Put(ctx, k, []byte("{}")); err != nil {
			t.Fatalf("Put %s failed: %v", k, err)
		}
	}

	keys, err := store.List(ctx, "memory:")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"memory:a", "memory:b", "memory:c"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}

	empty, err := store.List(ctx, "nothing:")
	if err != nil {
		t.Fatalf("List (empty) failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no keys, got %v", empty)
	}
}

// TestJSONHelpers tests GetJSON/PutJSON against the backend.
func (s *StorageTestSuite) TestJSONHelpers(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	type doc struct {
		Name      string   `json:"name"`
		Inventory []string `json:"inventory"`
	}
	in := doc{Name: "Frodo", Inventory: []string{"ring", "sting"}}
	if err := PutJSON(ctx, store, "persona:shire:frodo", in); err != nil {
		t.Fatalf("PutJSON failed: %v", err)
	}

	var out doc
	if err := GetJSON(ctx, store, "persona:shire:frodo", &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Name != in.Name || len(out.Inventory) != 2 || out.Inventory[1] != "sting" {
		t.Errorf("unexpected document %+v", out)
	}

	if err := store.Put(ctx, "broken", []byte("{not json")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	var serr *SerializationError
	if err := GetJSON(ctx, store, "broken", &out); !errors.As(err, &serr) {
		t.Errorf("expected SerializationError, got %v", err)
	}
}

// TestConcurrentAccess tests concurrent read/write operations.
func (s *StorageTestSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	var wg sync.WaitGroup
	errCh := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if err := store.Put(ctx, fmt.Sprintf("c:%02d", i), []byte("x")); err != nil {
				errCh <- err
			}
		}(i)
		go func() {
			defer wg.Done()
			if _, err := store.List(ctx, "c:"); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent operation failed: %v", err)
	}

	keys, err := store.List(ctx, "c:")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 20 {
		t.Errorf("expected 20 keys, got %d", len(keys))
	}
}

// TestKeyNotFound tests the not-found error type.
func (s *StorageTestSuite) TestKeyNotFound(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	_, err := store.Get(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for missing key")
	}

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected NotFoundError, got %T", err)
	}
	if !errors.Is(err, errs.ErrNotFound) {
		t.Error("expected errors.Is(err, errs.ErrNotFound)")
	}
}
