package registry_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/edgard/narratorbot/internal/database"
	"github.com/edgard/narratorbot/internal/registry"
)

type failingStore struct {
	mu    sync.Mutex
	fail  bool
	saved map[string]string
}

func (s *failingStore) Load(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (s *failingStore) Save(_ context.Context, names map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	s.saved = names
	return nil
}

func (s *failingStore) Close() error { return nil }

func TestRegistryJSONReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "player_names.json")

	store, err := registry.NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	reg, err := registry.New(ctx, store, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := reg.DisplayName("u1", "Sam"); got != "Sam" {
		t.Errorf("expected fallback name, got %q", got)
	}
	if err := reg.Rename(ctx, "u1", "Nightshade"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if reg.Dirty() {
		t.Error("registry should be clean after a successful rename")
	}
	if err := reg.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Simulate a restart.
	store2, _ := registry.NewJSONStore(path)
	reg2, err := registry.New(ctx, store2, nil)
	if err != nil {
		t.Fatalf("New() after restart error = %v", err)
	}
	if got := reg2.DisplayName("u1", "Sam"); got != "Nightshade" {
		t.Errorf("expected persisted name, got %q", got)
	}
}

func TestRegistryPersistenceFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &failingStore{fail: true}
	reg, err := registry.New(ctx, store, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = reg.Rename(ctx, "u1", "Ember")
	var persistErr *registry.PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("expected *PersistenceError, got %v", err)
	}
	if persistErr.UserID != "u1" {
		t.Errorf("unexpected user in error: %q", persistErr.UserID)
	}
	if got := reg.DisplayName("u1", "x"); got != "Ember" {
		t.Errorf("name must stay in memory, got %q", got)
	}
	if !reg.Dirty() {
		t.Error("registry must be dirty after a failed save")
	}

	store.mu.Lock()
	store.fail = false
	store.mu.Unlock()

	if err := reg.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if reg.Dirty() {
		t.Error("registry must be clean after a successful flush")
	}
	if store.saved["u1"] != "Ember" {
		t.Errorf("flushed document missing name: %v", store.saved)
	}
}

func TestRegistryConcurrentRenames(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "names.json")
	store, _ := registry.NewJSONStore(path)
	reg, err := registry.New(ctx, store, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var wg sync.WaitGroup
	for _, name := range []string{"A", "B", "C", "D", "E", "F"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.Rename(ctx, "u1", name)
			_ = reg.Rename(ctx, "u-"+name, name)
		}()
	}
	wg.Wait()

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("stored document is not valid: %v", err)
	}
	if loaded["u1"] != reg.DisplayName("u1", "") {
		t.Errorf("stored name %q differs from memory %q", loaded["u1"], reg.DisplayName("u1", ""))
	}
	if len(loaded) != 7 {
		t.Errorf("expected 7 users stored, got %d", len(loaded))
	}
}

func TestJSONStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("missing file is empty", func(t *testing.T) {
		t.Parallel()

		store, _ := registry.NewJSONStore(filepath.Join(t.TempDir(), "none.json"))
		names, err := store.Load(ctx)
		if err != nil || len(names) != 0 {
			t.Errorf("expected empty map, got %v, %v", names, err)
		}
	})

	t.Run("empty file is empty", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "empty.json")
		if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
			t.Fatal(err)
		}
		store, _ := registry.NewJSONStore(path)
		names, err := store.Load(ctx)
		if err != nil || len(names) != 0 {
			t.Errorf("expected empty map, got %v, %v", names, err)
		}
	})

	t.Run("corrupt file fails", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		store, _ := registry.NewJSONStore(path)
		if _, err := store.Load(ctx); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("save leaves no temp files", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		store, _ := registry.NewJSONStore(filepath.Join(dir, "names.json"))
		if err := store.Save(ctx, map[string]string{"1": "One"}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 1 || entries[0].Name() != "names.json" {
			t.Errorf("unexpected directory contents: %v", entries)
		}
	})

	t.Run("empty path rejected", func(t *testing.T) {
		t.Parallel()

		if _, err := registry.NewJSONStore(""); err == nil {
			t.Error("expected error for empty path")
		}
	})
}

func TestSQLStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "names.db")

	db, err := database.NewDB(path)
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	store, err := registry.NewSQLStore(database.NewStore(db, nil))
	if err != nil {
		t.Fatalf("NewSQLStore() error = %v", err)
	}

	reg, err := registry.New(ctx, store, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := reg.Rename(ctx, "42", "Vex"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if err := reg.Rename(ctx, "42", "Vex the Bold"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if err := reg.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db2, err := database.NewDB(path)
	if err != nil {
		t.Fatalf("reopen NewDB() error = %v", err)
	}
	store2, _ := registry.NewSQLStore(database.NewStore(db2, nil))
	t.Cleanup(func() { _ = store2.Close() })

	names, err := store2.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(names) != 1 || names["42"] != "Vex the Bold" {
		t.Errorf("unexpected names after reopen: %v", names)
	}
}
