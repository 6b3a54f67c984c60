// Package registry keeps the per-user display names chosen by players and
// persists them through a pluggable Store.
package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
)

// Store persists the whole name document. Save must be atomic: either the
// full document is stored or the previous one remains.
type Store interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, names map[string]string) error
	Close() error
}

// PersistenceError reports that a name change is held in memory but could
// not be written to the store.
type PersistenceError struct {
	UserID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist display name for user %s: %v", e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Registry maps user identifiers to display names. Reads and writes are safe
// for concurrent use; concurrent renames of the same user resolve last write
// wins.
type Registry struct {
	mu      sync.RWMutex
	names   map[string]string
	version uint64
	saved   uint64

	// saveMu serializes flushes so two writers never interleave in the store.
	saveMu sync.Mutex
	store  Store
	logger *slog.Logger
}

// New loads the current document from store and returns a Registry backed by it.
func New(ctx context.Context, store Store, logger *slog.Logger) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("registry store cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log := logger.With("component", "name_registry")

	names, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load display names: %w", err)
	}
	if names == nil {
		names = make(map[string]string)
	}
	log.Info("Display names loaded", "count", len(names))

	return &Registry{
		names:  names,
		store:  store,
		logger: log,
	}, nil
}

// Lookup returns the custom display name for userID, if any.
func (r *Registry) Lookup(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[userID]
	return name, ok
}

// DisplayName returns the custom name for userID or fallback when the user
// never chose one.
func (r *Registry) DisplayName(userID, fallback string) string {
	if name, ok := r.Lookup(userID); ok && name != "" {
		return name
	}
	return fallback
}

// Rename sets the display name for userID and persists the document. When
// persisting fails the new name stays in effect, the registry is marked dirty
// and a *PersistenceError is returned.
func (r *Registry) Rename(ctx context.Context, userID, name string) error {
	r.mu.Lock()
	r.names[userID] = name
	r.version++
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Display name changed", "user_id", userID, "display_name", name)

	if err := r.Flush(ctx); err != nil {
		return &PersistenceError{UserID: userID, Err: err}
	}
	return nil
}

// Flush writes the current document to the store if it has unsaved changes.
func (r *Registry) Flush(ctx context.Context) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.RLock()
	version := r.version
	if version == r.saved {
		r.mu.RUnlock()
		return nil
	}
	snapshot := maps.Clone(r.names)
	r.mu.RUnlock()

	if err := r.store.Save(ctx, snapshot); err != nil {
		r.logger.ErrorContext(ctx, "Failed to persist display names, keeping changes in memory",
			"error", err, "count", len(snapshot))
		return err
	}

	r.mu.Lock()
	r.saved = version
	r.mu.Unlock()

	r.logger.DebugContext(ctx, "Display names persisted", "count", len(snapshot))
	return nil
}

// Dirty reports whether there are changes not yet written to the store.
func (r *Registry) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version != r.saved
}

// Snapshot returns a copy of all display names.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.names)
}

// Close flushes pending changes and closes the store.
func (r *Registry) Close(ctx context.Context) error {
	flushErr := r.Flush(ctx)
	if err := r.store.Close(); err != nil {
		return fmt.Errorf("failed to close registry store: %w", err)
	}
	return flushErr
}
