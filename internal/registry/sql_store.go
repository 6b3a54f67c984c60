package registry

import (
	"context"
	"fmt"

	"github.com/edgard/narratorbot/internal/database"
)

// SQLStore keeps the name document in the display_names table.
type SQLStore struct {
	db database.Store
}

// NewSQLStore wraps a database store.
func NewSQLStore(db database.Store) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database store cannot be nil")
	}
	return &SQLStore{db: db}, nil
}

// Load reads every stored name.
func (s *SQLStore) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.GetDisplayNames(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(rows))
	for _, row := range rows {
		names[row.UserID] = row.DisplayName
	}
	return names, nil
}

// Save replaces the stored document in one transaction.
func (s *SQLStore) Save(ctx context.Context, names map[string]string) error {
	return s.db.ReplaceDisplayNames(ctx, names)
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
