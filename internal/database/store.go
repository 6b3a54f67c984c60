package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetDisplayNames returns every stored display name.
	GetDisplayNames(ctx context.Context) ([]DisplayName, error)

	// ReplaceDisplayNames rewrites the whole display name table in a single
	// transaction. Either every row is replaced or none is.
	ReplaceDisplayNames(ctx context.Context, names map[string]string) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error

	// Close closes the underlying connection pool.
	Close() error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) GetDisplayNames(ctx context.Context) ([]DisplayName, error) {
	var names []DisplayName
	query := `SELECT user_id, display_name, updated_at FROM display_names ORDER BY user_id;`
	if err := s.db.SelectContext(ctx, &names, query); err != nil {
		s.logger.ErrorContext(ctx, "Failed to load display names", "error", err)
		return nil, fmt.Errorf("failed to load display names: %w", err)
	}
	return names, nil
}

func (s *sqlxStore) ReplaceDisplayNames(ctx context.Context, names map[string]string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for display names", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM display_names;`); err != nil {
		return fmt.Errorf("failed to clear display names: %w", err)
	}

	userIDs := make([]string, 0, len(names))
	for id := range names {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	now := time.Now().UTC()
	query := `
        INSERT INTO display_names (user_id, display_name, updated_at)
        VALUES (:user_id, :display_name, :updated_at);
    `
	for _, id := range userIDs {
		row := DisplayName{UserID: id, DisplayName: names[id], UpdatedAt: now}
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			s.logger.ErrorContext(ctx, "Error saving display name", "user_id", id, "error", err)
			return fmt.Errorf("failed to save display name for user %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Display names saved", "count", len(names))
	return nil
}

// RunSQLMaintenance runs ANALYZE and VACUUM on the database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	startTime := time.Now()
	s.logger.InfoContext(ctx, "Starting SQL maintenance")

	if _, err := s.db.ExecContext(ctx, "ANALYZE;"); err != nil {
		s.logger.ErrorContext(ctx, "Failed to run ANALYZE", "error", err)
		return fmt.Errorf("failed to run ANALYZE: %w", err)
	}

	// VACUUM must run outside a transaction in SQLite
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		s.logger.ErrorContext(ctx, "Failed to run VACUUM", "error", err)
		return fmt.Errorf("failed to run VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "SQL maintenance completed", "duration", time.Since(startTime))
	return nil
}

func (s *sqlxStore) Close() error {
	return s.db.Close()
}
