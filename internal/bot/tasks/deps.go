// Package tasks implements the scheduled maintenance tasks of the bot.
// It includes task definitions, dependencies, and registration mechanisms.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/narratorbot/internal/database"
)

// NameRegistry is the part of the display-name registry the tasks need.
type NameRegistry interface {
	Dirty() bool
	Flush(ctx context.Context) error
}

// TaskDeps contains all dependencies required by scheduled tasks.
// Store is nil when display names are not kept in SQLite.
type TaskDeps struct {
	Logger   *slog.Logger
	Registry NameRegistry
	Store    database.Store
}
