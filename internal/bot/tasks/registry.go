package tasks

import (
	"context"
)

// ScheduledTaskFunc defines the standard signature for all scheduled tasks.
// The context provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// Task names, matching the keys under scheduler.tasks in the configuration.
const (
	RegistryFlush  = "registry_flush"
	SQLMaintenance = "sql_maintenance"
)

// RegisterAllTasks initializes and returns a map of all registered scheduled tasks.
// sql_maintenance is only registered when a SQLite store is configured.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := make(map[string]ScheduledTaskFunc)

	if deps.Registry != nil {
		tasks[RegistryFlush] = newRegistryFlushTask(deps)
	}
	if deps.Store != nil {
		tasks[SQLMaintenance] = newSQLMaintenanceTask(deps)
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
