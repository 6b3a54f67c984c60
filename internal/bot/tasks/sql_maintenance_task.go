package tasks

import (
	"context"
	"fmt"
	"time"
)

const sqlMaintenanceTimeout = 10 * time.Minute

// newSQLMaintenanceTask compacts the display name database. The connection is
// checked first so an unreachable file is reported as such rather than as a
// failed VACUUM.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", SQLMaintenance)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, sqlMaintenanceTimeout)
		defer cancel()

		if err := deps.Store.Ping(ctx); err != nil {
			log.WarnContext(ctx, "Display name database unreachable, skipping compaction", "error", err)
			return fmt.Errorf("display name database unreachable: %w", err)
		}

		startTime := time.Now()
		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			return fmt.Errorf("display name database compaction failed: %w", err)
		}
		log.InfoContext(ctx, "Display name database compacted", "duration", time.Since(startTime))
		return nil
	}
}
