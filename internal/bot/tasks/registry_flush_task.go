package tasks

import (
	"context"
	"fmt"
	"time"
)

const registryFlushTimeout = 30 * time.Second

// newRegistryFlushTask retries persisting display names that failed to save
// when they were changed.
func newRegistryFlushTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", RegistryFlush)

	return func(ctx context.Context) error {
		if !deps.Registry.Dirty() {
			log.DebugContext(ctx, "Display names already persisted, nothing to flush")
			return nil
		}

		log.InfoContext(ctx, "Flushing unsaved display names...")
		startTime := time.Now()

		flushCtx, cancel := context.WithTimeout(ctx, registryFlushTimeout)
		defer cancel()

		if err := deps.Registry.Flush(flushCtx); err != nil {
			log.ErrorContext(ctx, "Registry flush failed", "error", err, "duration", time.Since(startTime))
			return fmt.Errorf("registry flush failed: %w", err)
		}

		log.InfoContext(ctx, "Display names flushed", "duration", time.Since(startTime))
		return nil
	}
}
