// Package bot implements lifecycle management and component orchestration
// for the story bot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownFlushTimeout = 10 * time.Second

// Runner is a long-running component that blocks until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Flusher persists pending state on shutdown.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Bot represents the main bot application and manages its components' lifecycle.
type Bot struct {
	logger    *slog.Logger
	transport Runner
	scheduler *Scheduler
	status    Runner
	registry  Flusher
}

// NewBot creates a new instance of the bot with all required dependencies.
// status may be nil when the status server is disabled.
func NewBot(
	logger *slog.Logger,
	transport Runner,
	scheduler *Scheduler,
	status Runner,
	registry Flusher,
) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		transport: transport,
		scheduler: scheduler,
		status:    status,
		registry:  registry,
	}
}

// Run starts the bot and all its components, handling graceful shutdown on context cancellation.
// It returns an error if any component fails during startup or execution.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting chat transport...")
		if err := b.transport.Run(gCtx); err != nil {
			b.logger.Error("Chat transport failed", "error", err)
			return fmt.Errorf("chat transport failed: %w", err)
		}
		b.logger.Info("Chat transport stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Chat transport stopped unexpectedly without context cancellation.")
			return fmt.Errorf("chat transport stopped unexpectedly")
		}
		return nil
	})

	if b.scheduler != nil {
		g.Go(func() error {
			b.logger.Info("Starting scheduler...")
			if _, err := b.scheduler.Start(); err != nil {
				b.logger.Error("Failed to start scheduler", "error", err)
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			<-gCtx.Done()
			b.logger.Info("Shutdown signal received, stopping scheduler...")

			if err := b.scheduler.Stop(); err != nil {
				b.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	if b.status != nil {
		g.Go(func() error {
			return b.status.Run(gCtx)
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	b.flushRegistry()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}

func (b *Bot) flushRegistry() {
	if b.registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	if err := b.registry.Flush(ctx); err != nil {
		b.logger.Error("Failed to persist display names on shutdown", "error", err)
		return
	}
	b.logger.Info("Display names persisted on shutdown")
}
