// Package main contains the entrypoint for the story bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgard/narratorbot/internal/backend"
	"github.com/edgard/narratorbot/internal/bot"
	"github.com/edgard/narratorbot/internal/bot/tasks"
	"github.com/edgard/narratorbot/internal/config"
	"github.com/edgard/narratorbot/internal/database"
	"github.com/edgard/narratorbot/internal/discord"
	"github.com/edgard/narratorbot/internal/logger"
	"github.com/edgard/narratorbot/internal/registry"
	"github.com/edgard/narratorbot/internal/status"
	"github.com/edgard/narratorbot/internal/story"
	"github.com/edgard/narratorbot/internal/telegram"
)

const registryCloseTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires config, logger, registry, backend, story engine, transport and
// scheduler, blocks until shutdown and returns the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON())
	log.Info("Logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	nameStore, sqlStore, err := openNameStore(cfg.Registry, log)
	if err != nil {
		log.Error("Failed to open display name store", "driver", cfg.Registry.Driver, "path", cfg.Registry.Path, "error", err)
		return 1
	}

	names, err := registry.New(ctx, nameStore, log)
	if err != nil {
		log.Error("Failed to load display names", "error", err)
		if closeErr := nameStore.Close(); closeErr != nil {
			log.Error("Failed to close display name store", "error", closeErr)
		}
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), registryCloseTimeout)
		defer cancel()
		if err := names.Close(closeCtx); err != nil {
			log.Error("Failed to close display name registry", "error", err)
		}
	}()

	generator, err := backend.NewClient(ctx, cfg.BackendClientConfig(), log)
	if err != nil {
		log.Error("Failed to initialize generation backend", "provider", cfg.Backend.Provider, "error", err)
		return 1
	}

	engine, err := story.NewEngine(cfg.EngineConfig(), story.Deps{
		Logger:    log,
		Names:     names,
		Generator: generator,
	})
	if err != nil {
		log.Error("Failed to initialize story engine", "error", err)
		return 1
	}

	transport, err := newTransport(cfg, engine, log)
	if err != nil {
		log.Error("Failed to create chat transport", "platform", cfg.Chat.Platform, "error", err)
		return 1
	}

	tDeps := tasks.TaskDeps{
		Logger:   log,
		Registry: names,
		Store:    sqlStore,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	var statusServer bot.Runner
	if cfg.HTTP.Addr != "" {
		statusServer = status.NewServer(cfg.HTTP.Addr, engine.Events(), log)
	}

	app := bot.NewBot(log, transport, sched, statusServer, names)

	log.Info("Starting bot...", "platform", cfg.Chat.Platform, "provider", cfg.Backend.Provider)
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}

// openNameStore returns the display name store selected by cfg. The
// database store is returned as well when the sqlite driver is used so the
// maintenance task can reach it.
func openNameStore(cfg config.RegistryConfig, log *slog.Logger) (registry.Store, database.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := database.NewDB(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		store := database.NewStore(db, log)
		nameStore, err := registry.NewSQLStore(store)
		if err != nil {
			database.CloseDB(db)
			return nil, nil, err
		}
		return nameStore, store, nil
	case "json":
		nameStore, err := registry.NewJSONStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return nameStore, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown registry driver %q", cfg.Driver)
	}
}

func newTransport(cfg *config.Config, engine *story.Engine, log *slog.Logger) (bot.Runner, error) {
	switch cfg.Chat.Platform {
	case config.PlatformDiscord:
		return discord.NewBot(cfg.Chat.DiscordToken, engine, cfg.Chat.HandleTimeout, log)
	case config.PlatformTelegram:
		return telegram.NewBot(cfg.Chat.TelegramToken, engine, telegram.Options{
			CommandPrefix: cfg.Game.CommandPrefix,
			HandleTimeout: cfg.Chat.HandleTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("unknown chat platform %q", cfg.Chat.Platform)
	}
}
