// Package telegram connects the story engine to the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewTelegramBot creates a new Telegram bot instance using the go-telegram/bot library.
func NewTelegramBot(token string, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("Telegram bot instance created successfully", "token_prefix", tokenPrefix(token))
	return b, nil
}

// commands are advertised in the Telegram client's command menu.
var commands = []models.BotCommand{
	{Command: "setname", Description: "Choose the name the narrator calls you"},
	{Command: "summary", Description: "Recap the latest story events"},
	{Command: "help", Description: "Show how to play"},
}

// RegisterCommands publishes the command list with SetMyCommands.
func RegisterCommands(ctx context.Context, b *bot.Bot, logger *slog.Logger) error {
	if b == nil {
		return fmt.Errorf("bot instance cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "command_registry")

	if _, err := b.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: commands}); err != nil {
		log.Error("Failed to register bot commands", "error", err)
		return fmt.Errorf("failed to set bot commands: %w", err)
	}

	log.Info("Registered Telegram commands successfully", "count", len(commands))
	return nil
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return "..."
	}
	return token[:8] + "..."
}
