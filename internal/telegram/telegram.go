package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/narratorbot/internal/story"
)

// Handler turns an inbound message into reply chunks.
type Handler interface {
	Handle(ctx context.Context, in story.Inbound) []string
}

// sender is the subset of *bot.Bot used to reply.
type sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

// Options configures a Bot.
type Options struct {
	// CommandPrefix is the game's command prefix. Telegram "/command"
	// messages are rewritten to use it.
	CommandPrefix string
	HandleTimeout time.Duration
}

// Bot relays Telegram messages to a Handler.
type Bot struct {
	api     *bot.Bot
	handler Handler
	opts    Options
	selfID  int64
	logger  *slog.Logger
}

// NewBot creates the Telegram client with the update logging middleware and
// a default handler that forwards every message to handler.
func NewBot(token string, handler Handler, opts Options, logger *slog.Logger) (*Bot, error) {
	if handler == nil {
		return nil, fmt.Errorf("telegram handler cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &Bot{
		handler: handler,
		opts:    opts,
		logger:  logger.With("component", "telegram_transport"),
	}

	api, err := NewTelegramBot(token, logger,
		bot.WithMiddlewares(Middleware(logger)),
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {
			t.handleUpdate(ctx, b, update)
		}),
	)
	if err != nil {
		return nil, err
	}
	t.api = api
	return t, nil
}

// Run registers the command menu and polls for updates until ctx is cancelled.
func (t *Bot) Run(ctx context.Context) error {
	me, err := t.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	t.selfID = me.ID
	t.logger.Info("Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)

	if err := RegisterCommands(ctx, t.api, t.logger); err != nil {
		t.logger.Warn("Continuing without command menu", "error", err)
	}

	t.logger.Info("Starting Telegram bot listener...")
	t.api.Start(ctx)
	t.logger.Info("Telegram bot listener stopped.")

	if ctx.Err() == nil {
		return fmt.Errorf("telegram listener stopped unexpectedly")
	}
	return nil
}

func (t *Bot) handleUpdate(ctx context.Context, out sender, update *models.Update) {
	in, chatID, ok := toInbound(update, t.selfID, t.opts.CommandPrefix)
	if !ok {
		t.logger.DebugContext(ctx, "Ignoring update without usable message", "update_id", update.ID)
		return
	}
	log := t.logger.With("request_id", RequestID(ctx), "chat_id", chatID, "user_id", in.SenderID)

	hctx := ctx
	if t.opts.HandleTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, t.opts.HandleTimeout)
		defer cancel()
	}

	if _, err := out.SendChatAction(hctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping}); err != nil {
		log.DebugContext(ctx, "Failed to send typing action", "error", err)
	}

	chunks := t.handler.Handle(hctx, in)
	for i, chunk := range chunks {
		if _, err := out.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: chunk}); err != nil {
			log.ErrorContext(ctx, "Failed to send reply chunk", "chunk", i, "chunks", len(chunks), "error", err)
			return
		}
	}
	log.DebugContext(ctx, "Replies sent", "chunks", len(chunks))
}

// toInbound converts an update into an Inbound and the chat to reply to.
func toInbound(update *models.Update, selfID int64, prefix string) (story.Inbound, int64, bool) {
	if update == nil || update.Message == nil || update.Message.From == nil {
		return story.Inbound{}, 0, false
	}
	msg := update.Message
	if selfID != 0 && msg.From.ID == selfID {
		return story.Inbound{}, 0, false
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if prefix != "" && prefix != "/" && strings.HasPrefix(text, "/") {
		text = prefix + text[1:]
	}

	name := msg.From.Username
	if name == "" {
		name = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}

	return story.Inbound{
		SenderID:   strconv.FormatInt(msg.From.ID, 10),
		SenderName: name,
		Text:       text,
	}, msg.Chat.ID, true
}
