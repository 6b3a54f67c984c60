// Package discord connects the story engine to a Discord gateway session.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/edgard/narratorbot/internal/logger"
	"github.com/edgard/narratorbot/internal/story"
)

// Handler turns an inbound message into reply chunks.
type Handler interface {
	Handle(ctx context.Context, in story.Inbound) []string
}

// messenger is the subset of *discordgo.Session used to reply.
type messenger interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// Bot relays Discord channel messages to a Handler.
type Bot struct {
	session       *discordgo.Session
	handler       Handler
	handleTimeout time.Duration
	logger        *slog.Logger
}

// NewBot creates a Discord session for token. The session is not opened
// until Run.
func NewBot(token string, handler Handler, handleTimeout time.Duration, logger *slog.Logger) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("discord bot token cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("discord handler cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	return &Bot{
		session:       session,
		handler:       handler,
		handleTimeout: handleTimeout,
		logger:        logger.With("component", "discord_bot"),
	}, nil
}

// Run opens the gateway connection and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.logger.Info("Discord session ready", "user_id", r.User.ID, "username", r.User.Username, "guilds", len(r.Guilds))
	})
	b.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		selfID := ""
		if s.State != nil && s.State.User != nil {
			selfID = s.State.User.ID
		}
		b.handleMessage(ctx, s, selfID, m)
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	b.logger.Info("Discord gateway connected")

	<-ctx.Done()

	b.logger.Info("Closing Discord session...")
	if err := b.session.Close(); err != nil {
		b.logger.Error("Error closing Discord session", "error", err)
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, out messenger, selfID string, m *discordgo.MessageCreate) {
	in, ok := toInbound(m, selfID)
	if !ok {
		return
	}

	startTime := time.Now()
	log := b.logger.With(
		"request_id", uuid.NewString(),
		"message_id", m.ID,
		"channel_id", m.ChannelID,
		"user_id", in.SenderID,
		"text_preview", logger.Preview(in.Text, 50),
	)

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "Recovered from panic in message handler", "panic", r)
		}
	}()

	log.InfoContext(ctx, "Processing message")

	hctx := ctx
	if b.handleTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, b.handleTimeout)
		defer cancel()
	}

	stopTyping := keepTyping(hctx, out, m.ChannelID, log)
	defer stopTyping()
	chunks := b.handler.Handle(hctx, in)
	stopTyping()

	for i, chunk := range chunks {
		if _, err := out.ChannelMessageSend(m.ChannelID, chunk, discordgo.WithContext(ctx)); err != nil {
			log.ErrorContext(ctx, "Failed to send reply chunk", "chunk", i, "chunks", len(chunks), "error", err)
			break
		}
	}

	log.InfoContext(ctx, "Finished processing message", "chunks", len(chunks), "duration", time.Since(startTime))
}

// toInbound converts a gateway message, dropping the bot's own messages and
// messages without an author.
func toInbound(m *discordgo.MessageCreate, selfID string) (story.Inbound, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return story.Inbound{}, false
	}
	if m.Author.ID == selfID {
		return story.Inbound{}, false
	}
	return story.Inbound{
		SenderID:   m.Author.ID,
		SenderName: m.Author.Username,
		Text:       m.Content,
	}, true
}

// typingInterval is how often the typing indicator is refreshed; Discord
// clears it after about ten seconds.
const typingInterval = 8 * time.Second

// keepTyping shows the typing indicator until the returned func is called.
func keepTyping(ctx context.Context, out messenger, channelID string, log *slog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			if err := out.ChannelTyping(channelID, discordgo.WithContext(ctx)); err != nil && ctx.Err() == nil {
				log.DebugContext(ctx, "Failed to send typing indicator", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
