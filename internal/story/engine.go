// Package story implements the narrated game loop: it classifies each chat
// message, updates player names, asks the generation backend to continue the
// story and keeps the log of turns used for recaps.
package story

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/edgard/narratorbot/internal/backend"
	"github.com/edgard/narratorbot/internal/registry"
)

// ErrInvalidName is returned for display names that are empty or too long.
var ErrInvalidName = errors.New("invalid display name")

// Names resolves and updates player display names.
type Names interface {
	DisplayName(userID, fallback string) string
	Rename(ctx context.Context, userID, name string) error
}

// Generator produces story text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Inbound is a chat message already filtered for the bot's own messages.
type Inbound struct {
	SenderID   string
	SenderName string
	Text       string
}

// Messages holds the user-facing replies. Placeholders in braces are replaced
// when rendering: {name}, {text}, {error}, {prefix}, {marker}, {max}.
type Messages struct {
	Help               string
	NoEvents           string
	RenameConfirm      string
	InvalidRename      string
	NameTooLong        string
	VoteStub           string
	GenerationFailed   string
	PersistenceWarning string
}

// Config configures an Engine.
type Config struct {
	Classifier         ClassifierConfig
	Setting            string
	PromptTemplate     string
	RecapSize          int
	RecapIncludeAction bool
	MaxNameLength      int
	MaxMessageLength   int
	Messages           Messages
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Logger    *slog.Logger
	Names     Names
	Generator Generator
	Events    *EventLog
}

// Engine dispatches classified messages. It is safe for concurrent use.
type Engine struct {
	cfg        Config
	classifier *Classifier
	prompts    *PromptBuilder
	names      Names
	generator  Generator
	events     *EventLog
	logger     *slog.Logger
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Names == nil {
		return nil, fmt.Errorf("engine requires a name registry")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("engine requires a generator")
	}
	if deps.Events == nil {
		deps.Events = NewEventLog()
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.RecapSize <= 0 {
		cfg.RecapSize = 3
	}

	prompts, err := NewPromptBuilder(cfg.Setting, cfg.PromptTemplate)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:        cfg,
		classifier: NewClassifier(cfg.Classifier),
		prompts:    prompts,
		names:      deps.Names,
		generator:  deps.Generator,
		events:     deps.Events,
		logger:     deps.Logger.With("component", "story_engine"),
	}, nil
}

// Events returns the engine's event log.
func (e *Engine) Events() *EventLog {
	return e.events
}

// Handle processes one message and returns the replies to send, in order.
// An empty result means the message is not game input.
func (e *Engine) Handle(ctx context.Context, in Inbound) []string {
	intent := e.classifier.Classify(in.Text)
	log := e.logger.With("user_id", in.SenderID, "intent", intent.Kind.String())

	var reply []string
	switch intent.Kind {
	case IntentNone:
		log.DebugContext(ctx, "Ignoring message that is not game input")
		return nil
	case IntentRename:
		reply = e.rename(ctx, log, in, intent.Text)
	case IntentInvalidRename:
		reply = []string{e.render(e.cfg.Messages.InvalidRename, nil)}
	case IntentRecap:
		reply = []string{e.recap()}
	case IntentVote:
		reply = []string{e.render(e.cfg.Messages.VoteStub, map[string]string{"text": intent.Text})}
	case IntentHelp:
		reply = []string{e.render(e.cfg.Messages.Help, nil)}
	case IntentAction:
		reply = e.action(ctx, log, in, intent.Text)
	}

	return e.chunk(reply)
}

func (e *Engine) rename(ctx context.Context, log *slog.Logger, in Inbound, raw string) []string {
	name, err := e.validateName(raw)
	if err != nil {
		log.InfoContext(ctx, "Rejected display name", "error", err)
		return []string{e.render(e.cfg.Messages.NameTooLong, nil)}
	}

	out := []string{e.render(e.cfg.Messages.RenameConfirm, map[string]string{"name": name})}

	if err := e.names.Rename(ctx, in.SenderID, name); err != nil {
		var persistErr *registry.PersistenceError
		if !errors.As(err, &persistErr) {
			log.ErrorContext(ctx, "Failed to change display name", "error", err)
			return []string{e.render(e.cfg.Messages.PersistenceWarning, nil)}
		}
		log.WarnContext(ctx, "Display name changed but not persisted", "error", err)
		out = append(out, e.render(e.cfg.Messages.PersistenceWarning, nil))
	}
	return out
}

func (e *Engine) validateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if e.cfg.MaxNameLength > 0 && utf8.RuneCountInString(name) > e.cfg.MaxNameLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, e.cfg.MaxNameLength)
	}
	return name, nil
}

func (e *Engine) recap() string {
	turns := e.events.Last(e.cfg.RecapSize)
	if len(turns) == 0 {
		return e.render(e.cfg.Messages.NoEvents, nil)
	}

	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		if e.cfg.RecapIncludeAction {
			lines = append(lines, fmt.Sprintf("%s (%s): %s", t.Player, t.Action, t.Outcome))
		} else {
			lines = append(lines, fmt.Sprintf("%s: %s", t.Player, t.Outcome))
		}
	}
	return strings.Join(lines, "\n")
}

func (e *Engine) action(ctx context.Context, log *slog.Logger, in Inbound, text string) []string {
	name := e.names.DisplayName(in.SenderID, in.SenderName)

	prompt, err := e.prompts.Build(name, text)
	if err != nil {
		log.ErrorContext(ctx, "Failed to build prompt", "error", err)
		return []string{e.render(e.cfg.Messages.GenerationFailed, map[string]string{"error": "prompt: could not build prompt"})}
	}

	outcome, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		summary := "unknown: generation failed"
		var genErr *backend.GenerationError
		if errors.As(err, &genErr) {
			summary = genErr.Summary()
		}
		log.ErrorContext(ctx, "Story generation failed", "player", name, "error", err)
		return []string{e.render(e.cfg.Messages.GenerationFailed, map[string]string{"error": summary})}
	}

	turn := e.events.Append(Turn{Player: name, Action: text, Outcome: outcome})
	log.InfoContext(ctx, "Story turn recorded", "turn_id", turn.ID, "player", name, "turns", e.events.Len())

	return []string{fmt.Sprintf("%s: %s\n%s", name, text, outcome)}
}

func (e *Engine) render(msg string, vars map[string]string) string {
	pairs := []string{
		"{prefix}", e.cfg.Classifier.CommandPrefix,
		"{marker}", e.cfg.Classifier.ActionMarker,
		"{max}", strconv.Itoa(e.cfg.MaxNameLength),
	}
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}

func (e *Engine) chunk(replies []string) []string {
	var out []string
	for _, r := range replies {
		out = append(out, Split(r, e.cfg.MaxMessageLength)...)
	}
	return out
}
