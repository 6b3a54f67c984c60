package story_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/edgard/narratorbot/internal/backend"
	"github.com/edgard/narratorbot/internal/registry"
	"github.com/edgard/narratorbot/internal/story"
)

type fakeNames struct {
	mu        sync.Mutex
	names     map[string]string
	renameErr error
}

func (f *fakeNames) DisplayName(userID, fallback string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name, ok := f.names[userID]; ok {
		return name
	}
	return fallback
}

func (f *fakeNames) Rename(_ context.Context, userID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.names == nil {
		f.names = map[string]string{}
	}
	f.names[userID] = name
	return f.renameErr
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

var testMessages = story.Messages{
	Help:               "Use {marker} for actions, {prefix}setname to rename.",
	NoEvents:           "No events yet.",
	RenameConfirm:      "You are now {name}.",
	InvalidRename:      "Usage: {prefix}setname <name>",
	NameTooLong:        "Names can be at most {max} characters.",
	VoteStub:           "Voting is not available yet: {text}",
	GenerationFailed:   "Could not generate response: {error}",
	PersistenceWarning: "Your name could not be saved.",
}

func newTestEngine(t *testing.T, names story.Names, gen story.Generator, mutate func(*story.Config)) *story.Engine {
	t.Helper()

	cfg := story.Config{
		Classifier: story.ClassifierConfig{
			Mode:            story.ModeFreeText,
			ActionMarker:    ">",
			CommandPrefix:   "!",
			NaturalLanguage: true,
		},
		Setting:          "a quiet harbor town",
		RecapSize:        3,
		MaxNameLength:    16,
		MaxMessageLength: 2000,
		Messages:         testMessages,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := story.NewEngine(cfg, story.Deps{Names: names, Generator: gen})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func TestEngineActionTurn(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{reply: "Sam finds a locked crate."}
	engine := newTestEngine(t, &fakeNames{}, gen, nil)

	replies := engine.Handle(context.Background(), story.Inbound{SenderID: "u1", SenderName: "Sam", Text: "explores the docks"})

	want := "Sam: explores the docks\nSam finds a locked crate."
	if len(replies) != 1 || replies[0] != want {
		t.Fatalf("expected reply %q, got %q", want, replies)
	}

	if len(gen.prompts) != 1 {
		t.Fatalf("expected one backend call, got %d", len(gen.prompts))
	}
	for _, part := range []string{"a quiet harbor town", "Sam", "explores the docks"} {
		if !strings.Contains(gen.prompts[0], part) {
			t.Errorf("prompt %q missing %q", gen.prompts[0], part)
		}
	}

	turns := engine.Events().Last(10)
	if len(turns) != 1 {
		t.Fatalf("expected one turn, got %d", len(turns))
	}
	if turns[0].Player != "Sam" || turns[0].Action != "explores the docks" || turns[0].Outcome != "Sam finds a locked crate." {
		t.Errorf("unexpected turn %+v", turns[0])
	}
}

func TestEngineRenameKeepsHistory(t *testing.T) {
	t.Parallel()

	names := &fakeNames{}
	gen := &fakeGenerator{reply: "The gulls scatter."}
	engine := newTestEngine(t, names, gen, nil)
	ctx := context.Background()

	engine.Handle(ctx, story.Inbound{SenderID: "u1", SenderName: "Sam", Text: "walks to the pier"})

	replies := engine.Handle(ctx, story.Inbound{SenderID: "u1", SenderName: "Sam", Text: "call me Nightshade"})
	if len(replies) != 1 || !strings.Contains(replies[0], "Nightshade") {
		t.Fatalf("expected rename confirmation, got %q", replies)
	}
	if names.names["u1"] != "Nightshade" {
		t.Fatalf("registry not updated: %v", names.names)
	}

	replies = engine.Handle(ctx, story.Inbound{SenderID: "u1", SenderName: "Sam", Text: "whistles"})
	if len(replies) != 1 || !strings.HasPrefix(replies[0], "Nightshade: whistles\n") {
		t.Fatalf("expected new name in reply, got %q", replies)
	}

	turns := engine.Events().Last(10)
	if len(turns) != 2 {
		t.Fatalf("expected two turns, got %d", len(turns))
	}
	if turns[0].Player != "Sam" {
		t.Errorf("earlier turn player changed to %q", turns[0].Player)
	}
	if turns[1].Player != "Nightshade" {
		t.Errorf("later turn player = %q, want Nightshade", turns[1].Player)
	}
}

func TestEngineRenameKeepsInnerSpacing(t *testing.T) {
	t.Parallel()

	names := &fakeNames{}
	engine := newTestEngine(t, names, &fakeGenerator{reply: "ok"}, nil)

	replies := engine.Handle(context.Background(), story.Inbound{SenderID: "u1", SenderName: "Sam", Text: "my name is Night   shade  "})
	if len(replies) != 1 || !strings.Contains(replies[0], "Night   shade") {
		t.Fatalf("expected confirmation with the name as typed, got %q", replies)
	}
	if names.names["u1"] != "Night   shade" {
		t.Errorf("stored name = %q, want %q", names.names["u1"], "Night   shade")
	}
}

func TestEngineRenameFailures(t *testing.T) {
	t.Parallel()

	t.Run("persistence failure keeps name and warns", func(t *testing.T) {
		t.Parallel()

		names := &fakeNames{renameErr: &registry.PersistenceError{UserID: "u1", Err: errors.New("disk full")}}
		engine := newTestEngine(t, names, &fakeGenerator{}, nil)

		replies := engine.Handle(context.Background(), story.Inbound{SenderID: "u1", Text: "!setname Ember"})
		if len(replies) != 2 {
			t.Fatalf("expected confirmation and warning, got %q", replies)
		}
		if replies[0] != "You are now Ember." || replies[1] != testMessages.PersistenceWarning {
			t.Errorf("unexpected replies %q", replies)
		}
	})

	t.Run("name too long", func(t *testing.T) {
		t.Parallel()

		names := &fakeNames{}
		engine := newTestEngine(t, names, &fakeGenerator{}, nil)

		replies := engine.Handle(context.Background(), story.Inbound{SenderID: "u1", Text: "call me " + strings.Repeat("x", 17)})
		if len(replies) != 1 || replies[0] != "Names can be at most 16 characters." {
			t.Errorf("unexpected replies %q", replies)
		}
		if len(names.names) != 0 {
			t.Errorf("registry must not change, got %v", names.names)
		}
	})

	t.Run("invalid rename", func(t *testing.T) {
		t.Parallel()

		engine := newTestEngine(t, &fakeNames{}, &fakeGenerator{}, nil)
		replies := engine.Handle(context.Background(), story.Inbound{SenderID: "u1", Text: "!setname"})
		if len(replies) != 1 || replies[0] != "Usage: !setname <name>" {
			t.Errorf("unexpected replies %q", replies)
		}
	})
}

func TestEngineGenerationFailure(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: &backend.GenerationError{Kind: backend.KindBadStatus, Message: "rate limited", Status: 429}}
	engine := newTestEngine(t, &fakeNames{}, gen, nil)

	replies := engine.Handle(context.Background(), story.Inbound{SenderID: "u1", SenderName: "Sam", Text: "> run"})
	want := "Could not generate response: bad_status: rate limited"
	if len(replies) != 1 || replies[0] != want {
		t.Errorf("expected %q, got %q", want, replies)
	}
	if engine.Events().Len() != 0 {
		t.Error("failed generation must not record a turn")
	}
}

func TestEngineRecap(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	engine := newTestEngine(t, &fakeNames{}, gen, nil)
	ctx := context.Background()

	replies := engine.Handle(ctx, story.Inbound{SenderID: "u1", Text: "what happened?"})
	if len(replies) != 1 || replies[0] != "No events yet." {
		t.Fatalf("expected placeholder, got %q", replies)
	}

	for _, outcome := range []string{"one", "two", "three", "four"} {
		gen.reply = outcome
		engine.Handle(ctx, story.Inbound{SenderID: "u1", SenderName: "Sam", Text: "acts " + outcome})
	}

	replies = engine.Handle(ctx, story.Inbound{SenderID: "u1", Text: "summary"})
	want := "Sam: two\nSam: three\nSam: four"
	if len(replies) != 1 || replies[0] != want {
		t.Errorf("expected %q, got %q", want, replies)
	}

	withActions := newTestEngine(t, &fakeNames{}, &fakeGenerator{reply: "it opens"}, func(c *story.Config) {
		c.RecapIncludeAction = true
	})
	withActions.Handle(ctx, story.Inbound{SenderID: "u2", SenderName: "Ash", Text: "pushes the door"})
	replies = withActions.Handle(ctx, story.Inbound{SenderID: "u2", Text: "!summary"})
	if len(replies) != 1 || replies[0] != "Ash (pushes the door): it opens" {
		t.Errorf("unexpected recap %q", replies)
	}
}

func TestEngineStaticReplies(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	engine := newTestEngine(t, &fakeNames{}, gen, nil)
	ctx := context.Background()

	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "help", input: "!helpme", expected: []string{"Use > for actions, !setname to rename."}},
		{name: "vote", input: "should we rest?", expected: []string{"Voting is not available yet: should we rest?"}},
		{name: "unknown command", input: "!dance", expected: nil},
		{name: "blank", input: "   ", expected: nil},
	}

	for _, tc := range testCases {
		actual := engine.Handle(ctx, story.Inbound{SenderID: "u1", Text: tc.input})
		if strings.Join(actual, "|") != strings.Join(tc.expected, "|") || len(actual) != len(tc.expected) {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.expected, actual)
		}
	}
	if len(gen.prompts) != 0 {
		t.Errorf("static replies must not call the backend, got %d calls", len(gen.prompts))
	}
}

func TestEngineChunksLongReplies(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{reply: strings.Repeat("waves crash. ", 40)}
	engine := newTestEngine(t, &fakeNames{}, gen, func(c *story.Config) {
		c.MaxMessageLength = 100
	})

	replies := engine.Handle(context.Background(), story.Inbound{SenderID: "u1", SenderName: "Sam", Text: "listens"})
	if len(replies) < 2 {
		t.Fatalf("expected several chunks, got %d", len(replies))
	}
	joined := strings.Join(replies, "")
	if !strings.HasPrefix(joined, "Sam: listens\n") {
		t.Errorf("chunks do not start with the action header: %q", replies[0])
	}
	for i, r := range replies {
		if len([]rune(r)) > 100 {
			t.Errorf("chunk %d exceeds limit: %d runes", i, len([]rune(r)))
		}
	}
}

func TestNewEngineValidation(t *testing.T) {
	t.Parallel()

	if _, err := story.NewEngine(story.Config{}, story.Deps{Generator: &fakeGenerator{}}); err == nil {
		t.Error("expected error without names")
	}
	if _, err := story.NewEngine(story.Config{}, story.Deps{Names: &fakeNames{}}); err == nil {
		t.Error("expected error without generator")
	}
	_, err := story.NewEngine(story.Config{PromptTemplate: "{{.Nope}}"}, story.Deps{Names: &fakeNames{}, Generator: &fakeGenerator{}})
	if err == nil {
		t.Error("expected error for invalid prompt template")
	}
}
