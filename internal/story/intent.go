package story

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// IntentKind tags what a chat message asks the engine to do.
type IntentKind int

// Intent kinds produced by the Classifier.
const (
	IntentNone IntentKind = iota
	IntentRename
	IntentInvalidRename
	IntentRecap
	IntentVote
	IntentHelp
	IntentAction
)

func (k IntentKind) String() string {
	switch k {
	case IntentRename:
		return "rename"
	case IntentInvalidRename:
		return "invalid_rename"
	case IntentRecap:
		return "recap"
	case IntentVote:
		return "vote"
	case IntentHelp:
		return "help"
	case IntentAction:
		return "action"
	default:
		return "none"
	}
}

// Intent is the classified form of a message. Text holds the new name for
// IntentRename, the original text for IntentVote and the action for IntentAction.
type Intent struct {
	Kind IntentKind
	Text string
}

// Mode selects how plain text is treated.
type Mode string

const (
	// ModeFreeText treats every non-command message as a story action.
	ModeFreeText Mode = "freetext"
	// ModeMarker only treats messages starting with the action marker as actions.
	ModeMarker Mode = "marker"
)

// ClassifierConfig configures the Classifier.
type ClassifierConfig struct {
	Mode            Mode
	ActionMarker    string
	CommandPrefix   string
	NaturalLanguage bool
}

var renamePhrases = []string{"call me", "my name is", "i go by"}

var (
	recapPhrases = []string{"what happened"}
	votePhrases  = []string{"should we", "let's vote", "let’s vote"}
)

// Classifier maps raw message text to an Intent. It holds no mutable state and
// is safe for concurrent use.
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier returns a Classifier for the given configuration. An empty
// Mode defaults to ModeFreeText.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.Mode == "" {
		cfg.Mode = ModeFreeText
	}
	return &Classifier{cfg: cfg}
}

// Classify returns the Intent for raw. Every input maps to exactly one Intent;
// messages that are not game input yield IntentNone.
func (c *Classifier) Classify(raw string) Intent {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Intent{Kind: IntentNone}
	}

	if c.cfg.CommandPrefix != "" && strings.HasPrefix(text, c.cfg.CommandPrefix) {
		return c.classifyCommand(text[len(c.cfg.CommandPrefix):])
	}

	marked := c.cfg.ActionMarker != "" && strings.HasPrefix(text, c.cfg.ActionMarker)
	body := text
	if marked {
		body = strings.TrimSpace(text[len(c.cfg.ActionMarker):])
	}

	if c.cfg.NaturalLanguage {
		if intent, ok := classifyNatural(body, text); ok {
			return intent
		}
	}

	if c.cfg.Mode == ModeMarker && !marked {
		return Intent{Kind: IntentNone}
	}
	if body == "" {
		return Intent{Kind: IntentNone}
	}
	return Intent{Kind: IntentAction, Text: body}
}

func (c *Classifier) classifyCommand(rest string) Intent {
	name, args := rest, ""
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		name, args = rest[:i], rest[i:]
	}
	// Telegram appends the bot username to commands in groups: /summary@bot.
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	args = strings.TrimSpace(args)

	switch strings.ToLower(name) {
	case "setname":
		if args == "" {
			return Intent{Kind: IntentInvalidRename}
		}
		return Intent{Kind: IntentRename, Text: args}
	case "summary":
		return Intent{Kind: IntentRecap}
	case "helpme", "help":
		return Intent{Kind: IntentHelp}
	default:
		return Intent{Kind: IntentNone}
	}
}

// classifyNatural matches the natural-language phrases against text (already
// stripped of any action marker). original is echoed back for votes.
func classifyNatural(text, original string) (Intent, bool) {
	lower := strings.ToLower(text)

	for _, phrase := range renamePhrases {
		rest, ok := cutPhrase(text, phrase)
		if !ok {
			continue
		}
		name := strings.TrimSpace(rest)
		if name == "" {
			return Intent{Kind: IntentInvalidRename}, true
		}
		return Intent{Kind: IntentRename, Text: name}, true
	}

	if lower == "summary" || containsAny(lower, recapPhrases) {
		return Intent{Kind: IntentRecap}, true
	}

	if containsAny(lower, votePhrases) {
		return Intent{Kind: IntentVote, Text: original}, true
	}

	return Intent{}, false
}

// cutPhrase reports whether text starts with phrase, ignoring case, followed
// by whitespace or the end of text, and returns the remainder.
func cutPhrase(text, phrase string) (string, bool) {
	if len(text) < len(phrase) || !strings.EqualFold(text[:len(phrase)], phrase) {
		return "", false
	}
	rest := text[len(phrase):]
	if r, _ := utf8.DecodeRuneInString(rest); rest != "" && !unicode.IsSpace(r) {
		return "", false
	}
	return rest, true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
