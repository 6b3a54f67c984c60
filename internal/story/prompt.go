package story

import (
	"fmt"
	"io"
	"strings"
	"text/template"
)

// DefaultPromptTemplate is the prompt used when none is configured.
const DefaultPromptTemplate = `In {{.Setting}}, {{.Player}} does: "{{.Action}}". Continue the story.`

// PromptData is the data available to a prompt template.
type PromptData struct {
	Setting string
	Player  string
	Action  string
}

// PromptBuilder renders backend prompts for story actions.
type PromptBuilder struct {
	setting string
	tmpl    *template.Template
}

// NewPromptBuilder parses tmpl (DefaultPromptTemplate when empty) and binds it
// to the game setting.
func NewPromptBuilder(setting, tmpl string) (*PromptBuilder, error) {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultPromptTemplate
	}
	t, err := template.New("prompt").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	// Unknown fields only fail at execution time.
	if err := t.Execute(io.Discard, PromptData{}); err != nil {
		return nil, fmt.Errorf("invalid prompt template: %w", err)
	}
	return &PromptBuilder{setting: setting, tmpl: t}, nil
}

// Build returns the prompt for player performing action.
func (b *PromptBuilder) Build(player, action string) (string, error) {
	var sb strings.Builder
	err := b.tmpl.Execute(&sb, PromptData{
		Setting: b.setting,
		Player:  player,
		Action:  action,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return sb.String(), nil
}
