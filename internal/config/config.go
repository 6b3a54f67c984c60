// Package config manages application configuration from environment variables,
// an optional .env file, an optional config file, and default values.
package config

import (
	"time"

	"github.com/edgard/narratorbot/internal/backend"
	"github.com/edgard/narratorbot/internal/story"
)

// Config defines the application configuration. Every key can be set through
// config.yaml or an environment variable named after the key, upper-cased with
// dots replaced by underscores (e.g. BACKEND_MODEL).
type Config struct {
	Chat      ChatConfig      `mapstructure:"chat"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Game      GameConfig      `mapstructure:"game"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// ChatConfig selects the chat platform and its credentials.
type ChatConfig struct {
	Platform         string        `mapstructure:"platform"           validate:"required,oneof=discord telegram"`
	DiscordToken     string        `mapstructure:"discord_token"      validate:"required_if=Platform discord"`
	TelegramToken    string        `mapstructure:"telegram_token"     validate:"required_if=Platform telegram"`
	MaxMessageLength int           `mapstructure:"max_message_length" validate:"min=0"`
	HandleTimeout    time.Duration `mapstructure:"handle_timeout"     validate:"min=1s,max=30m"`
}

// MessageLimit returns the outbound message size limit in runes.
func (c ChatConfig) MessageLimit() int {
	if c.MaxMessageLength > 0 {
		return c.MaxMessageLength
	}
	if c.Platform == PlatformTelegram {
		return DefaultTelegramMessageLength
	}
	return DefaultDiscordMessageLength
}

// BackendConfig holds the story generation backend parameters.
type BackendConfig struct {
	Provider    string        `mapstructure:"provider"    validate:"required,oneof=openrouter gemini"`
	APIKey      string        `mapstructure:"api_key"     validate:"required"`
	BaseURL     string        `mapstructure:"base_url"    validate:"omitempty,url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"  validate:"min=1,max=100000"`
	Temperature *float32      `mapstructure:"temperature" validate:"omitempty,min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
}

// applyProviderDefaults fills an empty endpoint or model with the selected
// provider's defaults.
func (c *BackendConfig) applyProviderDefaults() {
	switch c.Provider {
	case backend.ProviderOpenRouter:
		if c.BaseURL == "" {
			c.BaseURL = backend.DefaultOpenRouterURL
		}
		if c.Model == "" {
			c.Model = backend.DefaultOpenRouterModel
		}
	case backend.ProviderGemini:
		if c.Model == "" {
			c.Model = backend.DefaultGeminiModel
		}
	}
}

// GameConfig configures how messages are interpreted and narrated.
type GameConfig struct {
	Setting            string `mapstructure:"setting"              validate:"required"`
	Mode               string `mapstructure:"mode"                 validate:"required,oneof=freetext marker"`
	ActionMarker       string `mapstructure:"action_marker"        validate:"required_if=Mode marker"`
	CommandPrefix      string `mapstructure:"command_prefix"`
	NaturalLanguage    bool   `mapstructure:"natural_language"`
	PromptTemplate     string `mapstructure:"prompt_template"`
	RecapSize          int    `mapstructure:"recap_size"           validate:"min=1,max=50"`
	RecapIncludeAction bool   `mapstructure:"recap_include_action"`
	MaxNameLength      int    `mapstructure:"max_name_length"      validate:"min=1,max=256"`
}

// RegistryConfig selects where display names are persisted.
type RegistryConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=json sqlite"`
	Path   string `mapstructure:"path"   validate:"required"`
}

// SchedulerConfig holds the scheduled tasks keyed by task name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig configures a single scheduled task. Schedule is a cron
// expression with a leading seconds field.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// JSON reports whether logs are written as JSON.
func (c LogConfig) JSON() bool {
	return c.Format == "json"
}

// MessagesConfig holds the user-visible replies.
type MessagesConfig struct {
	Help               string `mapstructure:"help"                validate:"required"`
	NoEvents           string `mapstructure:"no_events"           validate:"required"`
	RenameConfirm      string `mapstructure:"rename_confirm"      validate:"required"`
	InvalidRename      string `mapstructure:"invalid_rename"      validate:"required"`
	NameTooLong        string `mapstructure:"name_too_long"       validate:"required"`
	VoteStub           string `mapstructure:"vote_stub"           validate:"required"`
	GenerationFailed   string `mapstructure:"generation_failed"   validate:"required"`
	PersistenceWarning string `mapstructure:"persistence_warning" validate:"required"`
}

// EngineConfig returns the story engine configuration.
func (c *Config) EngineConfig() story.Config {
	return story.Config{
		Classifier: story.ClassifierConfig{
			Mode:            story.Mode(c.Game.Mode),
			ActionMarker:    c.Game.ActionMarker,
			CommandPrefix:   c.Game.CommandPrefix,
			NaturalLanguage: c.Game.NaturalLanguage,
		},
		Setting:            c.Game.Setting,
		PromptTemplate:     c.Game.PromptTemplate,
		RecapSize:          c.Game.RecapSize,
		RecapIncludeAction: c.Game.RecapIncludeAction,
		MaxNameLength:      c.Game.MaxNameLength,
		MaxMessageLength:   c.Chat.MessageLimit(),
		Messages: story.Messages{
			Help:               c.Messages.Help,
			NoEvents:           c.Messages.NoEvents,
			RenameConfirm:      c.Messages.RenameConfirm,
			InvalidRename:      c.Messages.InvalidRename,
			NameTooLong:        c.Messages.NameTooLong,
			VoteStub:           c.Messages.VoteStub,
			GenerationFailed:   c.Messages.GenerationFailed,
			PersistenceWarning: c.Messages.PersistenceWarning,
		},
	}
}

// BackendClientConfig returns the backend client configuration.
func (c *Config) BackendClientConfig() backend.Config {
	return backend.Config{
		Provider:    c.Backend.Provider,
		APIKey:      c.Backend.APIKey,
		BaseURL:     c.Backend.BaseURL,
		Model:       c.Backend.Model,
		MaxTokens:   c.Backend.MaxTokens,
		Temperature: c.Backend.Temperature,
		Timeout:     c.Backend.Timeout,
	}
}
