package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/edgard/narratorbot/internal/story"
)

// Platform names.
const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
)

// Platform message size limits, in characters.
const (
	DefaultDiscordMessageLength  = 2000
	DefaultTelegramMessageLength = 4096
)

var defaults = map[string]any{
	"chat.platform":           PlatformDiscord,
	"chat.discord_token":      "",
	"chat.telegram_token":     "",
	"chat.max_message_length": 0,
	"chat.handle_timeout":     3 * time.Minute,

	"backend.provider":   "openrouter",
	"backend.api_key":    "",
	"backend.base_url":   "",
	"backend.model":      "",
	"backend.max_tokens": 250,
	"backend.timeout":    60 * time.Second,

	"game.setting":              "a mysterious ancient city",
	"game.mode":                 string(story.ModeFreeText),
	"game.action_marker":        ">",
	"game.command_prefix":       "!",
	"game.natural_language":     true,
	"game.prompt_template":      story.DefaultPromptTemplate,
	"game.recap_size":           3,
	"game.recap_include_action": false,
	"game.max_name_length":      32,

	"registry.driver": "json",
	"registry.path":   "/data/player_names.json",

	"scheduler.tasks.registry_flush.enabled":   true,
	"scheduler.tasks.registry_flush.schedule":  "0 */5 * * * *",
	"scheduler.tasks.sql_maintenance.enabled":  true,
	"scheduler.tasks.sql_maintenance.schedule": "0 0 4 * * *",

	"http.addr": "",

	"log.level":  "info",
	"log.format": "json",

	"messages.help":                "🛠️ Commands:\n{marker} your action\n{prefix}setname YourName\n{prefix}summary\nYou can also just say what you do, \"call me <name>\" or \"what happened?\"",
	"messages.no_events":           "No events yet.",
	"messages.rename_confirm":      "✅ Display name set to: `{name}`",
	"messages.invalid_rename":      "ℹ️ Please provide a name, for example: {prefix}setname YourName",
	"messages.name_too_long":       "📝 Display names can be at most {max} characters.",
	"messages.vote_stub":           "🗳️ Voting is not available yet. You asked: {text}",
	"messages.generation_failed":   "❌ Could not generate response:\n```{error}```",
	"messages.persistence_warning": "⚠️ Your new name is active but could not be saved yet.",
}

// envAliases lists extra environment variables accepted for a key, in
// priority order after the canonical name.
var envAliases = map[string][]string{
	"chat.discord_token":  {"DISCORD_TOKEN"},
	"chat.telegram_token": {"TELEGRAM_TOKEN"},
	"backend.api_key":     {"OPENROUTER_API_KEY", "GEMINI_API_KEY"},
	"backend.temperature": {},
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
