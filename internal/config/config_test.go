package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Tests in this file use t.Setenv and therefore cannot run in parallel.

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "discord-token")
	t.Setenv("OPENROUTER_API_KEY", "or-key")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Chat.Platform != PlatformDiscord || cfg.Chat.DiscordToken != "discord-token" {
		t.Errorf("unexpected chat config %+v", cfg.Chat)
	}
	if cfg.Backend.APIKey != "or-key" || cfg.Backend.Model != "deepseek/deepseek-chat-v3-0324:free" {
		t.Errorf("unexpected backend config %+v", cfg.Backend)
	}
	if cfg.Backend.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("expected OpenRouter endpoint, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Temperature != nil {
		t.Errorf("temperature should be unset, got %v", *cfg.Backend.Temperature)
	}
	if cfg.Backend.Timeout != 60*time.Second || cfg.Chat.HandleTimeout != 3*time.Minute {
		t.Errorf("unexpected timeouts %v %v", cfg.Backend.Timeout, cfg.Chat.HandleTimeout)
	}
	if cfg.Game.Setting != "a mysterious ancient city" || cfg.Game.RecapSize != 3 || !cfg.Game.NaturalLanguage {
		t.Errorf("unexpected game config %+v", cfg.Game)
	}
	if cfg.Registry.Path != "/data/player_names.json" || cfg.Registry.Driver != "json" {
		t.Errorf("unexpected registry config %+v", cfg.Registry)
	}
	task, ok := cfg.Scheduler.Tasks["registry_flush"]
	if !ok || !task.Enabled || task.Schedule != "0 */5 * * * *" {
		t.Errorf("unexpected registry_flush task %+v", task)
	}
	if cfg.Chat.MessageLimit() != DefaultDiscordMessageLength {
		t.Errorf("expected discord limit, got %d", cfg.Chat.MessageLimit())
	}
	if !cfg.Log.JSON() {
		t.Error("expected JSON logs by default")
	}
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CHAT_PLATFORM", "telegram")
	t.Setenv("TELEGRAM_TOKEN", "tg-token")
	t.Setenv("BACKEND_TEMPERATURE", "0.7")
	t.Setenv("GAME_SETTING", "a quiet harbor town")
	t.Setenv("GAME_MODE", "marker")
	t.Setenv("BACKEND_TIMEOUT", "15s")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Chat.TelegramToken != "tg-token" || cfg.Chat.MessageLimit() != DefaultTelegramMessageLength {
		t.Errorf("unexpected chat config %+v", cfg.Chat)
	}
	if cfg.Backend.Temperature == nil || *cfg.Backend.Temperature != 0.7 {
		t.Errorf("unexpected temperature %v", cfg.Backend.Temperature)
	}
	if cfg.Backend.Timeout != 15*time.Second {
		t.Errorf("unexpected timeout %v", cfg.Backend.Timeout)
	}

	engine := cfg.EngineConfig()
	if engine.Setting != "a quiet harbor town" || engine.Classifier.Mode != "marker" {
		t.Errorf("unexpected engine config %+v", engine)
	}
}

func TestLoadConfigGeminiDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BACKEND_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "gm-key")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Backend.BaseURL != "" {
		t.Errorf("gemini must keep the SDK endpoint, got base URL %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Model != "gemini-2.0-flash" {
		t.Errorf("expected gemini default model, got %q", cfg.Backend.Model)
	}
	if got := cfg.BackendClientConfig(); got.Provider != "gemini" || got.BaseURL != "" {
		t.Errorf("unexpected backend client config %+v", got)
	}
}

func TestLoadConfigFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
game:
  setting: "a floating archipelago"
  recap_size: 5
registry:
  driver: sqlite
  path: /tmp/names.db
http:
  addr: ":8080"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Game.Setting != "a floating archipelago" || cfg.Game.RecapSize != 5 {
		t.Errorf("unexpected game config %+v", cfg.Game)
	}
	if cfg.Registry.Driver != "sqlite" || cfg.HTTP.Addr != ":8080" {
		t.Errorf("unexpected config %+v %+v", cfg.Registry, cfg.HTTP)
	}
	if cfg.Game.MaxNameLength != 32 {
		t.Errorf("defaults must still apply, got max_name_length %d", cfg.Game.MaxNameLength)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	testCases := []struct {
		name    string
		env     map[string]string
		wantKey string
	}{
		{
			name:    "missing discord token",
			env:     map[string]string{"OPENROUTER_API_KEY": "k"},
			wantKey: "chat.discord_token",
		},
		{
			name:    "missing api key",
			env:     map[string]string{"DISCORD_TOKEN": "t"},
			wantKey: "backend.api_key",
		},
		{
			name:    "missing telegram token",
			env:     map[string]string{"OPENROUTER_API_KEY": "k", "CHAT_PLATFORM": "telegram"},
			wantKey: "chat.telegram_token",
		},
		{
			name:    "unknown platform",
			env:     map[string]string{"OPENROUTER_API_KEY": "k", "DISCORD_TOKEN": "t", "CHAT_PLATFORM": "irc"},
			wantKey: "chat.platform",
		},
		{
			name:    "temperature out of range",
			env:     map[string]string{"OPENROUTER_API_KEY": "k", "DISCORD_TOKEN": "t", "BACKEND_TEMPERATURE": "3"},
			wantKey: "backend.temperature",
		},
		{
			name:    "bad prompt template",
			env:     map[string]string{"OPENROUTER_API_KEY": "k", "DISCORD_TOKEN": "t", "GAME_PROMPT_TEMPLATE": "{{.Weather}}"},
			wantKey: "game.prompt_template",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, name := range []string{"DISCORD_TOKEN", "OPENROUTER_API_KEY", "GEMINI_API_KEY", "TELEGRAM_TOKEN", "CHAT_DISCORD_TOKEN", "BACKEND_API_KEY"} {
				t.Setenv(name, "")
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig("")
			if err == nil {
				t.Fatal("expected configuration error")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantKey) {
				t.Errorf("error %q does not name %s", err, tc.wantKey)
			}
		})
	}
}
