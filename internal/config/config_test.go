package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/linguahq/lingua/internal/config"
)

// clearConfigEnv unsets all environment variables that Load reads so each
// sub-test starts from a clean slate.  t.Setenv already restores values
// after the test, but we also need to make sure variables from the outer
// process don't leak into "defaults" tests.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LINGUA_ENV",
		"LINGUA_ADDR",
		"LINGUA_DATA_DIR",
		"LINGUA_CORS_ORIGINS",
		"LINGUA_LANGUAGES",
		"LINGUA_SESSION_IDLE_TIMEOUT",
		"LINGUA_SESSION_MAX_MESSAGES",
		"OPENAI_API_KEY",
		"OPENAI_MODEL",
		"OPENAI_MAX_TOKENS",
		"OPENAI_TEMPERATURE",
		"TELEGRAM_BOT_TOKEN",
		"SLACK_BOT_TOKEN",
		"SLACK_APP_TOKEN",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// loadTestConfig loads a config rooted in a temp data dir.
func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	return cfg
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)

	// Use a temp dir so MkdirAll does not fail and we don't pollute $HOME.
	tmpDir := t.TempDir()
	t.Setenv("LINGUA_DATA_DIR", tmpDir)

	cfg := loadTestConfig(t)

	if cfg.Environment != config.EnvDev {
		t.Errorf("Environment = %q, want %q", cfg.Environment, config.EnvDev)
	}
	if cfg.ServerAddr != ":8000" {
		t.Errorf("ServerAddr = %q, want %q", cfg.ServerAddr, ":8000")
	}
	if cfg.DataDir != tmpDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, tmpDir)
	}
	wantDB := filepath.Join(tmpDir, "lingua.db")
	if cfg.DatabasePath != wantDB {
		t.Errorf("DatabasePath = %q, want %q", cfg.DatabasePath, wantDB)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Errorf("OpenAIModel = %q, want %q", cfg.OpenAIModel, "gpt-4o-mini")
	}
	if cfg.OpenAIMaxTokens != 500 {
		t.Errorf("OpenAIMaxTokens = %d, want 500", cfg.OpenAIMaxTokens)
	}
	if cfg.OpenAITemperature != 0.7 {
		t.Errorf("OpenAITemperature = %g, want 0.7", cfg.OpenAITemperature)
	}
	wantLangs := []string{"EN", "UA", "PL", "DE"}
	if strings.Join(cfg.Languages, ",") != strings.Join(wantLangs, ",") {
		t.Errorf("Languages = %v, want %v", cfg.Languages, wantLangs)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:8080" {
		t.Errorf("CORSOrigins = %v, want [http://localhost:8080]", cfg.CORSOrigins)
	}
	if cfg.SessionIdleTimeout != 30*time.Minute {
		t.Errorf("SessionIdleTimeout = %v, want 30m", cfg.SessionIdleTimeout)
	}
	if cfg.SessionMaxMessages != 50 {
		t.Errorf("SessionMaxMessages = %d, want 50", cfg.SessionMaxMessages)
	}
	if cfg.TelegramEnabled() {
		t.Error("TelegramEnabled() = true, want false with no token")
	}
	if cfg.SlackEnabled() {
		t.Error("SlackEnabled() = true, want false with no tokens")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()
	t.Setenv("LINGUA_DATA_DIR", tmpDir)
	t.Setenv("LINGUA_ENV", "ci")
	t.Setenv("LINGUA_ADDR", ":9090")
	t.Setenv("LINGUA_CORS_ORIGINS", "https://app.example.com, https://staging.example.com")
	t.Setenv("LINGUA_LANGUAGES", "EN,DE")
	t.Setenv("LINGUA_SESSION_IDLE_TIMEOUT", "10m")
	t.Setenv("LINGUA_SESSION_MAX_MESSAGES", "5")
	t.Setenv("OPENAI_API_KEY", "sk-test-key")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("OPENAI_MAX_TOKENS", "1000")
	t.Setenv("OPENAI_TEMPERATURE", "0.2")

	cfg := loadTestConfig(t)

	if cfg.Environment != config.EnvCI {
		t.Errorf("Environment = %q, want ci", cfg.Environment)
	}
	if cfg.ServerAddr != ":9090" {
		t.Errorf("ServerAddr = %q, want :9090", cfg.ServerAddr)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://staging.example.com" {
		t.Errorf("CORSOrigins = %v, want two trimmed origins", cfg.CORSOrigins)
	}
	if len(cfg.Languages) != 2 || cfg.Languages[0] != "EN" || cfg.Languages[1] != "DE" {
		t.Errorf("Languages = %v, want [EN DE]", cfg.Languages)
	}
	if cfg.SessionIdleTimeout != 10*time.Minute {
		t.Errorf("SessionIdleTimeout = %v, want 10m", cfg.SessionIdleTimeout)
	}
	if cfg.SessionMaxMessages != 5 {
		t.Errorf("SessionMaxMessages = %d, want 5", cfg.SessionMaxMessages)
	}
	if cfg.OpenAIAPIKey != "sk-test-key" {
		t.Errorf("OpenAIAPIKey = %q, want sk-test-key", cfg.OpenAIAPIKey)
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Errorf("OpenAIModel = %q, want gpt-4o", cfg.OpenAIModel)
	}
	if cfg.OpenAIMaxTokens != 1000 {
		t.Errorf("OpenAIMaxTokens = %d, want 1000", cfg.OpenAIMaxTokens)
	}
	if cfg.OpenAITemperature != 0.2 {
		t.Errorf("OpenAITemperature = %g, want 0.2", cfg.OpenAITemperature)
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()
	t.Setenv("LINGUA_DATA_DIR", tmpDir)
	t.Setenv("LINGUA_SESSION_IDLE_TIMEOUT", "not-a-duration")

	cfg := loadTestConfig(t)
	if cfg.SessionIdleTimeout != 30*time.Minute {
		t.Errorf("SessionIdleTimeout = %v, want default 30m for invalid input", cfg.SessionIdleTimeout)
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

// validConfig returns a Config that passes Validate.
func validConfig() *config.Config {
	return &config.Config{
		Environment:       config.EnvDev,
		ServerAddr:        ":8000",
		CORSOrigins:       []string{"http://localhost:8080"},
		OpenAIAPIKey:      "sk-test-key",
		OpenAIModel:       "gpt-4o-mini",
		OpenAIMaxTokens:   500,
		OpenAITemperature: 0.7,
		Languages:         []string{"EN", "DE"},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantSub string
	}{
		{
			name:    "bad environment",
			mutate:  func(c *config.Config) { c.Environment = "staging" },
			wantSub: "LINGUA_ENV",
		},
		{
			name:    "missing api key",
			mutate:  func(c *config.Config) { c.OpenAIAPIKey = "" },
			wantSub: "OPENAI_API_KEY is required",
		},
		{
			name:    "api key without sk- prefix",
			mutate:  func(c *config.Config) { c.OpenAIAPIKey = "key-12345" },
			wantSub: "must start with 'sk-'",
		},
		{
			name:    "zero max tokens",
			mutate:  func(c *config.Config) { c.OpenAIMaxTokens = 0 },
			wantSub: "OPENAI_MAX_TOKENS",
		},
		{
			name:    "negative temperature",
			mutate:  func(c *config.Config) { c.OpenAITemperature = -0.1 },
			wantSub: "OPENAI_TEMPERATURE",
		},
		{
			name:    "temperature above 2",
			mutate:  func(c *config.Config) { c.OpenAITemperature = 2.5 },
			wantSub: "OPENAI_TEMPERATURE",
		},
		{
			name:    "empty languages",
			mutate:  func(c *config.Config) { c.Languages = nil },
			wantSub: "LINGUA_LANGUAGES cannot be empty",
		},
		{
			name:    "unsupported language",
			mutate:  func(c *config.Config) { c.Languages = []string{"EN", "FR"} },
			wantSub: `unsupported language "FR"`,
		},
		{
			name:    "invalid cors origin",
			mutate:  func(c *config.Config) { c.CORSOrigins = []string{"localhost:8080"} },
			wantSub: "LINGUA_CORS_ORIGINS",
		},
		{
			name:    "slack bot token without app token",
			mutate:  func(c *config.Config) { c.SlackBotToken = "xoxb-abc" },
			wantSub: "SLACK_APP_TOKEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestSupportsLanguage(t *testing.T) {
	cfg := validConfig()

	if !cfg.SupportsLanguage("EN") {
		t.Error("SupportsLanguage(EN) = false, want true")
	}
	if cfg.SupportsLanguage("UA") {
		t.Error("SupportsLanguage(UA) = true, want false (not configured)")
	}
	if cfg.SupportsLanguage("en") {
		t.Error("SupportsLanguage(en) = true, want false (codes are uppercase)")
	}
}

func TestSlackEnabled_RequiresBothTokens(t *testing.T) {
	cfg := validConfig()
	cfg.SlackBotToken = "xoxb-abc"
	if cfg.SlackEnabled() {
		t.Error("SlackEnabled() = true with only bot token, want false")
	}
	cfg.SlackAppToken = "xapp-abc"
	if !cfg.SlackEnabled() {
		t.Error("SlackEnabled() = false with both tokens, want true")
	}
}
