// Package config provides configuration management for the Lingua server.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Environment is the deployment environment name.
type Environment string

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"
	EnvCI   Environment = "ci"
)

// Config holds all configuration for the Lingua server.
type Config struct {
	// Environment is the deployment environment: dev, prod, or ci.
	Environment Environment

	// ServerAddr is the address the HTTP server listens on (e.g., ":8000").
	ServerAddr string

	// DataDir is the directory for persistent data (SQLite DB, etc.).
	DataDir string

	// DatabasePath is the full path to the SQLite database file.
	DatabasePath string

	// CORSOrigins are the origins allowed by the CORS middleware.
	CORSOrigins []string

	// OpenAIAPIKey is the API key for the LLM provider.
	OpenAIAPIKey string

	// OpenAIModel is the model used for conversations and corrections.
	OpenAIModel string

	// OpenAIMaxTokens is the per-request completion token cap.
	OpenAIMaxTokens int

	// OpenAITemperature controls response randomness (0-2).
	OpenAITemperature float64

	// Languages are the tutoring languages offered to learners.
	Languages []string

	// SessionIdleTimeout is how long a tutoring session stays active without
	// messages before being marked expired. Default: 30 minutes.
	SessionIdleTimeout time.Duration

	// SessionMaxMessages is the maximum number of learner messages per
	// session. Default: 50.
	SessionMaxMessages int

	// Telegram integration (optional -- long polling, no public URL needed).
	// TelegramBotToken is the token from @BotFather.
	TelegramBotToken string

	// Slack integration (optional -- Socket Mode).
	// SlackBotToken is the Bot User OAuth Token (xoxb-...).
	SlackBotToken string
	// SlackAppToken is the App-Level Token (xapp-...) required for Socket Mode.
	SlackAppToken string
}

// Load creates a Config from the config file and environment variables.
// Values are resolved in order: environment variable > config file > default.
func Load() (*Config, error) {
	// Load config file (~/.lingua/config.env) into the environment.
	// Existing env vars take precedence (loadConfigFile only sets unset vars).
	loadConfigFile()

	dataDir := envOr("LINGUA_DATA_DIR", defaultDataDir())
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	cfg := &Config{
		Environment:        Environment(envOr("LINGUA_ENV", "dev")),
		ServerAddr:         envOr("LINGUA_ADDR", ":8000"),
		DataDir:            dataDir,
		DatabasePath:       filepath.Join(dataDir, "lingua.db"),
		CORSOrigins:        envOrList("LINGUA_CORS_ORIGINS", []string{"http://localhost:8080"}),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        envOr("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIMaxTokens:    envOrInt("OPENAI_MAX_TOKENS", 500),
		OpenAITemperature:  envOrFloat("OPENAI_TEMPERATURE", 0.7),
		Languages:          envOrList("LINGUA_LANGUAGES", []string{"EN", "UA", "PL", "DE"}),
		SessionIdleTimeout: envOrDuration("LINGUA_SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionMaxMessages: envOrInt("LINGUA_SESSION_MAX_MESSAGES", 50),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		SlackBotToken:      os.Getenv("SLACK_BOT_TOKEN"),
		SlackAppToken:      os.Getenv("SLACK_APP_TOKEN"),
	}

	return cfg, nil
}

// loadConfigFile reads ~/.lingua/config.env and sets any values that are not
// already present in the environment. This ensures env vars always win.
func loadConfigFile() {
	path := filepath.Join(defaultDataDir(), "config.env")
	f, err := os.Open(path)
	if err != nil {
		return // file doesn't exist or can't be read, that's fine
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]
		// Only set if not already in the environment.
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// tutorableLanguages is the set of language codes Lingua can tutor in.
var tutorableLanguages = map[string]bool{
	"EN": true, "DE": true, "PL": true, "UA": true,
}

// Validate checks that required configuration is present and well-formed.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDev, EnvProd, EnvCI:
	default:
		return fmt.Errorf("LINGUA_ENV must be one of dev, prod, ci (got %q)", c.Environment)
	}

	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if !strings.HasPrefix(c.OpenAIAPIKey, "sk-") {
		return fmt.Errorf("OPENAI_API_KEY must start with 'sk-'")
	}
	if c.OpenAIMaxTokens <= 0 {
		return fmt.Errorf("OPENAI_MAX_TOKENS must be positive (got %d)", c.OpenAIMaxTokens)
	}
	if c.OpenAITemperature < 0 || c.OpenAITemperature > 2 {
		return fmt.Errorf("OPENAI_TEMPERATURE must be between 0 and 2 (got %g)", c.OpenAITemperature)
	}

	if len(c.Languages) == 0 {
		return fmt.Errorf("LINGUA_LANGUAGES cannot be empty")
	}
	for _, lang := range c.Languages {
		if !tutorableLanguages[lang] {
			return fmt.Errorf("LINGUA_LANGUAGES contains unsupported language %q", lang)
		}
	}

	for _, origin := range c.CORSOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("LINGUA_CORS_ORIGINS contains invalid origin %q (must start with http:// or https://)", origin)
		}
	}

	if c.SlackBotToken != "" && c.SlackAppToken == "" {
		return fmt.Errorf("SLACK_APP_TOKEN is required when SLACK_BOT_TOKEN is set")
	}

	return nil
}

// TelegramEnabled returns true if the Telegram bot is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// SlackEnabled returns true if Slack Socket Mode is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

// SupportsLanguage reports whether the given code is in the configured list.
func (c *Config) SupportsLanguage(code string) bool {
	for _, lang := range c.Languages {
		if lang == code {
			return true
		}
	}
	return false
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envOrList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lingua"
	}
	return filepath.Join(home, ".lingua")
}
