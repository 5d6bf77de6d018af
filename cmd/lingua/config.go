package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/linguahq/lingua/internal/tutor"
)

// configKey describes a single configuration value.
type configKey struct {
	Key      string
	Desc     string
	Required bool
	Secret   bool
	Prefix   string // expected prefix for validation (e.g. "sk-"), empty = no check
}

// allConfigKeys lists every configurable value in display order.
var allConfigKeys = []configKey{
	{"OPENAI_API_KEY", "OpenAI API key", true, true, "sk-"},
	{"OPENAI_MODEL", "OpenAI model (default gpt-4o-mini)", false, false, ""},
	{"LINGUA_LANGUAGES", "Enabled languages, comma-separated (EN,UA,PL,DE)", false, false, ""},
	{"LINGUA_ENV", "Environment: dev, prod or ci", false, false, ""},
	{"LINGUA_ADDR", "Server listen address (default :8000)", false, false, ""},
	{"LINGUA_CORS_ORIGINS", "Allowed CORS origins, comma-separated", false, false, ""},
	{"TELEGRAM_BOT_TOKEN", "Telegram bot token (from @BotFather)", false, true, ""},
	{"SLACK_BOT_TOKEN", "Slack Bot User OAuth Token (xoxb-...)", false, true, "xoxb-"},
	{"SLACK_APP_TOKEN", "Slack App-Level Token (xapp-...)", false, true, "xapp-"},
}

// ---------------------------------------------------------------------------
// Cobra commands
// ---------------------------------------------------------------------------

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Lingua configuration",
	Long: `Manage Lingua configuration (API keys, languages, bot tokens).

Configuration is stored in ~/.lingua/config.env and can be overridden
by environment variables.

  lingua config setup              Interactive setup wizard
  lingua config set KEY VALUE      Set a single config value
  lingua config show               Show current configuration
  lingua config path               Print config file path`,
}

var (
	setupNonInteractive bool
	setupOpenAIKey      string
)

var configSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Long: `Guided setup that walks you through configuring Lingua step by step.

Non-interactive mode for CI/scripting:
  lingua config setup --non-interactive --openai-key=sk-xxx`,
	RunE: runConfigSetup,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a config value",
	Long: `Set a single configuration value. Example:
  lingua config set OPENAI_API_KEY sk-xxxxxxxxxxxx`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display all configured values. Secrets are masked.",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(configFilePath())
		return nil
	},
}

func init() {
	configSetupCmd.Flags().BoolVar(&setupNonInteractive, "non-interactive", false, "Run without prompts (requires --openai-key)")
	configSetupCmd.Flags().StringVar(&setupOpenAIKey, "openai-key", "", "OpenAI API key (non-interactive mode)")

	configCmd.AddCommand(configSetupCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// ---------------------------------------------------------------------------
// Config file helpers
// ---------------------------------------------------------------------------

// configFilePath returns ~/.lingua/config.env.
func configFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".lingua", "config.env")
	}
	return filepath.Join(home, ".lingua", "config.env")
}

// loadConfigFile reads key=value pairs from the config file.
func loadConfigFile() (map[string]string, error) {
	values := make(map[string]string)
	path := configFilePath()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			values[parts[0]] = parts[1]
		}
	}
	return values, scanner.Err()
}

// saveConfigFile writes key=value pairs to the config file.
func saveConfigFile(values map[string]string) error {
	path := configFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "# Lingua configuration")
	fmt.Fprintln(f, "# Managed by: lingua config")
	fmt.Fprintln(f, "# Environment variables override these values.")
	fmt.Fprintln(f)

	// Write in a stable order: known keys first, then any extras.
	written := make(map[string]bool)
	for _, ck := range allConfigKeys {
		if v, ok := values[ck.Key]; ok && v != "" {
			fmt.Fprintf(f, "%s=%s\n", ck.Key, v)
			written[ck.Key] = true
		}
	}

	var extras []string
	for k := range values {
		if !written[k] && values[k] != "" {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		fmt.Fprintf(f, "%s=%s\n", k, values[k])
	}

	return nil
}

// effectiveValue returns the current value for a key, preferring env vars over config file.
func effectiveValue(key string, fileValues map[string]string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fileValues[key]
}

// maskSecret masks a secret string, showing only the first 4 and last 4 characters.
func maskSecret(s string) string {
	if len(s) <= 12 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// ---------------------------------------------------------------------------
// Interactive helpers
// ---------------------------------------------------------------------------

// wizard holds shared state for the interactive setup.
type wizard struct {
	reader     *bufio.Reader
	fileValues map[string]string
	changed    int
}

func newWizard(fileValues map[string]string) *wizard {
	return &wizard{
		reader:     bufio.NewReader(os.Stdin),
		fileValues: fileValues,
	}
}

// askYesNo asks a yes/no question and returns true for yes.
func (w *wizard) askYesNo(prompt string, defaultYes bool) (bool, error) {
	hint := "[Y/n]"
	if !defaultYes {
		hint = "[y/N]"
	}
	fmt.Printf("  %s %s ", prompt, hint)
	input, err := w.reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return defaultYes, nil
	}
	return input == "y" || input == "yes", nil
}

// askValue prompts for a single config value with validation.
// Returns true if a new value was accepted.
func (w *wizard) askValue(ck configKey) (bool, error) {
	current := effectiveValue(ck.Key, w.fileValues)

	status := "\033[31m✗ not set\033[0m"
	if current != "" {
		if ck.Secret {
			status = fmt.Sprintf("\033[32m✓ set\033[0m (%s)", maskSecret(current))
		} else {
			status = fmt.Sprintf("\033[32m✓ set\033[0m (%s)", current)
		}
	}

	fmt.Printf("  %s  %s\n", ck.Key, status)

	for {
		fmt.Print("  Paste value (Enter to keep): ")
		input, err := w.reader.ReadString('\n')
		if err != nil {
			return false, err
		}
		input = strings.TrimSpace(input)

		// Enter = keep current.
		if input == "" {
			return false, nil
		}

		if ck.Prefix != "" && !strings.HasPrefix(input, ck.Prefix) {
			fmt.Printf("  \033[33m!\033[0m  That doesn't look right, expected prefix %q. Try again or press Enter to skip.\n", ck.Prefix)
			continue
		}

		if ck.Key == "LINGUA_LANGUAGES" && !validLanguageList(input) {
			fmt.Println("  \033[33m!\033[0m  Expected a comma-separated subset of EN, UA, PL, DE. Try again or press Enter to skip.")
			continue
		}

		w.fileValues[ck.Key] = input
		w.changed++
		fmt.Printf("  \033[32m✓ saved\033[0m\n")
		return true, nil
	}
}

// validLanguageList reports whether s is a comma-separated list of known
// language codes.
func validLanguageList(s string) bool {
	for _, code := range strings.Split(s, ",") {
		if _, err := tutor.ParseLanguage(strings.TrimSpace(code)); err != nil {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Setup wizard (guided, multi-step)
// ---------------------------------------------------------------------------

func runConfigSetup(cmd *cobra.Command, args []string) error {
	fileValues, err := loadConfigFile()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	if setupNonInteractive {
		return runNonInteractiveSetup(fileValues)
	}

	w := newWizard(fileValues)

	fmt.Println()
	fmt.Println("  \033[1mLingua Setup\033[0m")
	fmt.Println("  ────────────")
	fmt.Println("  This wizard will walk you through configuring Lingua.")
	fmt.Println("  Press Enter at any prompt to keep the current value.")
	fmt.Println()

	// ── Step 1: OpenAI API key ───────────────────────────────────────────
	fmt.Println("  \033[1mStep 1 of 4 — OpenAI API Key (required)\033[0m")
	fmt.Println("  Lingua uses the OpenAI Chat Completions API for tutoring.")
	fmt.Println("  Create a key at: \033[4mhttps://platform.openai.com/api-keys\033[0m")
	fmt.Println()

	openaiKey := findKey("OPENAI_API_KEY")
	for {
		if _, err := w.askValue(openaiKey); err != nil {
			return err
		}
		if effectiveValue("OPENAI_API_KEY", w.fileValues) != "" {
			break
		}
		fmt.Println("  \033[33m!\033[0m  An OpenAI key is required. Please paste your key or Ctrl+C to quit.")
	}
	fmt.Println()

	// ── Step 2: Languages and model ──────────────────────────────────────
	fmt.Println("  \033[1mStep 2 of 4 — Languages and Model\033[0m")
	fmt.Println("  Pick which languages learners can practice and which model to use.")
	fmt.Println()

	if _, err := w.askValue(findKey("LINGUA_LANGUAGES")); err != nil {
		return err
	}
	fmt.Println()
	if _, err := w.askValue(findKey("OPENAI_MODEL")); err != nil {
		return err
	}
	fmt.Println()

	// ── Step 3: Telegram ─────────────────────────────────────────────────
	fmt.Println("  \033[1mStep 3 of 4 — Telegram Bot (optional)\033[0m")
	fmt.Println("  Practice from your phone via Telegram.")
	fmt.Println("  Get a bot token from @BotFather on Telegram (takes 30 seconds).")
	fmt.Println()

	doTelegram, err := w.askYesNo("Set up Telegram?", false)
	if err != nil {
		return err
	}
	if doTelegram {
		fmt.Println()
		if _, err := w.askValue(findKey("TELEGRAM_BOT_TOKEN")); err != nil {
			return err
		}
	} else {
		fmt.Println("  Skipped. You can set this up later with: lingua config setup")
	}
	fmt.Println()

	// ── Step 4: Slack ────────────────────────────────────────────────────
	fmt.Println("  \033[1mStep 4 of 4 — Slack Bot (optional)\033[0m")
	fmt.Println("  Let your team practice together in Slack threads.")
	fmt.Println("  Requires a Slack app with Socket Mode enabled.")
	fmt.Println()

	doSlack, err := w.askYesNo("Set up Slack?", false)
	if err != nil {
		return err
	}
	if doSlack {
		fmt.Println()
		if _, err := w.askValue(findKey("SLACK_BOT_TOKEN")); err != nil {
			return err
		}
		fmt.Println()
		if _, err := w.askValue(findKey("SLACK_APP_TOKEN")); err != nil {
			return err
		}
	} else {
		fmt.Println("  Skipped. You can set this up later with: lingua config setup")
	}
	fmt.Println()

	if err := saveConfigFile(w.fileValues); err != nil {
		return err
	}

	// ── Summary ──────────────────────────────────────────────────────────
	languages := effectiveValue("LINGUA_LANGUAGES", w.fileValues)
	if languages == "" {
		languages = "EN,UA,PL,DE"
	}
	fmt.Println("  \033[1mConfiguration Summary\033[0m")
	fmt.Println("  ────────────────────")
	printSummaryLine("OpenAI", effectiveValue("OPENAI_API_KEY", w.fileValues) != "")
	fmt.Printf("  %-14s %s\n", "Languages", languages)
	printSummaryLine("Telegram", effectiveValue("TELEGRAM_BOT_TOKEN", w.fileValues) != "")
	printSummaryLine("Slack", effectiveValue("SLACK_BOT_TOKEN", w.fileValues) != "" &&
		effectiveValue("SLACK_APP_TOKEN", w.fileValues) != "")
	fmt.Println()
	fmt.Printf("  Saved to %s\n", configFilePath())
	fmt.Println()

	fmt.Println("  \033[1mNext Steps\033[0m")
	fmt.Println("  ──────────")
	fmt.Println("  1. Start the server:   lingua serve")
	fmt.Println("  2. List sessions:      lingua sessions")
	fmt.Println()

	return nil
}

// runNonInteractiveSetup handles --non-interactive mode.
func runNonInteractiveSetup(fileValues map[string]string) error {
	if setupOpenAIKey == "" {
		return fmt.Errorf("--openai-key is required in non-interactive mode")
	}
	if !strings.HasPrefix(setupOpenAIKey, "sk-") {
		return fmt.Errorf("OpenAI key must start with sk-")
	}

	fileValues["OPENAI_API_KEY"] = setupOpenAIKey

	if err := saveConfigFile(fileValues); err != nil {
		return err
	}

	fmt.Printf("Config written to %s\n", configFilePath())
	return nil
}

// findKey looks up a configKey by name.
func findKey(name string) configKey {
	for _, ck := range allConfigKeys {
		if ck.Key == name {
			return ck
		}
	}
	return configKey{Key: name}
}

// printSummaryLine prints a check or cross for a config section.
func printSummaryLine(label string, ok bool) {
	if ok {
		fmt.Printf("  \033[32m✓\033[0m %-12s configured\n", label)
	} else {
		fmt.Printf("  \033[90m-\033[0m %-12s not configured\n", label)
	}
}

// ---------------------------------------------------------------------------
// config set / config show
// ---------------------------------------------------------------------------

// runConfigSet sets a single key=value in the config file.
func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	fileValues, err := loadConfigFile()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	fileValues[key] = value

	if err := saveConfigFile(fileValues); err != nil {
		return err
	}

	isSecret := false
	for _, ck := range allConfigKeys {
		if ck.Key == key && ck.Secret {
			isSecret = true
			break
		}
	}

	if isSecret {
		fmt.Printf("Set %s = %s\n", key, maskSecret(value))
	} else {
		fmt.Printf("Set %s = %s\n", key, value)
	}
	return nil
}

// runConfigShow displays the current effective configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	fileValues, err := loadConfigFile()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	fmt.Printf("Config file: %s\n\n", configFilePath())

	for _, ck := range allConfigKeys {
		value := effectiveValue(ck.Key, fileValues)
		source := ""
		if os.Getenv(ck.Key) != "" {
			source = " (from env)"
		} else if fileValues[ck.Key] != "" {
			source = " (from config file)"
		}

		display := "(not set)"
		if value != "" {
			if ck.Secret {
				display = maskSecret(value)
			} else {
				display = value
			}
		}

		reqTag := ""
		if ck.Required {
			reqTag = " *"
		}

		fmt.Printf("  %-25s %s%s\n", ck.Key+reqTag, display, source)
	}

	fmt.Println("\n  * = required")
	return nil
}
