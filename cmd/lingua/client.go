package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// apiSession mirrors the server's session representation.
type apiSession struct {
	ID        string    `json:"id"`
	Language  string    `json:"language"`
	Level     string    `json:"level"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type apiCorrection struct {
	Original    string   `json:"original"`
	Corrected   string   `json:"corrected"`
	Explanation []string `json:"explanation"`
	ErrorType   string   `json:"error_type"`
}

type apiChatResponse struct {
	AIResponse  string          `json:"ai_response"`
	NextPhrase  string          `json:"next_phrase"`
	Corrections []apiCorrection `json:"corrections"`
	SessionID   string          `json:"session_id"`
	TokensUsed  int             `json:"tokens_used"`
}

var (
	startLanguage string
	startLevel    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new tutoring session",
	Long: `Start a new tutoring session and print its ID.

  lingua start --language DE --level B1`,
	RunE: runStart,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List tutoring sessions",
	RunE:  runSessions,
}

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session's status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var chatCmd = &cobra.Command{
	Use:   "chat <session-id> [message]",
	Short: "Send a message to a session",
	Long: `Send one message to a tutoring session. With no message argument,
starts an interactive loop reading messages from stdin.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runChat,
}

var endCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a tutoring session",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnd,
}

func init() {
	startCmd.Flags().StringVar(&startLanguage, "language", "EN", "Language code (EN, UA, PL, DE)")
	startCmd.Flags().StringVar(&startLevel, "level", "A2", "CEFR level (A1-C2)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(endCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	body := map[string]string{"language": strings.ToUpper(startLanguage), "level": strings.ToUpper(startLevel)}

	var resp struct {
		ID           string `json:"id"`
		StartMessage string `json:"start_message"`
	}
	if err := postJSON("/api/v1/sessions", body, &resp); err != nil {
		return err
	}

	fmt.Printf("Session %s started.\n\n%s\n", resp.ID, resp.StartMessage)
	fmt.Printf("\nChat with: lingua chat %s\n", resp.ID)
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	var sessions []apiSession
	if err := getJSON("/api/v1/sessions", &sessions); err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions. Start one with: lingua start")
		return nil
	}

	fmt.Printf("%-38s %-4s %-5s %-8s %s\n", "ID", "LANG", "LEVEL", "STATUS", "CREATED")
	for _, s := range sessions {
		fmt.Printf("%-38s %-4s %-5s %-8s %s\n",
			s.ID, s.Language, s.Level, s.Status, s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	var sess apiSession
	if err := getJSON("/api/v1/sessions/"+args[0], &sess); err != nil {
		return err
	}

	fmt.Printf("Session:  %s\n", sess.ID)
	fmt.Printf("Language: %s\n", sess.Language)
	fmt.Printf("Level:    %s\n", sess.Level)
	fmt.Printf("Status:   %s\n", sess.Status)
	if sess.Error != "" {
		fmt.Printf("Note:     %s\n", sess.Error)
	}
	fmt.Printf("Created:  %s\n", sess.CreatedAt.Local().Format(time.RFC1123))
	fmt.Printf("Updated:  %s\n", sess.UpdatedAt.Local().Format(time.RFC1123))
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	var sess apiSession
	if err := getJSON("/api/v1/sessions/"+sessionID, &sess); err != nil {
		return err
	}

	if len(args) == 2 {
		return sendTurn(sessionID, sess.Language, sess.Level, args[1])
	}

	// Interactive loop.
	fmt.Printf("Chatting in %s at level %s. Ctrl+D to quit.\n\n", sess.Language, sess.Level)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := sendTurn(sessionID, sess.Language, sess.Level, text); err != nil {
			return err
		}
	}
}

func sendTurn(sessionID, language, level, message string) error {
	body := map[string]string{
		"message":    message,
		"language":   language,
		"level":      level,
		"session_id": sessionID,
	}

	var resp apiChatResponse
	if err := postJSON("/api/v1/chat", body, &resp); err != nil {
		return err
	}

	fmt.Printf("\n%s\n", resp.AIResponse)
	if len(resp.Corrections) > 0 {
		fmt.Println("\nCorrections:")
		for _, c := range resp.Corrections {
			fmt.Printf("  %s -> %s\n", c.Original, c.Corrected)
			fmt.Printf("    %s\n", strings.Join(c.Explanation, ": "))
		}
	}
	if resp.NextPhrase != "" {
		fmt.Printf("\nTry this: %s\n", resp.NextPhrase)
	}
	fmt.Println()
	return nil
}

func runEnd(cmd *cobra.Command, args []string) error {
	var sess apiSession
	if err := postJSON("/api/v1/sessions/"+args[0]+"/end", nil, &sess); err != nil {
		return err
	}
	fmt.Printf("Session %s ended.\n", sess.ID)
	return nil
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

var httpClient = &http.Client{Timeout: 2 * time.Minute}

func getJSON(path string, out any) error {
	resp, err := httpClient.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("connecting to server at %s: %w (is the server running?)", serverURL, err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func postJSON(path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := httpClient.Post(serverURL+path, "application/json", &buf)
	if err != nil {
		return fmt.Errorf("connecting to server at %s: %w (is the server running?)", serverURL, err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
