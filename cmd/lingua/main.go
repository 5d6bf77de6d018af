// Lingua
//
// A multilingual AI language tutor. Chat in the language you're learning,
// get corrections and a phrase to try next.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "lingua",
	Short: "Lingua - Multilingual AI Language Tutor",
	Long: `Lingua is a multilingual AI language tutor. Chat in the language
you're learning, get corrections and a phrase to try next.

  lingua config setup                 Set up the OpenAI key (first time)
  lingua serve                        Start the server
  lingua sessions                     List tutoring sessions
  lingua chat <session-id> "text"     Send a message to a session
  lingua status <session-id>          Check a session`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("LINGUA_SERVER", "http://localhost:8000"), "Lingua server URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
