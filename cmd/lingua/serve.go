package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/linguahq/lingua/internal/config"
	"github.com/linguahq/lingua/internal/llm/openai"
	"github.com/linguahq/lingua/internal/server"
	"github.com/linguahq/lingua/internal/tutor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Lingua server",
	Long: `Start the Lingua HTTP API server. Also starts the Telegram and Slack
bots when their tokens are configured.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration (run `lingua config setup`): %w", err)
	}

	client := openai.New(cfg.OpenAIAPIKey, openai.Options{
		Model:       cfg.OpenAIModel,
		MaxTokens:   cfg.OpenAIMaxTokens,
		Temperature: cfg.OpenAITemperature,
	})

	engine, err := tutor.NewEngine(client)
	if err != nil {
		return fmt.Errorf("initializing tutor engine: %w", err)
	}

	s, err := server.New(cfg, engine)
	if err != nil {
		return fmt.Errorf("initializing server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Starting Lingua (%s, model %s, languages %v)", cfg.Environment, cfg.OpenAIModel, cfg.Languages)
	return s.Start(ctx)
}
