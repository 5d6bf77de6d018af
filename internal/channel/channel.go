// Package channel defines the interface chat integrations implement.
package channel

import (
	"context"

	"github.com/linguahq/lingua/internal/session"
	"github.com/linguahq/lingua/internal/tutor"
)

// Channel is a chat surface (Telegram, Slack) that lets learners run
// tutoring sessions from their messenger of choice.
type Channel interface {
	// Name returns the channel name for logging.
	Name() string
	// Run starts the channel's event loop. Blocks until ctx is canceled.
	Run(ctx context.Context) error
}

// Tutor is the set of tutoring operations a channel drives. Implemented by
// the server; channels never touch the store or LLM directly.
type Tutor interface {
	StartSession(language, level string) (*session.Session, string, error)
	Chat(ctx context.Context, sessionID, message string) (*tutor.ChatResponse, error)
	EndSession(sessionID string) (*session.Session, error)
	SessionInfo(sessionID string) (*session.Session, int, error)
}
