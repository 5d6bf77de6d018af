// Package llm defines the LLM client interface for Lingua.
package llm

import "context"

// Completion is the result of a single LLM call.
type Completion struct {
	// Text is the raw model reply.
	Text string
	// TokensUsed is the total token count the provider reported for the
	// call, or 0 if usage was not reported.
	TokensUsed int
}

// Client is a minimal interface for making LLM API calls.
// Implementations provide the actual HTTP transport to a specific provider.
type Client interface {
	Complete(ctx context.Context, system, user string) (*Completion, error)
}
