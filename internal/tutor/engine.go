package tutor

import (
	"context"
	"fmt"

	"github.com/linguahq/lingua/internal/llm"
)

// Engine runs tutoring turns: prompt rendering, the LLM call, and reply
// parsing.
type Engine struct {
	llm     llm.Client
	prompts *PromptSet
	parser  *Parser
}

// NewEngine creates an Engine backed by the given LLM client.
func NewEngine(client llm.Client) (*Engine, error) {
	prompts, err := NewPromptSet()
	if err != nil {
		return nil, err
	}
	return &Engine{
		llm:     client,
		prompts: prompts,
		parser:  NewParser(),
	}, nil
}

// Respond processes one tutoring turn and returns the structured response.
// Provider failures are wrapped in ErrLLM.
func (e *Engine) Respond(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	system, err := e.prompts.SystemPrompt(req.Language, req.Level)
	if err != nil {
		return nil, err
	}
	user, err := e.prompts.TutoringPrompt(req.Message, req.Language, req.Level)
	if err != nil {
		return nil, err
	}

	completion, err := e.llm.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLM, err)
	}

	parsed := e.parser.Parse(completion.Text)

	// The response fields are required; fall back to neutral text when the
	// model left a section empty.
	aiResponse := parsed.AIResponse
	if aiResponse == "" {
		aiResponse = "Response received."
	}
	nextPhrase := parsed.NextPhrase
	if nextPhrase == "" {
		nextPhrase = "Please continue."
	}

	corrections := parsed.Corrections
	if corrections == nil {
		corrections = []Correction{}
	}

	return &ChatResponse{
		AIResponse:  aiResponse,
		NextPhrase:  nextPhrase,
		Corrections: corrections,
		SessionID:   req.SessionID,
		TokensUsed:  completion.TokensUsed,
	}, nil
}

// StartMessage returns the level-appropriate welcome line for a new session.
func (e *Engine) StartMessage(language Language, level Level) (string, error) {
	return e.prompts.StartMessage(language, level)
}
