// Package tutor implements the Lingua tutoring engine: prompt rendering,
// LLM calls, and structured correction parsing.
package tutor

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors for the tutor package.
var (
	// ErrLLM wraps any failure while talking to the LLM provider.
	ErrLLM = errors.New("llm error")
	// ErrTemplateNotFound is returned for an unknown prompt template.
	ErrTemplateNotFound = errors.New("template not found")
)

// Language is a supported tutoring language code.
type Language string

const (
	LangEN Language = "EN"
	LangDE Language = "DE"
	LangPL Language = "PL"
	LangUA Language = "UA"
)

// ParseLanguage validates a language code.
func ParseLanguage(code string) (Language, error) {
	switch Language(code) {
	case LangEN, LangDE, LangPL, LangUA:
		return Language(code), nil
	}
	return "", fmt.Errorf("invalid language %q", code)
}

// Name returns the English name of the language, for use in prompts.
func (l Language) Name() string {
	switch l {
	case LangEN:
		return "English"
	case LangDE:
		return "German"
	case LangPL:
		return "Polish"
	case LangUA:
		return "Ukrainian"
	}
	return string(l)
}

// Level is a CEFR language proficiency level.
type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"
)

// ParseLevel validates a CEFR level code.
func ParseLevel(code string) (Level, error) {
	switch Level(code) {
	case LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2:
		return Level(code), nil
	}
	return "", fmt.Errorf("invalid level %q", code)
}

// Beginner reports whether the level is A1 or A2.
func (l Level) Beginner() bool {
	return l == LevelA1 || l == LevelA2
}

// ErrorType classifies a language error.
type ErrorType string

const (
	ErrorGrammar     ErrorType = "GRAMMAR"
	ErrorVocabulary  ErrorType = "VOCABULARY"
	ErrorSpelling    ErrorType = "SPELLING"
	ErrorPunctuation ErrorType = "PUNCTUATION"
)

// ParseErrorType validates an error type code.
func ParseErrorType(code string) (ErrorType, error) {
	switch ErrorType(code) {
	case ErrorGrammar, ErrorVocabulary, ErrorSpelling, ErrorPunctuation:
		return ErrorType(code), nil
	}
	return "", fmt.Errorf("invalid error type %q", code)
}

// Correction is a single language correction extracted from a model reply.
type Correction struct {
	// Original is the learner's incorrect text.
	Original string `json:"original"`
	// Corrected is the fixed version of the text.
	Corrected string `json:"corrected"`
	// Explanation is exactly two strings: [category, description].
	Explanation []string `json:"explanation"`
	// ErrorType classifies the mistake.
	ErrorType ErrorType `json:"error_type"`
}

// Validate checks the correction invariants.
func (c *Correction) Validate() error {
	if c.Original == "" {
		return fmt.Errorf("correction original must not be empty")
	}
	if c.Corrected == "" {
		return fmt.Errorf("correction corrected must not be empty")
	}
	if len(c.Explanation) != 2 {
		return fmt.Errorf("explanation must have exactly 2 elements: [category, description]")
	}
	if _, err := ParseErrorType(string(c.ErrorType)); err != nil {
		return err
	}
	return nil
}

// ChatRequest is an incoming tutoring turn.
type ChatRequest struct {
	Message   string   `json:"message"`
	Language  Language `json:"language"`
	Level     Level    `json:"level"`
	SessionID string   `json:"session_id"`
}

// Validate checks the request invariants.
func (r *ChatRequest) Validate() error {
	if r.Message == "" {
		return fmt.Errorf("message must not be empty")
	}
	if _, err := ParseLanguage(string(r.Language)); err != nil {
		return err
	}
	if _, err := ParseLevel(string(r.Level)); err != nil {
		return err
	}
	if _, err := uuid.Parse(r.SessionID); err != nil {
		return fmt.Errorf("session_id must be a valid UUID")
	}
	return nil
}

// ChatResponse is the structured result of a tutoring turn.
type ChatResponse struct {
	// AIResponse is the tutor's explanation or positive feedback.
	AIResponse string `json:"ai_response"`
	// NextPhrase is the tutor's conversational follow-up.
	NextPhrase string `json:"next_phrase"`
	// Corrections lists the mistakes found in the learner's message.
	Corrections []Correction `json:"corrections"`
	// SessionID echoes the request's session.
	SessionID string `json:"session_id"`
	// TokensUsed is the provider-reported token count for this turn.
	TokensUsed int `json:"tokens_used"`
}
