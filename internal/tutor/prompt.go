package tutor

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// promptContext is the data passed to every prompt template.
type promptContext struct {
	Language     Language
	LanguageName string
	Level        Level
	Beginner     bool
	UserMessage  string
}

// PromptSet renders the tutoring prompt templates.
type PromptSet struct {
	templates *template.Template
}

// NewPromptSet parses the embedded prompt templates.
func NewPromptSet() (*PromptSet, error) {
	tmpl, err := template.ParseFS(promptFS, "prompts/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing prompt templates: %w", err)
	}
	return &PromptSet{templates: tmpl}, nil
}

// Render renders a named template with the given language/level context.
func (p *PromptSet) Render(name string, language Language, level Level, userMessage string) (string, error) {
	t := p.templates.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}

	var sb strings.Builder
	err := t.Execute(&sb, promptContext{
		Language:     language,
		LanguageName: language.Name(),
		Level:        level,
		Beginner:     level.Beginner(),
		UserMessage:  userMessage,
	})
	if err != nil {
		return "", fmt.Errorf("rendering template %q: %w", name, err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// SystemPrompt renders the tutor persona prompt for a language and level.
func (p *PromptSet) SystemPrompt(language Language, level Level) (string, error) {
	return p.Render("system.tmpl", language, level, "")
}

// TutoringPrompt renders the per-turn prompt wrapping the learner's message.
func (p *PromptSet) TutoringPrompt(userMessage string, language Language, level Level) (string, error) {
	return p.Render("tutoring.tmpl", language, level, userMessage)
}

// StartMessage renders the level-appropriate welcome message.
func (p *PromptSet) StartMessage(language Language, level Level) (string, error) {
	return p.Render("start_message.tmpl", language, level, "")
}
