// Package telegram implements the Telegram chat channel using long polling.
package telegram

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/linguahq/lingua/internal/channel"
	"github.com/linguahq/lingua/internal/tutor"
)

const defaultLevel = "A2"

// chatState tracks per-chat preferences and the active session.
type chatState struct {
	language  string
	level     string
	sessionID string
}

// Bot is a Telegram bot that runs tutoring sessions over long polling.
type Bot struct {
	api       *tgbotapi.BotAPI
	languages []string
	tutor     channel.Tutor

	mu    sync.Mutex
	chats map[int64]*chatState
}

// NewBot creates a new Telegram bot.
func NewBot(token string, languages []string, t channel.Tutor) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return &Bot{
		api:       api,
		languages: languages,
		tutor:     t,
		chats:     make(map[int64]*chatState),
	}, nil
}

// Name implements channel.Channel.
func (b *Bot) Name() string { return "telegram" }

// Run starts the long polling loop. Blocks until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	log.Printf("Telegram bot authorized as @%s", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		b.handleCommand(chatID, msg)
		return
	}

	b.handleTurn(ctx, chatID, msg.Text)
}

func (b *Bot) handleCommand(chatID int64, msg *tgbotapi.Message) {
	arg := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		b.reply(chatID, helpText(b.languages))

	case "language":
		if arg == "" {
			b.reply(chatID, fmt.Sprintf("Usage: /language <code>\nAvailable: %s",
				strings.Join(b.languages, ", ")))
			return
		}
		code := strings.ToUpper(arg)
		if _, err := tutor.ParseLanguage(code); err != nil || !b.languageEnabled(code) {
			b.reply(chatID, fmt.Sprintf("Unknown language %q. Available: %s",
				arg, strings.Join(b.languages, ", ")))
			return
		}
		state := b.stateFor(chatID)
		b.mu.Lock()
		state.language = code
		state.sessionID = ""
		b.mu.Unlock()
		b.reply(chatID, fmt.Sprintf("Language set to %s. Send a message to start practicing.", code))

	case "level":
		if arg == "" {
			b.reply(chatID, "Usage: /level <A1|A2|B1|B2|C1|C2>")
			return
		}
		lvl := strings.ToUpper(arg)
		if _, err := tutor.ParseLevel(lvl); err != nil {
			b.reply(chatID, fmt.Sprintf("Unknown level %q. Use A1, A2, B1, B2, C1 or C2.", arg))
			return
		}
		state := b.stateFor(chatID)
		b.mu.Lock()
		state.level = lvl
		state.sessionID = ""
		b.mu.Unlock()
		b.reply(chatID, fmt.Sprintf("Level set to %s. Send a message to start practicing.", lvl))

	case "end":
		state := b.stateFor(chatID)
		b.mu.Lock()
		sessionID := state.sessionID
		state.sessionID = ""
		b.mu.Unlock()
		if sessionID == "" {
			b.reply(chatID, "No active session. Send a message to start one.")
			return
		}
		if _, err := b.tutor.EndSession(sessionID); err != nil {
			log.Printf("Telegram: ending session %s: %v", sessionID, err)
		}
		b.reply(chatID, "Session ended. Send a message to start a new one.")

	case "status":
		state := b.stateFor(chatID)
		b.mu.Lock()
		sessionID := state.sessionID
		language, level := state.language, state.level
		b.mu.Unlock()
		if sessionID == "" {
			b.reply(chatID, fmt.Sprintf("No active session.\nLanguage: %s\nLevel: %s", language, level))
			return
		}
		sess, count, err := b.tutor.SessionInfo(sessionID)
		if err != nil {
			b.reply(chatID, "Session not found. Send a message to start a new one.")
			return
		}
		b.reply(chatID, fmt.Sprintf("Session: %s\nLanguage: %s\nLevel: %s\nStatus: %s\nMessages: %d",
			sess.ID, sess.Language, sess.Level, sess.Status, count))

	default:
		b.reply(chatID, "Unknown command. Try /help.")
	}
}

// handleTurn runs one tutoring turn, starting a session first if needed.
func (b *Bot) handleTurn(ctx context.Context, chatID int64, text string) {
	state := b.stateFor(chatID)

	b.mu.Lock()
	sessionID := state.sessionID
	language, level := state.language, state.level
	b.mu.Unlock()

	if sessionID == "" {
		sess, startMsg, err := b.tutor.StartSession(language, level)
		if err != nil {
			log.Printf("Telegram: starting session for chat %d: %v", chatID, err)
			b.reply(chatID, "Could not start a session. Try again later.")
			return
		}
		b.mu.Lock()
		state.sessionID = sess.ID
		sessionID = sess.ID
		b.mu.Unlock()
		b.reply(chatID, startMsg)
	}

	resp, err := b.tutor.Chat(ctx, sessionID, text)
	if err != nil {
		// Expired or capped sessions roll over into a fresh one on the
		// next message.
		b.mu.Lock()
		state.sessionID = ""
		b.mu.Unlock()
		log.Printf("Telegram: chat turn for session %s: %v", sessionID, err)
		b.reply(chatID, "That session is over. Send your message again to start a new one.")
		return
	}

	b.replyMarkdown(chatID, formatResponse(resp))
}

// languageEnabled reports whether code is in the server's enabled list.
// ParseLanguage alone is not enough: a known code can still be disabled.
func (b *Bot) languageEnabled(code string) bool {
	for _, l := range b.languages {
		if l == code {
			return true
		}
	}
	return false
}

func (b *Bot) stateFor(chatID int64) *chatState {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.chats[chatID]
	if !ok {
		state = &chatState{language: b.languages[0], level: defaultLevel}
		b.chats[chatID] = state
	}
	return state
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Telegram: sending message to chat %d: %v", chatID, err)
	}
}

func (b *Bot) replyMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.api.Send(msg); err != nil {
		// MarkdownV2 is strict; fall back to plain text.
		plain := tgbotapi.NewMessage(chatID, stripMarkdown(text))
		if _, err := b.api.Send(plain); err != nil {
			log.Printf("Telegram: sending message to chat %d: %v", chatID, err)
		}
	}
}

// formatResponse renders a tutoring turn for Telegram in MarkdownV2.
func formatResponse(resp *tutor.ChatResponse) string {
	var sb strings.Builder

	sb.WriteString(escapeMarkdown(resp.AIResponse))

	if len(resp.Corrections) > 0 {
		sb.WriteString("\n\n*Corrections:*")
		for _, c := range resp.Corrections {
			sb.WriteString(fmt.Sprintf("\n~%s~ → *%s*\n_%s_",
				escapeMarkdown(c.Original),
				escapeMarkdown(c.Corrected),
				escapeMarkdown(strings.Join(c.Explanation, ": "))))
		}
	}

	if resp.NextPhrase != "" {
		sb.WriteString("\n\n*Try this:* ")
		sb.WriteString(escapeMarkdown(resp.NextPhrase))
	}

	return sb.String()
}

func helpText(languages []string) string {
	return fmt.Sprintf(`I'm Lingua, your language tutor. Send me a message in the language you're learning and I'll correct it and keep the conversation going.

Commands:
/language <code> - pick a language (%s)
/level <lvl> - pick your level (A1-C2)
/status - show the current session
/end - end the current session
/help - show this message`, strings.Join(languages, ", "))
}

// escapeMarkdown escapes Telegram MarkdownV2 special characters.
func escapeMarkdown(s string) string {
	special := []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	for _, ch := range special {
		s = strings.ReplaceAll(s, ch, "\\"+ch)
	}
	return s
}

// stripMarkdown removes MarkdownV2 escaping and formatting characters.
func stripMarkdown(s string) string {
	s = strings.ReplaceAll(s, "\\", "")
	for _, ch := range []string{"*", "_", "~"} {
		s = strings.ReplaceAll(s, ch, "")
	}
	return s
}
