// Package slack implements the Slack chat channel using Socket Mode.
package slack

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/linguahq/lingua/internal/channel"
	"github.com/linguahq/lingua/internal/tutor"
)

const defaultLevel = "A2"

// Bot is a Slack bot that runs tutoring sessions over Socket Mode.
// Each thread is its own session: mention the bot with a language code to
// start, then keep replying in the thread.
type Bot struct {
	client    *slack.Client
	socket    *socketmode.Client
	languages []string
	tutor     channel.Tutor

	mu      sync.Mutex
	threads map[string]string // thread timestamp -> session ID
}

// NewBot creates a new Slack bot. Requires a bot token (xoxb-) and an
// app-level token (xapp-) with connections:write scope.
func NewBot(botToken, appToken string, languages []string, t channel.Tutor) *Bot {
	client := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	return &Bot{
		client:    client,
		socket:    socketmode.New(client),
		languages: languages,
		tutor:     t,
		threads:   make(map[string]string),
	}
}

// Name implements channel.Channel.
func (b *Bot) Name() string { return "slack" }

// Run starts the Socket Mode event loop. Blocks until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	go func() {
		for evt := range b.socket.Events {
			switch evt.Type {
			case socketmode.EventTypeConnected:
				log.Println("Slack bot connected via Socket Mode")
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				b.socket.Ack(*evt.Request)
				b.handleEvent(ctx, apiEvent)
			}
		}
	}()

	return b.socket.RunContext(ctx)
}

func (b *Bot) handleEvent(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		b.handleMention(ctx, ev)
	case *slackevents.MessageEvent:
		// Thread replies keep an existing session going. Ignore bot echoes
		// and top-level messages.
		if ev.BotID != "" || ev.ThreadTimeStamp == "" || ev.ThreadTimeStamp == ev.TimeStamp {
			return
		}
		b.handleThreadReply(ctx, ev)
	}
}

// handleMention starts a session in a new thread. The mention text may name
// a language code and level, e.g. "@lingua DE B1".
func (b *Bot) handleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	language, level := b.parseMention(ev.Text)
	thread := ev.TimeStamp

	sess, startMsg, err := b.tutor.StartSession(language, level)
	if err != nil {
		log.Printf("Slack: starting session in thread %s: %v", thread, err)
		b.post(ev.Channel, thread, "Could not start a session. Try again later.")
		return
	}

	b.mu.Lock()
	b.threads[thread] = sess.ID
	b.mu.Unlock()

	b.post(ev.Channel, thread, fmt.Sprintf("%s\n\n_Reply in this thread to practice. Language: %s, level: %s._",
		startMsg, language, level))
}

func (b *Bot) handleThreadReply(ctx context.Context, ev *slackevents.MessageEvent) {
	b.mu.Lock()
	sessionID, ok := b.threads[ev.ThreadTimeStamp]
	b.mu.Unlock()
	if !ok {
		return
	}

	resp, err := b.tutor.Chat(ctx, sessionID, ev.Text)
	if err != nil {
		b.mu.Lock()
		delete(b.threads, ev.ThreadTimeStamp)
		b.mu.Unlock()
		log.Printf("Slack: chat turn for session %s: %v", sessionID, err)
		b.post(ev.Channel, ev.ThreadTimeStamp, "That session is over. Mention me again to start a new one.")
		return
	}

	b.post(ev.Channel, ev.ThreadTimeStamp, formatResponse(resp))
}

// parseMention extracts a language code and level from mention text,
// falling back to the first enabled language and the default level.
func (b *Bot) parseMention(text string) (language, level string) {
	language, level = b.languages[0], defaultLevel
	for _, word := range strings.Fields(text) {
		token := strings.ToUpper(strings.Trim(word, ".,!?"))
		if _, err := tutor.ParseLanguage(token); err == nil && b.languageEnabled(token) {
			language = token
			continue
		}
		if _, err := tutor.ParseLevel(token); err == nil {
			level = token
		}
	}
	return language, level
}

// languageEnabled reports whether code is in the server's enabled list.
func (b *Bot) languageEnabled(code string) bool {
	for _, l := range b.languages {
		if l == code {
			return true
		}
	}
	return false
}

func (b *Bot) post(channelID, thread, text string) {
	_, _, err := b.client.PostMessage(channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(thread),
	)
	if err != nil {
		log.Printf("Slack: posting message to %s: %v", channelID, err)
	}
}

// formatResponse renders a tutoring turn using Slack mrkdwn.
func formatResponse(resp *tutor.ChatResponse) string {
	var sb strings.Builder

	sb.WriteString(resp.AIResponse)

	if len(resp.Corrections) > 0 {
		sb.WriteString("\n\n*Corrections:*")
		for _, c := range resp.Corrections {
			sb.WriteString(fmt.Sprintf("\n• ~%s~ → *%s* (%s)",
				c.Original, c.Corrected, strings.Join(c.Explanation, ": ")))
		}
	}

	if resp.NextPhrase != "" {
		sb.WriteString("\n\n*Try this:* ")
		sb.WriteString(resp.NextPhrase)
	}

	return sb.String()
}
