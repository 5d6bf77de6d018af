// Package server provides the Lingua HTTP API server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/linguahq/lingua/internal/channel"
	"github.com/linguahq/lingua/internal/channel/slack"
	"github.com/linguahq/lingua/internal/channel/telegram"
	"github.com/linguahq/lingua/internal/config"
	"github.com/linguahq/lingua/internal/session"
	"github.com/linguahq/lingua/internal/tutor"
)

// Sentinel errors for session-level checks shared by HTTP and chat channels.
var (
	// ErrSessionExpired means the session no longer accepts messages.
	ErrSessionExpired = errors.New("session expired")
	// ErrMessageLimit means the per-session message cap was reached.
	ErrMessageLimit = errors.New("message limit reached")
	// ErrInvalidInput means the caller named an unknown or disabled
	// language or level.
	ErrInvalidInput = errors.New("invalid input")
)

// Responder runs tutoring turns. Implemented by tutor.Engine; faked in tests.
type Responder interface {
	Respond(ctx context.Context, req *tutor.ChatRequest) (*tutor.ChatResponse, error)
	StartMessage(language tutor.Language, level tutor.Level) (string, error)
}

// Server is the Lingua HTTP API server.
type Server struct {
	config   *config.Config
	store    *session.Store
	bus      *session.EventBus
	engine   Responder
	metrics  *Metrics
	router   chi.Router
	channels []channel.Channel
}

// New creates a new Server with all dependencies.
func New(cfg *config.Config, engine Responder) (*Server, error) {
	store, err := session.NewStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	s := &Server{
		config:  cfg,
		store:   store,
		bus:     session.NewEventBus(),
		engine:  engine,
		metrics: NewMetrics(),
	}

	s.router = s.buildRouter()

	// Initialize the Telegram bot if configured.
	if cfg.TelegramEnabled() {
		tgBot, err := telegram.NewBot(cfg.TelegramBotToken, cfg.Languages, s)
		if err != nil {
			log.Printf("Warning: failed to initialize Telegram bot: %v", err)
		} else {
			s.channels = append(s.channels, tgBot)
			log.Println("Telegram bot enabled (long polling)")
		}
	}

	// Initialize the Slack bot if configured.
	if cfg.SlackEnabled() {
		s.channels = append(s.channels, slack.NewBot(
			cfg.SlackBotToken,
			cfg.SlackAppToken,
			cfg.Languages,
			s,
		))
		log.Println("Slack bot enabled (Socket Mode)")
	}

	return s, nil
}

// Start starts the HTTP server and any configured chat channels.
// Blocks until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	// Start the idle session reaper.
	go s.reapIdleSessions(ctx)

	// Start chat channels in the background.
	for _, ch := range s.channels {
		go func(ch channel.Channel) {
			if err := ch.Run(ctx); err != nil {
				log.Printf("%s channel error: %v", ch.Name(), err)
			}
		}(ch)
	}

	srv := &http.Server{
		Addr:    s.config.ServerAddr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Lingua server listening on %s", s.config.ServerAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return s.store.Close()
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(s.countRequests)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/languages", s.handleLanguages)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/sessions/{id}/messages", s.handleGetMessages)
		r.Get("/sessions/{id}/events", s.handleSessionEvents)
		r.Post("/sessions/{id}/end", s.handleEndSession)
	})

	return r
}

// countRequests is a middleware that feeds the requests_total counter.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.recordRequest()
		next.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP handler (exposed for tests).
func (s *Server) Handler() http.Handler {
	return s.router
}

// --- Request/Response types ---

type createSessionRequest struct {
	Language string `json:"language"`
	Level    string `json:"level"`
}

type createSessionResponse struct {
	ID           string    `json:"id"`
	Language     string    `json:"language"`
	Level        string    `json:"level"`
	Status       string    `json:"status"`
	StartMessage string    `json:"start_message"`
	CreatedAt    time.Time `json:"created_at"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Shared tutoring operations ---
// These are the entry points used by both the HTTP handlers and the chat
// channels (Telegram, Slack).

// StartSession creates a new tutoring session and returns it along with the
// level-appropriate welcome message.
func (s *Server) StartSession(language, level string) (*session.Session, string, error) {
	lang, err := tutor.ParseLanguage(language)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	lvl, err := tutor.ParseLevel(level)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !s.config.SupportsLanguage(language) {
		return nil, "", fmt.Errorf("%w: language %q is not enabled on this server", ErrInvalidInput, language)
	}

	startMsg, err := s.engine.StartMessage(lang, lvl)
	if err != nil {
		return nil, "", fmt.Errorf("rendering start message: %w", err)
	}

	now := time.Now().UTC()
	sess := &session.Session{
		ID:        uuid.New().String(),
		Language:  language,
		Level:     level,
		Status:    session.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(sess); err != nil {
		return nil, "", fmt.Errorf("creating session: %w", err)
	}

	if err := s.store.AddMessage(&session.Message{
		SessionID: sess.ID,
		Role:      "assistant",
		Content:   startMsg,
		CreatedAt: now,
	}); err != nil {
		log.Printf("Error storing start message for session %s: %v", sess.ID, err)
	}

	s.metrics.recordSessionStart()
	s.emitEvent(sess.ID, "status", fmt.Sprintf("Session started (%s, %s)", language, level))
	s.emitEvent(sess.ID, "message", startMsg)

	return sess, startMsg, nil
}

// Chat runs one tutoring turn in an existing session: validates the session,
// enforces the message cap, calls the engine, and persists both messages.
func (s *Server) Chat(ctx context.Context, sessionID, message string) (*tutor.ChatResponse, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusActive {
		return nil, fmt.Errorf("%w: session is %s", ErrSessionExpired, sess.Status)
	}

	count, err := s.store.CountUserMessages(sessionID)
	if err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}
	if count >= s.config.SessionMaxMessages {
		return nil, fmt.Errorf("%w (%d messages)", ErrMessageLimit, s.config.SessionMaxMessages)
	}

	req := &tutor.ChatRequest{
		Message:   message,
		Language:  tutor.Language(sess.Language),
		Level:     tutor.Level(sess.Level),
		SessionID: sessionID,
	}

	resp, err := s.engine.Respond(ctx, req)
	if err != nil {
		if errors.Is(err, tutor.ErrLLM) {
			s.metrics.recordLLMError()
			s.emitEvent(sessionID, "error", err.Error())
		}
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.store.AddMessage(&session.Message{
		SessionID: sessionID,
		Role:      "user",
		Content:   message,
		CreatedAt: now,
	}); err != nil {
		log.Printf("Error storing user message for session %s: %v", sessionID, err)
	}

	correctionsJSON := ""
	if len(resp.Corrections) > 0 {
		if data, err := json.Marshal(resp.Corrections); err == nil {
			correctionsJSON = string(data)
		}
	}
	if err := s.store.AddMessage(&session.Message{
		SessionID:   sessionID,
		Role:        "assistant",
		Content:     resp.AIResponse + "\n\n" + resp.NextPhrase,
		Corrections: correctionsJSON,
		TokensUsed:  resp.TokensUsed,
		CreatedAt:   now,
	}); err != nil {
		log.Printf("Error storing assistant message for session %s: %v", sessionID, err)
	}

	// Bump updated_at so the idle reaper sees recent activity.
	if err := s.store.UpdateSession(sess); err != nil {
		log.Printf("Error updating session %s: %v", sessionID, err)
	}

	s.metrics.recordChatTurn(len(resp.Corrections), resp.TokensUsed)
	s.emitEvent(sessionID, "message", resp.AIResponse)
	if correctionsJSON != "" {
		s.emitEvent(sessionID, "correction", correctionsJSON)
	}

	return resp, nil
}

// EndSession marks a session expired at the learner's request.
func (s *Server) EndSession(sessionID string) (*session.Session, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == session.StatusActive {
		sess.Status = session.StatusExpired
		sess.Error = "ended by user"
		if err := s.store.UpdateSession(sess); err != nil {
			return nil, err
		}
		s.metrics.recordSessionExpiry()
		s.emitEvent(sessionID, "done", "Session ended")
	}
	return sess, nil
}

// SessionInfo returns a session and its learner message count.
func (s *Server) SessionInfo(sessionID string) (*session.Session, int, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.store.CountUserMessages(sessionID)
	if err != nil {
		return nil, 0, err
	}
	return sess, count, nil
}

// reapIdleSessions periodically expires sessions that have been inactive
// longer than SessionIdleTimeout.
func (s *Server) reapIdleSessions(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expireIdleSessions()
		}
	}
}

// expireIdleSessions runs one reaper sweep.
func (s *Server) expireIdleSessions() {
	sessions, err := s.store.ListSessions()
	if err != nil {
		return
	}
	for _, sess := range sessions {
		if sess.Status != session.StatusActive {
			continue
		}
		if time.Since(sess.UpdatedAt) > s.config.SessionIdleTimeout {
			log.Printf("Expiring idle session %s (idle for %v)", sess.ID, time.Since(sess.UpdatedAt))
			sess.Status = session.StatusExpired
			sess.Error = "session timed out due to inactivity"
			if err := s.store.UpdateSession(sess); err != nil {
				log.Printf("Error updating session %s: %v", sess.ID, err)
			}
			s.metrics.recordSessionExpiry()
			s.emitEvent(sess.ID, "status", "Session expired (idle timeout)")
		}
	}
}

// --- Handlers ---

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req tutor.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.config.SupportsLanguage(string(req.Language)) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("language %q is not enabled on this server", req.Language))
		return
	}

	resp, err := s.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrMessageLimit):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, tutor.ErrLLM):
			log.Printf("Chat turn failed for session %s: %v", req.SessionID, err)
			writeError(w, http.StatusBadGateway, "tutoring service temporarily unavailable")
		default:
			log.Printf("Chat turn failed for session %s: %v", req.SessionID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, startMsg, err := s.StartSession(req.Language, req.Level)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("Error creating session: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		ID:           sess.ID,
		Language:     sess.Language,
		Level:        sess.Level,
		Status:       string(sess.Status),
		StartMessage: startMsg,
		CreatedAt:    sess.CreatedAt,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		log.Printf("Error listing sessions: %v", err)
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.store.GetSession(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetSession(id); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	msgs, err := s.store.GetMessages(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}
	if msgs == nil {
		msgs = []*session.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.EndSession(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Verify session exists.
	if _, err := s.store.GetSession(id); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Send historical events first.
	events, _ := s.store.GetEvents(id, 0)
	for _, e := range events {
		writeSSE(w, e)
	}
	flusher.Flush()

	// Subscribe to real-time events.
	ch := s.bus.Subscribe(id)
	defer s.bus.Unsubscribe(id, ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Languages)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		Message: "Lingua tutor is running",
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) emitEvent(sessionID, eventType, data string) {
	event := &session.Event{
		SessionID: sessionID,
		Type:      eventType,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AddEvent(event); err != nil {
		log.Printf("Error storing event: %v", err)
	}
	s.bus.Publish(sessionID, event)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeSSE(w http.ResponseWriter, event *session.Event) {
	data, _ := json.Marshal(event)
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.ID, event.Type, string(data))
}
