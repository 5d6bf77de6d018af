package session_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/linguahq/lingua/internal/session"
)

// newTestStore creates a Store backed by a temporary SQLite database.
func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := session.NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// makeSession returns a minimal Session with sensible defaults.
func makeSession(id, language, level string) *session.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return &session.Session{
		ID:        id,
		Language:  language,
		Level:     level,
		Status:    session.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ---------------------------------------------------------------------------
// Store creation
// ---------------------------------------------------------------------------

func TestNewStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "new.db")
	store, err := session.NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewStore_InvalidPath(t *testing.T) {
	// A path under a non-existent directory should fail during migration or open.
	_, err := session.NewStore("/no/such/dir/test.db")
	if err == nil {
		t.Fatal("expected error for invalid path, got nil")
	}
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func TestCreateAndGetSession(t *testing.T) {
	store := newTestStore(t)

	want := makeSession("sess-1", "EN", "B1")
	if err := store.CreateSession(want); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := store.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.ID != want.ID || got.Language != "EN" || got.Level != "B1" {
		t.Errorf("GetSession = %+v, want %+v", got, want)
	}
	if got.Status != session.StatusActive {
		t.Errorf("Status = %q, want active", got.Status)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSession("missing")
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("GetSession(missing) = %v, want ErrNotFound", err)
	}
}

func TestCreateSession_DefaultsStatus(t *testing.T) {
	store := newTestStore(t)

	sess := makeSession("sess-2", "DE", "A1")
	sess.Status = ""
	if err := store.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.Status != session.StatusActive {
		t.Errorf("Status = %q, want active default", sess.Status)
	}
}

func TestListSessions_NewestFirst(t *testing.T) {
	store := newTestStore(t)

	older := makeSession("older", "EN", "A1")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := makeSession("newer", "PL", "C1")

	for _, s := range []*session.Session{older, newer} {
		if err := store.CreateSession(s); err != nil {
			t.Fatalf("CreateSession(%s): %v", s.ID, err)
		}
	}

	got, err := store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "newer" || got[1].ID != "older" {
		t.Errorf("order = [%s %s], want [newer older]", got[0].ID, got[1].ID)
	}
}

func TestUpdateSession(t *testing.T) {
	store := newTestStore(t)

	sess := makeSession("sess-3", "UA", "B2")
	if err := store.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	sess.Status = session.StatusExpired
	sess.Error = "session timed out due to inactivity"
	if err := store.UpdateSession(sess); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	got, err := store.GetSession("sess-3")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != session.StatusExpired {
		t.Errorf("Status = %q, want expired", got.Status)
	}
	if got.Error != "session timed out due to inactivity" {
		t.Errorf("Error = %q", got.Error)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("UpdatedAt = %v, want after CreatedAt %v", got.UpdatedAt, got.CreatedAt)
	}
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

func TestAddAndGetMessages(t *testing.T) {
	store := newTestStore(t)

	sess := makeSession("sess-4", "EN", "B1")
	if err := store.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	user := &session.Message{
		SessionID: sess.ID, Role: "user",
		Content: "I have important meeting tomorrow", CreatedAt: now,
	}
	assistant := &session.Message{
		SessionID: sess.ID, Role: "assistant",
		Content:     "Almost! Say: I have **an** important meeting tomorrow.",
		Corrections: `[{"original":"important meeting","corrected":"an important meeting"}]`,
		TokensUsed:  205,
		CreatedAt:   now,
	}

	for _, m := range []*session.Message{user, assistant} {
		if err := store.AddMessage(m); err != nil {
			t.Fatalf("AddMessage(%s): %v", m.Role, err)
		}
		if m.ID == 0 {
			t.Errorf("AddMessage(%s) did not assign an ID", m.Role)
		}
	}

	got, err := store.GetMessages(sess.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Role != "user" || got[1].Role != "assistant" {
		t.Errorf("roles = [%s %s], want [user assistant]", got[0].Role, got[1].Role)
	}
	if got[1].TokensUsed != 205 {
		t.Errorf("assistant TokensUsed = %d, want 205", got[1].TokensUsed)
	}
	if got[1].Corrections == "" {
		t.Error("assistant Corrections lost in round trip")
	}
}

func TestCountUserMessages(t *testing.T) {
	store := newTestStore(t)

	sess := makeSession("sess-5", "EN", "A2")
	if err := store.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := store.AddMessage(&session.Message{
			SessionID: sess.ID, Role: "user", Content: "hi", CreatedAt: now,
		}); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
		if err := store.AddMessage(&session.Message{
			SessionID: sess.ID, Role: "assistant", Content: "hello", CreatedAt: now,
		}); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}

	n, err := store.CountUserMessages(sess.ID)
	if err != nil {
		t.Fatalf("CountUserMessages: %v", err)
	}
	if n != 3 {
		t.Errorf("CountUserMessages = %d, want 3 (assistant messages excluded)", n)
	}
}

func TestGetMessages_EmptySession(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetMessages("no-such-session")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func TestAddAndGetEvents(t *testing.T) {
	store := newTestStore(t)

	sess := makeSession("sess-6", "DE", "B1")
	if err := store.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	now := time.Now().UTC()
	for _, typ := range []string{"status", "message", "correction"} {
		e := &session.Event{SessionID: sess.ID, Type: typ, Data: typ + "-data", CreatedAt: now}
		if err := store.AddEvent(e); err != nil {
			t.Fatalf("AddEvent(%s): %v", typ, err)
		}
		if e.ID == 0 {
			t.Errorf("AddEvent(%s) did not assign an ID", typ)
		}
	}

	all, err := store.GetEvents(sess.ID, 0)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}

	// afterID filters out already-seen events.
	tail, err := store.GetEvents(sess.ID, all[0].ID)
	if err != nil {
		t.Fatalf("GetEvents(afterID): %v", err)
	}
	if len(tail) != 2 {
		t.Errorf("len(tail) = %d, want 2", len(tail))
	}
}

// ---------------------------------------------------------------------------
// EventBus
// ---------------------------------------------------------------------------

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := session.NewEventBus()

	ch := bus.Subscribe("sess-7")
	defer bus.Unsubscribe("sess-7", ch)

	want := &session.Event{SessionID: "sess-7", Type: "message", Data: "hello"}
	bus.Publish("sess-7", want)

	select {
	case got := <-ch:
		if got.Data != "hello" {
			t.Errorf("Data = %q, want hello", got.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBus_PublishToOtherSession(t *testing.T) {
	bus := session.NewEventBus()

	ch := bus.Subscribe("sess-a")
	defer bus.Unsubscribe("sess-a", ch)

	bus.Publish("sess-b", &session.Event{SessionID: "sess-b", Type: "message"})

	select {
	case e := <-ch:
		t.Fatalf("received event %+v for another session", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := session.NewEventBus()

	ch := bus.Subscribe("sess-c")
	bus.Unsubscribe("sess-c", ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
}
