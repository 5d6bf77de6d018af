package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/linguahq/lingua/internal/llm/openai"
)

// newTestServer returns an httptest server that records the request body and
// replies with the given handler.
func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_Success(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"content": "Hallo! Wie geht es dir?"}}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 85, "total_tokens": 205}
		}`))
	})

	client := openai.New("sk-test-key", openai.Options{
		Model:       "gpt-4o-mini",
		MaxTokens:   500,
		Temperature: 0.7,
		BaseURL:     srv.URL,
	})

	got, err := client.Complete(context.Background(), "You are a tutor.", "Hallo")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Text != "Hallo! Wie geht es dir?" {
		t.Errorf("Text = %q, want reply content", got.Text)
	}
	if got.TokensUsed != 205 {
		t.Errorf("TokensUsed = %d, want 205", got.TokensUsed)
	}

	if gotAuth != "Bearer sk-test-key" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("request model = %v, want gpt-4o-mini", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(500) {
		t.Errorf("request max_tokens = %v, want 500", gotBody["max_tokens"])
	}
	if gotBody["temperature"] != 0.7 {
		t.Errorf("request temperature = %v, want 0.7", gotBody["temperature"])
	}
	msgs, ok := gotBody["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("request messages = %v, want system+user pair", gotBody["messages"])
	}
}

func TestComplete_MissingUsage(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	})

	client := openai.New("sk-test-key", openai.Options{BaseURL: srv.URL})
	got, err := client.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.TokensUsed != 0 {
		t.Errorf("TokensUsed = %d, want 0 when usage is absent", got.TokensUsed)
	}
}

func TestComplete_APIError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "Incorrect API key provided"}}`))
	})

	client := openai.New("sk-bad-key", openai.Options{BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("Complete = nil error, want API error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want status code included", err)
	}
	if !strings.Contains(err.Error(), "Incorrect API key") {
		t.Errorf("error = %q, want provider message included", err)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	})

	client := openai.New("sk-test-key", openai.Options{BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("Complete = nil error, want error for empty choices")
	}
	if !strings.Contains(err.Error(), "no choices") {
		t.Errorf("error = %q, want 'no choices'", err)
	}
}

func TestComplete_ContextCanceled(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	})

	client := openai.New("sk-test-key", openai.Options{BaseURL: srv.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Complete(ctx, "sys", "user"); err == nil {
		t.Fatal("Complete = nil error, want context error")
	}
}
