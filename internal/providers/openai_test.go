package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"everkind/internal/config"
	"everkind/internal/models"
)

func testRequest() models.CompletionRequest {
	return models.CompletionRequest{
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: "You are helpful"},
			{Role: models.RoleUser, Content: "hello"},
		},
		MaxTokens:   256,
		Temperature: 0.7,
	}
}

func collectEvents(ch <-chan models.StreamEvent) []models.StreamEvent {
	var out []models.StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestOpenAI_NotConfigured(t *testing.T) {
	p := NewOpenAI(config.ProviderConfig{})
	if p.IsConfigured() {
		t.Fatal("Expected unconfigured without API key")
	}
	if _, err := p.Complete(context.Background(), testRequest()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestOpenAI_Complete(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Stream bool `json:"stream"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Unexpected auth header %q", got)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, `{
			"model": "gpt-4o-mini",
			"choices": [{"message": {"content": "Hi there!"}}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 4, "total_tokens": 24}
		}`)
	}))
	defer server.Close()

	p := NewOpenAI(config.ProviderConfig{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-4o-mini"})
	result, err := p.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result.Text != "Hi there!" {
		t.Errorf("Unexpected text %q", result.Text)
	}
	if result.Usage.TotalTokens != 24 || result.Usage.EstimatedOnly {
		t.Errorf("Unexpected usage %+v", result.Usage)
	}
	if result.Provider != "openai" {
		t.Errorf("Unexpected provider %s", result.Provider)
	}

	// System message stays inline as the first message.
	if len(captured.Messages) != 2 || captured.Messages[0].Role != models.RoleSystem {
		t.Errorf("Expected inline system message, got %+v", captured.Messages)
	}
	if captured.Stream {
		t.Error("Expected stream=false on a sync completion")
	}
}

func TestOpenAI_CompleteEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": [{"message": {"content": "  "}}]}`)
	}))
	defer server.Close()

	p := NewOpenAI(config.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})
	if _, err := p.Complete(context.Background(), testRequest()); !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("Expected ErrEmptyCompletion, got %v", err)
	}
}

func TestOpenAI_CompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited"}}`)
	}))
	defer server.Close()

	p := NewOpenAI(config.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})
	_, err := p.Complete(context.Background(), testRequest())
	if err == nil || !strings.Contains(err.Error(), "status 429") {
		t.Errorf("Expected status 429 in error, got %v", err)
	}
}

func TestOpenAI_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo!\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{}}],\"usage\":{\"prompt_tokens\":12,\"completion_tokens\":2,\"total_tokens\":14}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := NewOpenAI(config.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})
	events := collectEvents(p.Stream(context.Background(), testRequest()))

	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Content != "Hel" || events[1].Content != "lo!" {
		t.Errorf("Unexpected content deltas: %+v", events[:2])
	}
	done := events[2]
	if done.Kind != models.StreamDone {
		t.Fatalf("Expected terminal done, got %+v", done)
	}
	if done.Usage == nil || done.Usage.TotalTokens != 14 || done.Usage.EstimatedOnly {
		t.Errorf("Expected reported usage, got %+v", done.Usage)
	}
}

func TestOpenAI_StreamEstimatedUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"twelve chars\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := NewOpenAI(config.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})
	events := collectEvents(p.Stream(context.Background(), testRequest()))

	done := events[len(events)-1]
	if done.Kind != models.StreamDone {
		t.Fatalf("Expected terminal done, got %+v", done)
	}
	if done.Usage == nil || !done.Usage.EstimatedOnly {
		t.Fatalf("Expected estimated usage fallback, got %+v", done.Usage)
	}
	// 12 chars at 0.25 tokens per char
	if done.Usage.CompletionTokens != 3 {
		t.Errorf("Expected 3 estimated completion tokens, got %d", done.Usage.CompletionTokens)
	}
	if done.Usage.PromptTokens != 0 {
		t.Errorf("Expected unknown prompt tokens reported as 0, got %d", done.Usage.PromptTokens)
	}
}

func TestOpenAI_StreamEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := NewOpenAI(config.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})
	events := collectEvents(p.Stream(context.Background(), testRequest()))

	if len(events) != 1 || events[0].Kind != models.StreamError {
		t.Fatalf("Expected single error event, got %+v", events)
	}
	if !strings.Contains(events[0].Error, ErrEmptyCompletion.Error()) {
		t.Errorf("Expected empty completion error, got %q", events[0].Error)
	}
}

// When the consumer cancels and walks away mid-stream, the adapter must
// unwind and close the response body so the server sees the disconnect
// instead of writing into a dead stream forever.
func TestOpenAI_StreamClientGone(t *testing.T) {
	handlerDone := make(chan struct{})
	chunk := strings.Repeat("x", 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(handlerDone)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for {
			if _, err := fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"%s\"}}]}\n\n", chunk); err != nil {
				return
			}
			flusher.Flush()
		}
	}))
	defer server.Close()

	p := NewOpenAI(config.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})
	ctx, cancel := context.WithCancel(context.Background())
	ch := p.Stream(ctx, testRequest())
	<-ch
	cancel()

	select {
	case <-handlerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("server still writing after caller cancellation")
	}
}
