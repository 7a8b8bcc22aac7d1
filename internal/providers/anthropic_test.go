package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"everkind/internal/config"
	"everkind/internal/models"
)

func TestAnthropic_SystemRoleExtraction(t *testing.T) {
	var captured struct {
		System   string `json:"system"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("Unexpected api key header %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicVersion {
			t.Errorf("Unexpected version header %q", got)
		}
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, `{
			"model": "claude-3-5-haiku-20241022",
			"content": [{"type": "text", "text": "Hello!"}],
			"usage": {"input_tokens": 30, "output_tokens": 3}
		}`)
	}))
	defer server.Close()

	p := NewAnthropic(config.ProviderConfig{APIKey: "test-key", BaseURL: server.URL, Model: "claude-3-5-haiku-20241022"})
	result, err := p.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result.Text != "Hello!" {
		t.Errorf("Unexpected text %q", result.Text)
	}
	if result.Usage.TotalTokens != 33 {
		t.Errorf("Expected input+output total, got %d", result.Usage.TotalTokens)
	}

	// System prompt leaves the message list and rides the system field.
	if captured.System != "You are helpful" {
		t.Errorf("Expected system prompt out-of-band, got %q", captured.System)
	}
	for _, m := range captured.Messages {
		if m.Role == models.RoleSystem {
			t.Errorf("System role leaked into message list: %+v", captured.Messages)
		}
	}
	if captured.MaxTokens != 256 {
		t.Errorf("Expected max_tokens 256, got %d", captured.MaxTokens)
	}
}

func TestAnthropic_DefaultMaxTokens(t *testing.T) {
	req := testRequest()
	req.MaxTokens = 0
	body := NewAnthropic(config.ProviderConfig{APIKey: "k", Model: "m"}).buildRequest(req, false)
	if body.MaxTokens != 1024 {
		t.Errorf("Expected mandatory max_tokens default 1024, got %d", body.MaxTokens)
	}
}

func TestAnthropic_CompleteEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content": [{"type": "tool_use", "text": ""}]}`)
	}))
	defer server.Close()

	p := NewAnthropic(config.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})
	if _, err := p.Complete(context.Background(), testRequest()); !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("Expected ErrEmptyCompletion, got %v", err)
	}
}

func TestAnthropic_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\n")
		fmt.Fprint(w, "data: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":25}}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Good \"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"morning\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":4}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"message_stop\"}\n\n")
	}))
	defer server.Close()

	p := NewAnthropic(config.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})
	events := collectEvents(p.Stream(context.Background(), testRequest()))

	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Content+events[1].Content != "Good morning" {
		t.Errorf("Unexpected content deltas: %+v", events[:2])
	}
	done := events[2]
	if done.Kind != models.StreamDone {
		t.Fatalf("Expected terminal done, got %+v", done)
	}
	if done.Usage == nil || done.Usage.PromptTokens != 25 || done.Usage.CompletionTokens != 4 || done.Usage.TotalTokens != 29 {
		t.Errorf("Unexpected usage %+v", done.Usage)
	}
}

func TestAnthropic_StreamErrorFrame(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"par\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"error\",\"error\":{\"message\":\"overloaded\"}}\n\n")
	}))
	defer server.Close()

	p := NewAnthropic(config.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})
	events := collectEvents(p.Stream(context.Background(), testRequest()))

	last := events[len(events)-1]
	if last.Kind != models.StreamError || last.Error != "overloaded" {
		t.Fatalf("Expected terminal error frame, got %+v", last)
	}
}

func TestAnthropic_StreamEstimatedUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"no usage frames\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"message_stop\"}\n\n")
	}))
	defer server.Close()

	p := NewAnthropic(config.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})
	events := collectEvents(p.Stream(context.Background(), testRequest()))

	done := events[len(events)-1]
	if done.Kind != models.StreamDone {
		t.Fatalf("Expected terminal done, got %+v", done)
	}
	if done.Usage == nil || !done.Usage.EstimatedOnly {
		t.Errorf("Expected estimated usage fallback, got %+v", done.Usage)
	}
}
