package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"everkind/internal/config"
	"everkind/internal/models"
)

func TestGemini_RoleMapping(t *testing.T) {
	req := models.CompletionRequest{
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: "be kind"},
			{Role: models.RoleUser, Content: "hi"},
			{Role: models.RoleAssistant, Content: "hello"},
			{Role: models.RoleUser, Content: "how are you"},
		},
	}
	body, _ := NewGemini(config.ProviderConfig{APIKey: "k", Model: "m"}).buildRequest(req)

	if body.SystemInstruction == nil || body.SystemInstruction.Parts[0].Text != "be kind" {
		t.Fatalf("Expected system message as systemInstruction, got %+v", body.SystemInstruction)
	}
	roles := make([]string, 0, len(body.Contents))
	for _, c := range body.Contents {
		roles = append(roles, c.Role)
	}
	if got := strings.Join(roles, ","); got != "user,model,user" {
		t.Errorf("Expected user,model,user roles, got %s", got)
	}
}

func TestGemini_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("Unexpected api key header %q", got)
		}
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "Hi!"}}}},
			},
			"usageMetadata": map[string]int{
				"promptTokenCount": 10, "candidatesTokenCount": 2, "totalTokenCount": 12,
			},
		})
	}))
	defer server.Close()

	p := NewGemini(config.ProviderConfig{APIKey: "test-key", BaseURL: server.URL, Model: "gemini-2.0-flash"})
	result, err := p.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result.Text != "Hi!" {
		t.Errorf("Unexpected text %q", result.Text)
	}
	if result.Usage.TotalTokens != 12 {
		t.Errorf("Unexpected usage %+v", result.Usage)
	}
}

func TestGemini_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("Expected alt=sse, got %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"One \"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"two\"}]}}],\"usageMetadata\":{\"promptTokenCount\":8,\"candidatesTokenCount\":2,\"totalTokenCount\":10}}\n\n")
	}))
	defer server.Close()

	p := NewGemini(config.ProviderConfig{APIKey: "test-key", BaseURL: server.URL, Model: "gemini-2.0-flash"})
	events := collectEvents(p.Stream(context.Background(), testRequest()))

	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Content+events[1].Content != "One two" {
		t.Errorf("Unexpected deltas: %+v", events[:2])
	}
	done := events[2]
	if done.Kind != models.StreamDone || done.Usage == nil || done.Usage.TotalTokens != 10 {
		t.Errorf("Unexpected terminal event %+v", done)
	}
}
