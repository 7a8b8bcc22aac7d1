package models

import "time"

// Message roles understood by every provider adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a single turn in a conversation
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PersonaID string    `json:"persona_id"`
	SessionID string    `json:"session_id,omitempty"`
	Role      string    `json:"role"` // "user", "assistant", "system"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSession is a bounded window of continuous conversation between one
// user and one persona. At most one active session per (user, persona)
// within a rolling 24h window.
type ChatSession struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	PersonaID    string     `json:"persona_id"`
	Active       bool       `json:"active"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	MessageCount int        `json:"message_count"`
}

// CompletionRequest is the abstract outbound call shared by all provider
// adapters. Messages are ordered; the system message, when present, is
// always first.
type CompletionRequest struct {
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Model       string        `json:"model,omitempty"` // optional per-call override
}

// TokenUsage is the abstract usage triple reported by a backend.
// PromptTokens == 0 with EstimatedOnly set means usage was not reported
// and completion tokens were estimated from emitted text.
type TokenUsage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	EstimatedOnly    bool `json:"estimated_only,omitempty"`
}

// CompletionResult is the abstract backend reply
type CompletionResult struct {
	Text     string     `json:"text"`
	Usage    TokenUsage `json:"usage"`
	Model    string     `json:"model"`
	Provider string     `json:"provider"`
}

// Stream event kinds. A stream terminates with exactly one "done" or one
// "error", never both, and the terminal event is always last.
const (
	StreamContent = "content"
	StreamDone    = "done"
	StreamError   = "error"
)

// StreamEvent is one unit of a streaming reply
type StreamEvent struct {
	Kind        string      `json:"kind"` // "content", "done", "error"
	Content     string      `json:"content,omitempty"`
	Usage       *TokenUsage `json:"usage,omitempty"`
	Error       string      `json:"error,omitempty"`
	Provider    string      `json:"provider,omitempty"`
	PersonaID   string      `json:"persona_id,omitempty"`
	PersonaName string      `json:"persona_name,omitempty"`
	SessionID   string      `json:"session_id,omitempty"`
}

// TurnRequest is the caller-facing input for one user-visible turn.
// A non-empty ConversationID opts the turn into session handling and
// history; sessionless turns skip history entirely.
type TurnRequest struct {
	UserID         string `json:"user_id"`
	PersonaID      string `json:"persona_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Provider       string `json:"provider,omitempty"` // preferred provider override
}

// TurnResult is the synchronous turn reply
type TurnResult struct {
	Reply       string `json:"reply"`
	PersonaID   string `json:"persona_id"`
	PersonaName string `json:"persona_name"`
	SessionID   string `json:"session_id,omitempty"`
	TotalTokens int    `json:"total_tokens"`
	Provider    string `json:"provider"`
}
