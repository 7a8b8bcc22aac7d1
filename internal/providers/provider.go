// Package providers normalizes heterogeneous AI backends onto one
// request/response/streaming contract.
package providers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"everkind/internal/models"
	"everkind/internal/tokens"
)

// Provider is the uniform adapter contract. Complete fails with an error
// on transport/parse failure or an empty reply. Stream never fails
// synchronously: all failures surface as a terminal error event. Every
// stream emits exactly one terminal "done" or "error" event, then the
// channel is closed. Adapters are stateless per call and safe for
// concurrent use.
type Provider interface {
	Name() string
	IsConfigured() bool
	Complete(ctx context.Context, req models.CompletionRequest) (*models.CompletionResult, error)
	Stream(ctx context.Context, req models.CompletionRequest) <-chan models.StreamEvent
}

var (
	// ErrNotConfigured means the provider has no API key
	ErrNotConfigured = errors.New("provider not configured")
	// ErrEmptyCompletion means the backend replied without any text
	ErrEmptyCompletion = errors.New("empty completion from provider")
)

var (
	httpClientOnce sync.Once
	httpClient     *http.Client
)

// sharedHTTPClient returns the process-wide pooled HTTP client, built on
// first use and reused for the process lifetime. The timeout is an upper
// bound on any single backend call; callers layer tighter deadlines via
// context.
func sharedHTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		httpClient = &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	})
	return httpClient
}

// emit forwards ev to the stream consumer. A false return means the
// consumer cancelled and stopped reading; the adapter must unwind so
// its deferred body close runs instead of blocking on a full buffer.
func emit(ctx context.Context, events chan<- models.StreamEvent, ev models.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// estimatedUsage builds the fallback usage triple for backends that do
// not report usage while streaming: completion tokens estimated from the
// emitted text, prompt tokens 0 flagged as unknown.
func estimatedUsage(emitted string) *models.TokenUsage {
	completion := tokens.Estimate(emitted)
	return &models.TokenUsage{
		PromptTokens:     0,
		CompletionTokens: completion,
		TotalTokens:      completion,
		EstimatedOnly:    true,
	}
}
