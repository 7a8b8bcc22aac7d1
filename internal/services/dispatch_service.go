package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"everkind/internal/models"
	"everkind/internal/providers"
)

var (
	// ErrNoProviders means no provider is configured at all
	ErrNoProviders = errors.New("no AI provider configured")
	// ErrAllProvidersFailed means every configured provider failed for this call
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// DispatchService tries a preferred provider first, then the remaining
// configured providers in priority order, for both single-shot and
// streaming calls. The attempted set makes the skip logic explicit: a
// provider is attempted at most once per call.
type DispatchService struct {
	providers []providers.Provider
	timeout   time.Duration
}

// NewDispatchService creates a dispatcher over a priority-ordered
// provider list. timeout bounds each individual provider attempt; zero
// leaves attempts bounded only by the caller's context.
func NewDispatchService(timeout time.Duration, list ...providers.Provider) *DispatchService {
	return &DispatchService{providers: list, timeout: timeout}
}

// HasConfigured reports whether at least one provider is configured
func (s *DispatchService) HasConfigured() bool {
	for _, p := range s.providers {
		if p.IsConfigured() {
			return true
		}
	}
	return false
}

// attemptOrder resolves the providers to try: the preferred override
// first when it names a configured provider, then the rest in priority
// order, skipping unconfigured providers and anything already listed.
func (s *DispatchService) attemptOrder(preferred string) []providers.Provider {
	attempted := make(map[string]bool, len(s.providers))
	var order []providers.Provider

	if preferred != "" {
		for _, p := range s.providers {
			if p.Name() == preferred && p.IsConfigured() {
				order = append(order, p)
				attempted[p.Name()] = true
				break
			}
		}
	}
	for _, p := range s.providers {
		if attempted[p.Name()] || !p.IsConfigured() {
			continue
		}
		order = append(order, p)
		attempted[p.Name()] = true
	}
	return order
}

func (s *DispatchService) attemptCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// send forwards ev to the consumer. A false return means the consumer
// cancelled and stopped reading; the sender must unwind instead of
// blocking on a full buffer forever.
func send(ctx context.Context, out chan<- models.StreamEvent, ev models.StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Complete dispatches a single-shot completion with automatic fallback.
// The first success wins; exhaustion surfaces the last observed error.
func (s *DispatchService) Complete(ctx context.Context, req models.CompletionRequest, preferred string) (*models.CompletionResult, error) {
	order := s.attemptOrder(preferred)
	if len(order) == 0 {
		return nil, ErrNoProviders
	}

	var lastErr error
	for _, p := range order {
		attemptCtx, cancel := s.attemptCtx(ctx)
		result, err := p.Complete(attemptCtx, req)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		log.Printf("⚠️  [DISPATCH] Provider %s failed: %v (trying next)", p.Name(), err)
		if ctx.Err() != nil {
			// The caller is gone; a timed-out attempt falls through, a
			// cancelled call does not.
			break
		}
	}

	return nil, fmt.Errorf("%w: last error: %v", ErrAllProvidersFailed, lastErr)
}

// Stream dispatches a streaming completion with automatic fallback.
//
// Fallback policy: an attempt is committed the moment its first content
// chunk is forwarded to the caller. A provider that fails before
// emitting any content is skipped silently and the next provider is
// tried; a provider that errors after content has been forwarded
// terminates the stream with that error. The caller therefore never
// sees partial content from a failed-over provider and never sees the
// same text twice.
func (s *DispatchService) Stream(ctx context.Context, req models.CompletionRequest, preferred string) <-chan models.StreamEvent {
	out := make(chan models.StreamEvent, 16)

	go func() {
		defer close(out)

		order := s.attemptOrder(preferred)
		if len(order) == 0 {
			send(ctx, out, models.StreamEvent{Kind: models.StreamError, Error: ErrNoProviders.Error()})
			return
		}

		lastErr := ""
		for _, p := range order {
			terminal, errMsg := s.streamAttempt(ctx, p, req, out)
			if terminal {
				return
			}
			lastErr = errMsg
			log.Printf("⚠️  [DISPATCH] Provider %s stream failed before emitting content: %s (trying next)", p.Name(), lastErr)
			if ctx.Err() != nil {
				send(ctx, out, models.StreamEvent{Kind: models.StreamError, Error: ctx.Err().Error()})
				return
			}
		}

		send(ctx, out, models.StreamEvent{Kind: models.StreamError, Error: fmt.Sprintf("%v: last error: %s", ErrAllProvidersFailed, lastErr)})
	}()

	return out
}

// streamAttempt plays one provider attempt against the output channel.
// terminal reports that the stream is over: a terminal event was
// forwarded, or the caller cancelled and stopped reading. A false
// terminal means the attempt failed before any content and the next
// provider may be tried; errMsg carries the failure.
func (s *DispatchService) streamAttempt(ctx context.Context, p providers.Provider, req models.CompletionRequest, out chan<- models.StreamEvent) (terminal bool, errMsg string) {
	attemptCtx, cancel := s.attemptCtx(ctx)
	// Cancelling the attempt context unwinds the adapter goroutine even
	// when its channel still holds undelivered events.
	defer cancel()

	committed := false
	for ev := range p.Stream(attemptCtx, req) {
		switch ev.Kind {
		case models.StreamContent:
			committed = true
			if !send(ctx, out, ev) {
				return true, ""
			}
		case models.StreamDone:
			send(ctx, out, ev)
			return true, ""
		case models.StreamError:
			if committed {
				// Content already reached the caller; no clean fallback exists.
				send(ctx, out, ev)
				return true, ""
			}
			return false, ev.Error
		}
	}

	// Channel closed without a terminal event.
	if committed {
		send(ctx, out, models.StreamEvent{Kind: models.StreamError, Error: "stream ended without terminal event", Provider: p.Name()})
		return true, ""
	}
	return false, "stream ended without terminal event"
}
