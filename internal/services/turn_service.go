package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"everkind/internal/logging"
	"everkind/internal/models"
	"everkind/internal/personas"
)

// TurnService composes context assembly, history, dispatch, and
// persistence into one user-visible turn.
type TurnService struct {
	dispatch      *DispatchService
	contexts      *ContextService
	conversations *ConversationService

	maxReplyTokens int
	historyBudget  int
}

// NewTurnService creates a new turn service
func NewTurnService(dispatch *DispatchService, contexts *ContextService, conversations *ConversationService, maxReplyTokens, historyBudget int) *TurnService {
	return &TurnService{
		dispatch:       dispatch,
		contexts:       contexts,
		conversations:  conversations,
		maxReplyTokens: maxReplyTokens,
		historyBudget:  historyBudget,
	}
}

// turnSetup carries the state shared by Chat and ChatStream
type turnSetup struct {
	persona   personas.Persona
	sessionID string
	messages  []models.ChatMessage
}

// prepare runs steps 1-6 of a turn: configuration check, persona
// resolution, context assembly, optional session resolution, history
// windowing, and prompt composition.
func (s *TurnService) prepare(req models.TurnRequest) (*turnSetup, error) {
	if !s.dispatch.HasConfigured() {
		return nil, ErrNoProviders
	}

	persona, err := personas.Get(personas.ID(req.PersonaID))
	if err != nil {
		return nil, err
	}

	userCtx, err := s.contexts.BuildContext(req.UserID)
	if err != nil {
		return nil, err
	}

	setup := &turnSetup{persona: persona}

	// A caller-supplied conversation id opts the turn into session
	// handling; sessionless turns skip history entirely.
	var history []models.ChatMessage
	if req.ConversationID != "" {
		setup.sessionID, err = s.conversations.GetOrCreateSession(req.UserID, req.PersonaID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve session: %w", err)
		}
		raw, err := s.conversations.History(req.UserID, req.PersonaID, 50)
		if err != nil {
			log.Printf("⚠️  [TURN] History load failed for %s/%s: %v (continuing without)", req.UserID, req.PersonaID, err)
		} else {
			history = Window(raw, s.historyBudget)
		}
	}

	system := persona.PromptFragment + "\n\n# What you know about this user\n\n" + s.contexts.Render(userCtx)

	messages := make([]models.ChatMessage, 0, len(history)+2)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: system})
	for _, m := range history {
		messages = append(messages, models.ChatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: req.Message})
	setup.messages = messages

	return setup, nil
}

func (s *TurnService) completionRequest(setup *turnSetup) models.CompletionRequest {
	return models.CompletionRequest{
		Messages:    setup.messages,
		MaxTokens:   s.maxReplyTokens,
		Temperature: 0.7,
	}
}

// Chat runs one synchronous turn: assemble, dispatch, persist, reply.
// Persistence is best effort and never blocks the returned result.
func (s *TurnService) Chat(ctx context.Context, req models.TurnRequest) (*models.TurnResult, error) {
	setup, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	result, err := s.dispatch.Complete(ctx, s.completionRequest(setup), req.Provider)
	if err != nil {
		return nil, err
	}

	s.conversations.AppendMessage(req.UserID, req.PersonaID, models.RoleUser, req.Message, setup.sessionID)
	s.conversations.AppendMessage(req.UserID, req.PersonaID, models.RoleAssistant, result.Text, setup.sessionID)

	logging.WithTurn(req.UserID, req.PersonaID, setup.sessionID).Info("turn completed",
		"provider", result.Provider,
		"total_tokens", result.Usage.TotalTokens,
	)

	return &models.TurnResult{
		Reply:       result.Text,
		PersonaID:   string(setup.persona.ID),
		PersonaName: setup.persona.Name,
		SessionID:   setup.sessionID,
		TotalTokens: result.Usage.TotalTokens,
		Provider:    result.Provider,
	}, nil
}

// ChatStream runs one streaming turn. The user message is persisted
// before the backend call so a crash mid-stream cannot lose it; the
// assistant message is persisted only on the terminal done event, fully
// or not at all. The returned sequence terminates with exactly one done
// or error event and the channel is then closed.
func (s *TurnService) ChatStream(ctx context.Context, req models.TurnRequest) <-chan models.StreamEvent {
	out := make(chan models.StreamEvent, 16)

	go func() {
		defer close(out)

		setup, err := s.prepare(req)
		if err != nil {
			send(ctx, out, models.StreamEvent{Kind: models.StreamError, Error: err.Error()})
			return
		}

		s.conversations.AppendMessage(req.UserID, req.PersonaID, models.RoleUser, req.Message, setup.sessionID)

		var full strings.Builder
		for ev := range s.dispatch.Stream(ctx, s.completionRequest(setup), req.Provider) {
			switch ev.Kind {
			case models.StreamContent:
				full.WriteString(ev.Content)
				if !send(ctx, out, ev) {
					return
				}
			case models.StreamError:
				send(ctx, out, ev)
				return
			case models.StreamDone:
				if full.Len() > 0 {
					s.conversations.AppendMessage(req.UserID, req.PersonaID, models.RoleAssistant, full.String(), setup.sessionID)
				}
				ev.PersonaID = string(setup.persona.ID)
				ev.PersonaName = setup.persona.Name
				ev.SessionID = setup.sessionID
				logging.WithTurn(req.UserID, req.PersonaID, setup.sessionID).Info("stream completed",
					"provider", ev.Provider,
				)
				send(ctx, out, ev)
				return
			}
		}

		// Dispatcher always emits a terminal event; reaching here means
		// the stream was torn down early (caller cancellation).
		send(ctx, out, models.StreamEvent{Kind: models.StreamError, Error: "stream cancelled"})
	}()

	return out
}
