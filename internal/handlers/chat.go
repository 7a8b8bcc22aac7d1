package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"everkind/internal/models"
	"everkind/internal/personas"
	"everkind/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ChatHandler exposes the turn API over HTTP
type ChatHandler struct {
	turns         *services.TurnService
	conversations *services.ConversationService
	contexts      *services.ContextService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(turns *services.TurnService, conversations *services.ConversationService, contexts *services.ContextService) *ChatHandler {
	return &ChatHandler{turns: turns, conversations: conversations, contexts: contexts}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, personas.ErrNotFound), errors.Is(err, services.ErrContextUnavailable):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrNoProviders):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, services.ErrAllProvidersFailed):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// Chat runs one synchronous turn
// POST /api/chat
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req models.TurnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UserID == "" || req.PersonaID == "" || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id, persona_id and message are required"})
	}

	result, err := h.turns.Chat(c.Context(), req)
	if err != nil {
		log.Printf("❌ [CHAT] Turn failed for %s/%s: %v", req.UserID, req.PersonaID, err)
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(result)
}

// ChatStream runs one streaming turn over SSE
// POST /api/chat/stream
func (h *ChatHandler) ChatStream(c *fiber.Ctx) error {
	var req models.TurnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UserID == "" || req.PersonaID == "" || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id, persona_id and message are required"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for ev := range h.turns.ChatStream(ctx, req) {
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				// Client went away; stop consuming so the turn cancels.
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}

// ListPersonas returns the persona catalog
// GET /api/personas
func (h *ChatHandler) ListPersonas(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"personas": personas.All()})
}

// SuggestPersona picks the best persona for the user's current state
// GET /api/personas/suggest/:userID
func (h *ChatHandler) SuggestPersona(c *fiber.Ctx) error {
	userID := c.Params("userID")

	userCtx, err := h.contexts.BuildContext(userID)
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}

	id := personas.Suggest(personas.State{
		MoodTrend:      userCtx.MoodTrend,
		StreakBroken:   userCtx.StreakBroken,
		RecentStruggle: userCtx.RecentStruggle,
		DaysInJourney:  userCtx.DayInJourney,
	})
	persona, _ := personas.Get(id)

	return c.JSON(fiber.Map{
		"persona_id":   id,
		"persona_name": persona.Name,
		"mood_trend":   userCtx.MoodTrend,
	})
}

// History returns recent messages for a (user, persona) pair
// GET /api/conversations/:userID/:personaID
func (h *ChatHandler) History(c *fiber.Ctx) error {
	userID := c.Params("userID")
	personaID := c.Params("personaID")
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	msgs, err := h.conversations.History(userID, personaID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"messages": msgs, "count": len(msgs)})
}

// CloseSession marks a session inactive
// POST /api/sessions/:id/close
func (h *ChatHandler) CloseSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if err := h.conversations.CloseSession(sessionID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "closed"})
}
