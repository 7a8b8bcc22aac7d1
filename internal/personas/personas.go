// Package personas holds the static catalog of assistant personas and
// the heuristic that picks the best persona for a user's current state.
package personas

import (
	"errors"
	"fmt"

	"everkind/internal/models"
)

// ID identifies a persona. The set is closed: only the constants below
// are valid, and every valid ID has exactly one catalog entry.
type ID string

const (
	// Sage is the supportive companion: warm, validating, low-pressure.
	Sage ID = "sage"
	// Coach is the accountability companion: direct, goal-focused.
	Coach ID = "coach"
)

// ErrNotFound is returned by Get for an unknown persona id
var ErrNotFound = errors.New("persona not found")

// Persona is a named assistant identity with fixed tone and instruction text
type Persona struct {
	ID               ID       `json:"id"`
	Name             string   `json:"name"`
	Tone             []string `json:"tone"`
	PromptFragment   string   `json:"-"`
	SignaturePhrases []string `json:"signature_phrases"`
}

// catalog is immutable after init; safe for concurrent reads.
var catalog = map[ID]Persona{
	Sage: {
		ID:   Sage,
		Name: "Sage",
		Tone: []string{"warm", "validating", "patient", "gentle"},
		PromptFragment: `You are Sage, a warm and supportive wellness companion.
You listen first and advise second. You validate feelings before offering
perspective, celebrate small wins out loud, and never guilt-trip the user
about missed days. Keep replies short, concrete, and kind. When the user is
struggling, slow down and focus on one small next step.`,
		SignaturePhrases: []string{
			"That sounds really hard, and you showed up anyway.",
			"Small steps still count.",
			"What would feel doable today?",
		},
	},
	Coach: {
		ID:   Coach,
		Name: "Coach",
		Tone: []string{"direct", "energetic", "goal-focused", "candid"},
		PromptFragment: `You are Coach, a direct and energetic accountability partner.
You care about momentum: name the goal, name the gap, and push for a concrete
commitment before the conversation ends. You are candid but never harsh, and
you always tie feedback back to the user's own stated goals. Keep replies
punchy and end with a clear next action.`,
		SignaturePhrases: []string{
			"What's the one thing you'll do before tomorrow?",
			"Streaks are built one honest day at a time.",
			"Let's close the gap.",
		},
	},
}

// ordered keeps All() deterministic.
var ordered = []ID{Sage, Coach}

// Get returns the persona for id, or ErrNotFound
func Get(id ID) (Persona, error) {
	p, ok := catalog[id]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return p, nil
}

// All returns every persona in a stable order
func All() []Persona {
	out := make([]Persona, 0, len(ordered))
	for _, id := range ordered {
		out = append(out, catalog[id])
	}
	return out
}

// State is the input to Suggest
type State struct {
	MoodTrend      models.MoodTrend
	StreakBroken   bool
	RecentStruggle bool
	DaysInJourney  int
}

// Suggest picks the persona best suited to the user's current state.
// Pure and total: first matching rule wins, and every input resolves to
// exactly one persona.
func Suggest(s State) ID {
	switch {
	case s.MoodTrend == models.MoodDeclining || s.RecentStruggle:
		return Sage
	case s.StreakBroken:
		return Coach
	case s.DaysInJourney <= 7:
		// Relationship-building phase: lead with support.
		return Sage
	case s.DaysInJourney <= 30:
		if s.MoodTrend == models.MoodImproving {
			return Coach
		}
		return Sage
	default:
		return Coach
	}
}
