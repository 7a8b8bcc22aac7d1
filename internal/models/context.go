package models

// MoodTrend classifies the direction of recent mood scores
type MoodTrend string

const (
	MoodImproving MoodTrend = "improving"
	MoodDeclining MoodTrend = "declining"
	MoodStable    MoodTrend = "stable"
)

// RelationshipStage is a step function of total prior conversation turns
type RelationshipStage string

const (
	StageNew         RelationshipStage = "new"
	StageWarmingUp   RelationshipStage = "warming_up"
	StageEstablished RelationshipStage = "established"
	StageTrusted     RelationshipStage = "trusted"
)

// UserContext is a snapshot of one user's state for prompting.
// Built fresh per turn and never mutated after construction.
type UserContext struct {
	Profile        UserProfile       `json:"profile"`
	DayInJourney   int               `json:"day_in_journey"`
	NextMilestone  int               `json:"next_milestone"`
	Stage          RelationshipStage `json:"stage"`
	MoodTrend      MoodTrend         `json:"mood_trend"`
	Journals       []JournalEntry    `json:"journals"`
	Actions        []ActionRecord    `json:"actions"`
	Badges         []Badge           `json:"badges"`
	Streak         StreakInfo        `json:"streak"`
	RecentStruggle bool              `json:"recent_struggle"`
	StreakBroken   bool              `json:"streak_broken"`
}

// TokenBudget maps a context section name to its token ceiling.
// Every ceiling is >= 0; sections are truncated independently so one
// oversized section cannot starve another.
type TokenBudget map[string]int

// Context section names, shared between the budget and the renderer.
const (
	SectionProfile  = "profile"
	SectionJournals = "journals"
	SectionActions  = "actions"
	SectionBadges   = "badges"
	SectionMood     = "mood"
	SectionHistory  = "history"
)

// DefaultTokenBudget returns the per-section ceilings used when the
// caller supplies none.
func DefaultTokenBudget() TokenBudget {
	return TokenBudget{
		SectionProfile:  150,
		SectionJournals: 450,
		SectionActions:  200,
		SectionBadges:   150,
		SectionMood:     100,
		SectionHistory:  1200,
	}
}
