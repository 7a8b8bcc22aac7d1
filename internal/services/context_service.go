package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"everkind/internal/models"
	"everkind/internal/tokens"
)

// ErrContextUnavailable means the user's activity data could not be
// assembled; the turn must abort rather than prompt with a partial view.
var ErrContextUnavailable = errors.New("user context unavailable")

// Mood trend derivation parameters.
const (
	moodSampleSize = 5
	moodMinSamples = 3
	moodEpsilon    = 0.5
)

// milestones are the celebrated journey days, in ascending order.
var milestones = []int{7, 14, 30, 60, 90}

// ContextService assembles a token-budgeted snapshot of one user's
// state for prompting.
type ContextService struct {
	activity *ActivityService
	budget   models.TokenBudget
}

// NewContextService creates a new context service. A nil budget selects
// the default per-section ceilings.
func NewContextService(activity *ActivityService, budget models.TokenBudget) *ContextService {
	if budget == nil {
		budget = models.DefaultTokenBudget()
	}
	return &ContextService{activity: activity, budget: budget}
}

// BuildContext queries the activity store and derives the prompt-ready
// snapshot. A missing profile fails with ErrContextUnavailable; every
// other sub-section degrades to empty rather than failing the turn.
func (s *ContextService) BuildContext(userID string) (*models.UserContext, error) {
	profile, err := s.activity.GetProfile(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextUnavailable, err)
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: unknown user %s", ErrContextUnavailable, userID)
	}

	ctx := &models.UserContext{Profile: *profile}

	ctx.Journals, err = s.activity.RecentJournals(userID)
	if err != nil {
		log.Printf("⚠️  [CONTEXT] Journal fetch failed for %s: %v (degrading)", userID, err)
		ctx.Journals = nil
	}
	ctx.Actions, err = s.activity.RecentActions(userID)
	if err != nil {
		log.Printf("⚠️  [CONTEXT] Action fetch failed for %s: %v (degrading)", userID, err)
		ctx.Actions = nil
	}
	ctx.Badges, err = s.activity.Badges(userID)
	if err != nil {
		log.Printf("⚠️  [CONTEXT] Badge fetch failed for %s: %v (degrading)", userID, err)
		ctx.Badges = nil
	}
	ctx.Streak, err = s.activity.Streak(userID)
	if err != nil {
		log.Printf("⚠️  [CONTEXT] Streak fetch failed for %s: %v (degrading)", userID, err)
		ctx.Streak = models.StreakInfo{}
	}

	turnCount, err := s.activity.UserTurnCount(userID)
	if err != nil {
		log.Printf("⚠️  [CONTEXT] Turn count failed for %s: %v (degrading)", userID, err)
		turnCount = 0
	}

	ctx.MoodTrend = deriveMoodTrend(ctx.Journals)
	ctx.Stage = relationshipStage(turnCount)
	ctx.DayInJourney = dayInJourney(profile.EnrolledAt, profile.ProgramDays, time.Now())
	ctx.NextMilestone = nextMilestone(ctx.DayInJourney, profile.ProgramDays)
	ctx.StreakBroken = ctx.Streak.Current == 0 && ctx.Streak.Longest > 0
	ctx.RecentStruggle = recentStruggle(ctx.Journals)

	return ctx, nil
}

// deriveMoodTrend compares the mean of the two newest mood scores
// against the mean of the two oldest in the sampled window. Fewer than
// moodMinSamples defaults to stable. Journals arrive newest first.
func deriveMoodTrend(journals []models.JournalEntry) models.MoodTrend {
	sample := journals
	if len(sample) > moodSampleSize {
		sample = sample[:moodSampleSize]
	}
	if len(sample) < moodMinSamples {
		return models.MoodStable
	}

	newest := float64(sample[0].MoodScore+sample[1].MoodScore) / 2
	oldest := float64(sample[len(sample)-1].MoodScore+sample[len(sample)-2].MoodScore) / 2

	switch {
	case newest > oldest+moodEpsilon:
		return models.MoodImproving
	case newest < oldest-moodEpsilon:
		return models.MoodDeclining
	default:
		return models.MoodStable
	}
}

// relationshipStage is a step function of total prior user turns
func relationshipStage(turnCount int) models.RelationshipStage {
	switch {
	case turnCount < 10:
		return models.StageNew
	case turnCount < 40:
		return models.StageWarmingUp
	case turnCount < 120:
		return models.StageEstablished
	default:
		return models.StageTrusted
	}
}

// dayInJourney is elapsed whole days since enrollment, floored at 1 and
// capped at the program length.
func dayInJourney(enrolledAt time.Time, programDays int, now time.Time) int {
	day := int(now.Sub(enrolledAt).Hours()/24) + 1
	if day < 1 {
		day = 1
	}
	if programDays > 0 && day > programDays {
		day = programDays
	}
	return day
}

// nextMilestone is the smallest milestone strictly greater than the
// current day, falling back to the program's final day.
func nextMilestone(day, programDays int) int {
	for _, m := range milestones {
		if m > day && (programDays <= 0 || m <= programDays) {
			return m
		}
	}
	return programDays
}

// recentStruggle is true when the newest journal entries show a very low
// mood score (<= 3 on the 1-10 scale).
func recentStruggle(journals []models.JournalEntry) bool {
	sample := journals
	if len(sample) > 2 {
		sample = sample[:2]
	}
	for _, e := range sample {
		if e.MoodScore <= 3 {
			return true
		}
	}
	return false
}

// Render serializes the context to the prompt document. Each section is
// truncated independently against its budget entry so one oversized
// section cannot starve another, and every section header is always
// present.
func (s *ContextService) Render(ctx *models.UserContext) string {
	var doc strings.Builder

	writeSection := func(name, header, body string) {
		if body == "" {
			body = "(no data)"
		}
		doc.WriteString("## " + header + "\n")
		doc.WriteString(tokens.Truncate(body, s.budget[name]))
		doc.WriteString("\n\n")
	}

	var profile strings.Builder
	fmt.Fprintf(&profile, "Name: %s\n", ctx.Profile.DisplayName)
	fmt.Fprintf(&profile, "Day %d of %d in their journey (next milestone: day %d)\n",
		ctx.DayInJourney, ctx.Profile.ProgramDays, ctx.NextMilestone)
	fmt.Fprintf(&profile, "Relationship stage: %s\n", ctx.Stage)
	fmt.Fprintf(&profile, "Streak: %d days (longest %d)", ctx.Streak.Current, ctx.Streak.Longest)
	writeSection(models.SectionProfile, "About the user", profile.String())

	var journals strings.Builder
	for _, e := range ctx.Journals {
		fmt.Fprintf(&journals, "- %s (mood %d/10): %s\n", e.CreatedAt.Format("Jan 2"), e.MoodScore, e.Content)
	}
	writeSection(models.SectionJournals, "Recent journal highlights", journals.String())

	var actions strings.Builder
	for _, a := range ctx.Actions {
		fmt.Fprintf(&actions, "- %s (%s)\n", a.Title, a.CompletedAt.Format("Jan 2"))
	}
	writeSection(models.SectionActions, "Recently completed actions", actions.String())

	var badges strings.Builder
	for _, b := range ctx.Badges {
		fmt.Fprintf(&badges, "- %s\n", b.Name)
	}
	writeSection(models.SectionBadges, "Earned badges", badges.String())

	mood := fmt.Sprintf("Mood trend over the last week: %s", ctx.MoodTrend)
	if ctx.RecentStruggle {
		mood += "\nThe user has logged very low mood recently; tread gently."
	}
	writeSection(models.SectionMood, "Mood", mood)

	return strings.TrimRight(doc.String(), "\n")
}
