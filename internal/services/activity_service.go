package services

import (
	"database/sql"
	"fmt"
	"time"

	"everkind/internal/database"
	"everkind/internal/models"
)

// Bounds on the activity window pulled into a prompt context.
const (
	journalLookbackDays = 7
	maxJournalEntries   = 10
	maxRecentActions    = 10
)

// ActivityService reads the user's activity history: profile, journals,
// completed actions, badges, and streak counters. Read-only; the turn
// pipeline never writes activity data.
type ActivityService struct {
	db *database.DB
}

// NewActivityService creates a new activity service
func NewActivityService(db *database.DB) *ActivityService {
	return &ActivityService{db: db}
}

// GetProfile returns the user's profile, or nil if the user is unknown
func (s *ActivityService) GetProfile(userID string) (*models.UserProfile, error) {
	var p models.UserProfile
	err := s.db.QueryRow(`
		SELECT id, display_name, enrolled_at, program_days
		FROM users
		WHERE id = ?
	`, userID).Scan(&p.ID, &p.DisplayName, &p.EnrolledAt, &p.ProgramDays)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return &p, nil
}

// RecentJournals returns the newest journal entries from the lookback
// window, newest first, capped at maxJournalEntries.
func (s *ActivityService) RecentJournals(userID string) ([]models.JournalEntry, error) {
	since := time.Now().AddDate(0, 0, -journalLookbackDays)
	rows, err := s.db.Query(`
		SELECT id, user_id, mood_score, content, created_at
		FROM journal_entries
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, since, maxJournalEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to query journals: %w", err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.MoodScore, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentActions returns the most recently completed micro-actions, newest first
func (s *ActivityService) RecentActions(userID string) ([]models.ActionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, completed_at
		FROM actions
		WHERE user_id = ?
		ORDER BY completed_at DESC
		LIMIT ?
	`, userID, maxRecentActions)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []models.ActionRecord
	for rows.Next() {
		var a models.ActionRecord
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &a.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// Badges returns every badge the user has earned, newest first
func (s *ActivityService) Badges(userID string) ([]models.Badge, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, name, awarded_at
		FROM badges
		WHERE user_id = ?
		ORDER BY awarded_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query badges: %w", err)
	}
	defer rows.Close()

	var badges []models.Badge
	for rows.Next() {
		var b models.Badge
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &b.AwardedAt); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// Streak returns the user's streak counters; a user with no streak row
// has zero counters.
func (s *ActivityService) Streak(userID string) (models.StreakInfo, error) {
	var info models.StreakInfo
	err := s.db.QueryRow(`
		SELECT current_streak, longest_streak
		FROM streaks
		WHERE user_id = ?
	`, userID).Scan(&info.Current, &info.Longest)

	if err == sql.ErrNoRows {
		return models.StreakInfo{}, nil
	}
	if err != nil {
		return models.StreakInfo{}, fmt.Errorf("failed to query streak: %w", err)
	}
	return info, nil
}

// UserTurnCount returns how many user messages this user has ever sent.
// Drives the relationship stage.
func (s *ActivityService) UserTurnCount(userID string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM chat_messages
		WHERE user_id = ? AND role = ?
	`, userID, models.RoleUser).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return count, nil
}
