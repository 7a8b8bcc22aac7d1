package models

import "time"

// UserProfile holds the enrollment-level fields the context assembler
// needs. Owned by the activity store; read-only here.
type UserProfile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	EnrolledAt  time.Time `json:"enrolled_at"`
	ProgramDays int       `json:"program_days"` // total program length in days
}

// JournalEntry is one journal record with a 1-10 mood score
type JournalEntry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	MoodScore int       `json:"mood_score"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ActionRecord is one completed micro-action
type ActionRecord struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	CompletedAt time.Time `json:"completed_at"`
}

// Badge is an earned milestone badge
type Badge struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	AwardedAt time.Time `json:"awarded_at"`
}

// StreakInfo holds the user's streak counters
type StreakInfo struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}
