package services

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"everkind/internal/database"
	"everkind/internal/models"
	"everkind/internal/tokens"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
)

// sessionReuseWindow is how long an active session stays reusable
const sessionReuseWindow = 24 * time.Hour

// ConversationService owns the session lifecycle and the append-only
// message log. The log is the source of truth for ordering; the cache
// only accelerates history reads.
type ConversationService struct {
	db           *database.DB
	historyCache *cache.Cache
}

// NewConversationService creates a new conversation service
func NewConversationService(db *database.DB) *ConversationService {
	return &ConversationService{
		db:           db,
		historyCache: cache.New(30*time.Minute, 10*time.Minute),
	}
}

func historyCacheKey(userID, personaID string) string {
	return userID + ":" + personaID
}

// GetOrCreateSession reuses an active session opened within the last 24
// hours for the (user, persona) pair, bumping its message counter;
// otherwise it opens a new one.
func (s *ConversationService) GetOrCreateSession(userID, personaID string) (string, error) {
	cutoff := time.Now().Add(-sessionReuseWindow)

	var sessionID string
	err := s.db.QueryRow(`
		SELECT id FROM chat_sessions
		WHERE user_id = ? AND persona_id = ? AND active = 1 AND started_at >= ?
		ORDER BY started_at DESC
		LIMIT 1
	`, userID, personaID, cutoff).Scan(&sessionID)

	if err == nil {
		if _, err := s.db.Exec(`
			UPDATE chat_sessions SET message_count = message_count + 1 WHERE id = ?
		`, sessionID); err != nil {
			log.Printf("⚠️  [SESSION] Failed to bump message count for %s: %v", sessionID, err)
		}
		return sessionID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to query session: %w", err)
	}

	sessionID = uuid.New().String()
	if _, err := s.db.Exec(`
		INSERT INTO chat_sessions (id, user_id, persona_id, active, started_at, message_count)
		VALUES (?, ?, ?, 1, ?, 1)
	`, sessionID, userID, personaID, time.Now()); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("💬 [SESSION] Opened session %s for user %s with %s", sessionID, userID, personaID)
	return sessionID, nil
}

// CloseSession marks a session inactive and stamps its end time.
// Idempotent: closing a closed or unknown session is a no-op.
func (s *ConversationService) CloseSession(sessionID string) error {
	_, err := s.db.Exec(`
		UPDATE chat_sessions SET active = 0, ended_at = ? WHERE id = ? AND active = 1
	`, time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// GetSession returns a session by id, or nil if unknown
func (s *ConversationService) GetSession(sessionID string) (*models.ChatSession, error) {
	var sess models.ChatSession
	var active int
	var endedAt sql.NullTime
	err := s.db.QueryRow(`
		SELECT id, user_id, persona_id, active, started_at, ended_at, message_count
		FROM chat_sessions
		WHERE id = ?
	`, sessionID).Scan(&sess.ID, &sess.UserID, &sess.PersonaID, &active, &sess.StartedAt, &endedAt, &sess.MessageCount)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	sess.Active = active == 1
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	return &sess, nil
}

// AppendMessage appends one message to the log. Append-only, best
// effort: a persistence failure is logged and swallowed so it can never
// abort an in-flight reply to the user.
func (s *ConversationService) AppendMessage(userID, personaID, role, text, sessionID string) {
	var sid interface{}
	if sessionID != "" {
		sid = sessionID
	}
	_, err := s.db.Exec(`
		INSERT INTO chat_messages (id, user_id, persona_id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), userID, personaID, sid, role, text, time.Now())
	if err != nil {
		log.Printf("❌ [PERSIST] Failed to append %s message for %s/%s: %v (reply unaffected)", role, userID, personaID, err)
		return
	}
	s.historyCache.Delete(historyCacheKey(userID, personaID))
}

// History returns the most recent `limit` messages for the pair in
// chronological order, oldest first.
func (s *ConversationService) History(userID, personaID string, limit int) ([]models.ChatMessage, error) {
	key := historyCacheKey(userID, personaID)
	if cached, found := s.historyCache.Get(key); found {
		if msgs, ok := cached.([]models.ChatMessage); ok && len(msgs) >= limit {
			return msgs[len(msgs)-limit:], nil
		}
	}

	rows, err := s.db.Query(`
		SELECT id, user_id, persona_id, COALESCE(session_id, ''), role, content, created_at
		FROM chat_messages
		WHERE user_id = ? AND persona_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, userID, personaID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.PersonaID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order (query returned newest first)
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	s.historyCache.Set(key, msgs, cache.DefaultExpiration)
	return msgs, nil
}

// Window walks messages newest to oldest, accumulating estimated token
// cost, and drops the remainder the moment the running total would
// exceed maxTokens. The kept subset is returned in its original
// chronological order, so the budget always favors the most recent
// messages.
func Window(messages []models.ChatMessage, maxTokens int) []models.ChatMessage {
	total := 0
	keepFrom := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := tokens.Estimate(messages[i].Content)
		if total+cost > maxTokens {
			break
		}
		total += cost
		keepFrom = i
	}
	return messages[keepFrom:]
}
