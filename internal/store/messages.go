package store

import (
	"context"
	"database/sql"
	"time"
)

const (
	DirectionUser  = "user"
	DirectionAgent = "agent"
)

type Message struct {
	ID              string
	ConversationID  string
	Channel         string
	Direction       string
	Text            string
	Provider        string
	ProviderEventID string
	CreatedAt       time.Time
}

// MessageEventExists reports whether an inbound event id has been seen before.
func (s *Store) MessageEventExists(ctx context.Context, provider, eventID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE provider = ? AND provider_event_id = ? LIMIT 1`,
		provider, eventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, unavailable("messages read", err)
	}
	return true, nil
}

// InsertMessage persists one turn. When the message carries a provider event
// id that was already stored, the unique index rejects the insert and
// ErrAlreadyProcessed is returned; this closes the race the existence check
// alone cannot.
func (s *Store) InsertMessage(ctx context.Context, m Message) (string, error) {
	if m.ID == "" {
		m.ID = NewID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, channel, direction, text, provider, provider_event_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Channel, m.Direction, m.Text, m.Provider,
		nullStr(m.ProviderEventID), time.Now().Unix())
	if err != nil {
		if m.ProviderEventID != "" && isUniqueViolation(err) {
			return "", ErrAlreadyProcessed
		}
		return "", unavailable("messages insert", err)
	}
	return m.ID, nil
}

// RecentMessages returns the user's last limit messages across every
// conversation and channel, oldest first.
func (s *Store) RecentMessages(ctx context.Context, userID string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.conversation_id, m.channel, m.direction, m.text, m.provider, COALESCE(m.provider_event_id, ''), m.created_at
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.user_id = ?
		 ORDER BY m.created_at DESC, m.rowid DESC
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, unavailable("messages read", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Channel, &m.Direction, &m.Text, &m.Provider, &m.ProviderEventID, &created); err != nil {
			return nil, unavailable("messages scan", err)
		}
		m.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("messages read", err)
	}
	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// UserMessageCount counts user-authored messages in one conversation.
func (s *Store) UserMessageCount(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND direction = ?`,
		conversationID, DirectionUser).Scan(&n)
	if err != nil {
		return 0, unavailable("messages count", err)
	}
	return n, nil
}
