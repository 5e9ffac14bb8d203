package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Conversation struct {
	ID           string
	UserID       string
	ChannelScope string
	StartedAt    time.Time
	LastActiveAt time.Time
	ClosedAt     time.Time // zero while open
}

// FindOpenConversation returns the most recently active open conversation for
// (user, scope) whose last activity is at or after the activeSince cutoff.
// A zero activeSince disables the cutoff.
func (s *Store) FindOpenConversation(ctx context.Context, userID, scope string, activeSince time.Time) (*Conversation, error) {
	q := `SELECT id, user_id, channel_scope, started_at, last_active_at, closed_at
	      FROM conversations
	      WHERE user_id = ? AND channel_scope = ? AND closed_at IS NULL`
	args := []any{userID, scope}
	if !activeSince.IsZero() {
		q += ` AND last_active_at >= ?`
		args = append(args, activeSince.Unix())
	}
	q += ` ORDER BY last_active_at DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, q, args...)
	var c Conversation
	var started, lastActive int64
	var closed sql.NullInt64
	err := row.Scan(&c.ID, &c.UserID, &c.ChannelScope, &started, &lastActive, &closed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("conversations read", err)
	}
	c.StartedAt = time.Unix(started, 0).UTC()
	c.LastActiveAt = time.Unix(lastActive, 0).UTC()
	c.ClosedAt = unixOrZero(closed)
	return &c, nil
}

func (s *Store) TouchConversation(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_active_at = ? WHERE id = ?`, now.Unix(), id)
	if err != nil {
		return unavailable("conversations touch", err)
	}
	return nil
}

func (s *Store) InsertConversation(ctx context.Context, userID, scope string, now time.Time) (string, error) {
	id := NewID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, channel_scope, started_at, last_active_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, userID, scope, now.Unix(), now.Unix())
	if err != nil {
		return "", unavailable("conversations insert", err)
	}
	return id, nil
}
