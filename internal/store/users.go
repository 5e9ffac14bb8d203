package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type User struct {
	ID            string
	Phone         string
	FullName      string
	Email         string
	MemorySummary string
	IntroSent     bool
	LastSeen      time.Time
	CreatedAt     time.Time
}

func (s *Store) FindUserByPhone(ctx context.Context, phone string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, phone, full_name, email, memory_summary, intro_sent, last_seen, created_at
		 FROM users WHERE phone = ?`, phone)
	return scanUser(row)
}

func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, phone, full_name, email, memory_summary, intro_sent, last_seen, created_at
		 FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var intro int
	var lastSeen sql.NullInt64
	var created int64
	err := row.Scan(&u.ID, &u.Phone, &u.FullName, &u.Email, &u.MemorySummary, &intro, &lastSeen, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("users read", err)
	}
	u.IntroSent = intro != 0
	u.LastSeen = unixOrZero(lastSeen)
	u.CreatedAt = time.Unix(created, 0).UTC()
	return &u, nil
}

// InsertUser creates a user keyed by canonical phone. A concurrent insert for
// the same phone loses to the unique constraint; the caller re-reads.
func (s *Store) InsertUser(ctx context.Context, phone string) (string, error) {
	id := NewID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, phone, created_at) VALUES (?, ?, ?)`,
		id, phone, time.Now().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			if u, ferr := s.FindUserByPhone(ctx, phone); ferr == nil {
				return u.ID, nil
			}
		}
		return "", unavailable("users insert", err)
	}
	return id, nil
}

// UpdateUserMemory persists the memory text and last-seen together.
func (s *Store) UpdateUserMemory(ctx context.Context, userID, memory string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET memory_summary = ?, last_seen = ? WHERE id = ?`,
		memory, time.Now().Unix(), userID)
	if err != nil {
		return unavailable("users memory update", err)
	}
	return nil
}

// UpdateUserProfile fills name and email only where currently empty.
func (s *Store) UpdateUserProfile(ctx context.Context, userID, fullName, email string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET
			full_name = CASE WHEN full_name = '' AND ? != '' THEN ? ELSE full_name END,
			email     = CASE WHEN email = '' AND ? != '' THEN ? ELSE email END
		 WHERE id = ?`,
		fullName, fullName, email, email, userID)
	if err != nil {
		return unavailable("users profile update", err)
	}
	return nil
}

func (s *Store) MarkIntroSent(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET intro_sent = 1 WHERE id = ?`, userID)
	if err != nil {
		return unavailable("users intro update", err)
	}
	return nil
}
