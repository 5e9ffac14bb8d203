// Package store is the single source of truth for users, conversations and
// messages. All cross-request mutual exclusion lives here: uniqueness
// constraints on provider event ids and transcript call ids are the only
// concurrency-safety primitives the rest of the engine relies on.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrUnavailable marks any failed read or write against the datastore.
	ErrUnavailable = errors.New("store unavailable")
	// ErrAlreadyProcessed is returned when an inbound event id was seen before.
	// It is a short-circuit signal, not a failure.
	ErrAlreadyProcessed = errors.New("event already processed")
	// ErrNotFound is returned by single-row lookups with no match.
	ErrNotFound = errors.New("not found")
)

type Store struct {
	db *sql.DB
}

// Open opens (and creates, if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id             TEXT PRIMARY KEY,
		phone          TEXT NOT NULL UNIQUE,
		full_name      TEXT NOT NULL DEFAULT '',
		email          TEXT NOT NULL DEFAULT '',
		memory_summary TEXT NOT NULL DEFAULT '',
		intro_sent     INTEGER NOT NULL DEFAULT 0,
		last_seen      INTEGER,
		created_at     INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL,
		channel_scope  TEXT NOT NULL,
		started_at     INTEGER NOT NULL,
		last_active_at INTEGER NOT NULL,
		closed_at      INTEGER,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id                TEXT PRIMARY KEY,
		conversation_id   TEXT NOT NULL,
		channel           TEXT NOT NULL,
		direction         TEXT NOT NULL,
		text              TEXT NOT NULL,
		provider          TEXT NOT NULL,
		provider_event_id TEXT,
		created_at        INTEGER NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id)
	);

	-- Sole dedup mechanism for retried inbound events.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_event
		ON messages(provider, provider_event_id)
		WHERE provider_event_id IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, channel_scope);

	CREATE TABLE IF NOT EXISTS transcripts (
		user_id     TEXT NOT NULL,
		call_id     TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		summary     TEXT NOT NULL,
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		FOREIGN KEY (user_id) REFERENCES users(id),
		UNIQUE (user_id, call_id)
	);

	CREATE TABLE IF NOT EXISTS promo_items (
		id        TEXT PRIMARY KEY,
		title     TEXT NOT NULL,
		pitch     TEXT NOT NULL DEFAULT '',
		starts_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS promo_counters (
		user_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		count   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, item_id)
	);

	CREATE TABLE IF NOT EXISTS error_logs (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		phone           TEXT,
		user_id         TEXT,
		conversation_id TEXT,
		channel         TEXT NOT NULL DEFAULT 'unknown',
		stage           TEXT NOT NULL DEFAULT 'unknown',
		message         TEXT NOT NULL DEFAULT 'unknown',
		details         TEXT,
		created_at      INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// unavailable ties the sentinel to the underlying driver error so callers can
// branch on errors.Is(err, ErrUnavailable) while keeping the cause visible.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

func NewID() string { return uuid.NewString() }

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func unixOrZero(t sql.NullInt64) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return time.Unix(t.Int64, 0).UTC()
}
