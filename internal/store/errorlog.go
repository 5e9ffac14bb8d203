package store

import (
	"context"
	"log"
	"time"
)

type ErrorEntry struct {
	Phone          string
	UserID         string
	ConversationID string
	Channel        string
	Stage          string
	Message        string
	Details        string
}

// LogError records a primary-path failure for diagnosis. A failure to write
// the entry itself is only logged; nothing more can be done at that point.
func (s *Store) LogError(ctx context.Context, e ErrorEntry) {
	if e.Channel == "" {
		e.Channel = "unknown"
	}
	if e.Stage == "" {
		e.Stage = "unknown"
	}
	if e.Message == "" {
		e.Message = "unknown"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO error_logs (phone, user_id, conversation_id, channel, stage, message, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullStr(e.Phone), nullStr(e.UserID), nullStr(e.ConversationID),
		e.Channel, e.Stage, e.Message, nullStr(e.Details), time.Now().Unix())
	if err != nil {
		log.Printf("CRITICAL: error_logs insert failed: %v", err)
	}
}
