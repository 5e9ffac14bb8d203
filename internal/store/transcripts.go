package store

import (
	"context"
)

// TranscriptRow is a persisted voice-call transcript reference. RecordedAt is
// kept as the raw stored string; normalization to a comparable instant happens
// at read time in the transcripts package, never in place here.
type TranscriptRow struct {
	CallID     string
	RecordedAt string
	Summary    string
}

// UpsertTranscript inserts a transcript record unless the (user, call id) pair
// already exists. Records are never mutated or deleted once written.
func (s *Store) UpsertTranscript(ctx context.Context, userID string, row TranscriptRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (user_id, call_id, recorded_at, summary) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, call_id) DO NOTHING`,
		userID, row.CallID, row.RecordedAt, row.Summary)
	if err != nil {
		return unavailable("transcripts upsert", err)
	}
	return nil
}

// ListTranscripts returns the user's transcript records in insertion order.
func (s *Store) ListTranscripts(ctx context.Context, userID string) ([]TranscriptRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT call_id, recorded_at, summary FROM transcripts WHERE user_id = ? ORDER BY seq ASC`,
		userID)
	if err != nil {
		return nil, unavailable("transcripts read", err)
	}
	defer rows.Close()

	var out []TranscriptRow
	for rows.Next() {
		var r TranscriptRow
		if err := rows.Scan(&r.CallID, &r.RecordedAt, &r.Summary); err != nil {
			return nil, unavailable("transcripts scan", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("transcripts read", err)
	}
	return out, nil
}
