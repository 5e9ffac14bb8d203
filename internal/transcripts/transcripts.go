// Package transcripts maintains the ordered index of past voice-call
// transcripts per user and labels each record with its "N calls back"
// position.
package transcripts

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"concierge/internal/store"
)

const summaryPreviewLen = 150

type Rows interface {
	UpsertTranscript(ctx context.Context, userID string, row store.TranscriptRow) error
	ListTranscripts(ctx context.Context, userID string) ([]store.TranscriptRow, error)
}

type Index struct {
	rows Rows
}

func NewIndex(rows Rows) *Index {
	return &Index{rows: rows}
}

// Add records a completed call. Duplicate call ids for the same user are
// ignored; records are never mutated afterwards. The stored summary prefers
// the upstream-provided one, falling back to a preview of the transcript text.
func (ix *Index) Add(ctx context.Context, userID, callID, upstreamSummary, transcriptText string, completedAt time.Time) error {
	return ix.rows.UpsertTranscript(ctx, userID, store.TranscriptRow{
		CallID:     callID,
		RecordedAt: completedAt.UTC().Format(time.RFC3339),
		Summary:    Preview(upstreamSummary, transcriptText),
	})
}

// Preview derives the short human-readable summary stored with a record.
func Preview(upstreamSummary, transcriptText string) string {
	src := strings.TrimSpace(upstreamSummary)
	if src == "" {
		src = strings.TrimSpace(transcriptText)
		if len(src) > summaryPreviewLen {
			src = src[:summaryPreviewLen]
		}
	}
	return strings.Join(strings.Fields(src), " ") + "..."
}

// Positioned is a transcript record labelled with its 1-based ordinal in the
// newest-first ordering: position 1 is the latest call, 2 the one before it.
type Positioned struct {
	Position  int
	CallID    string
	Timestamp string
	Summary   string
}

// List returns the user's records sorted newest first with ordinal positions
// assigned. Records whose stored timestamp cannot be parsed sort as oldest;
// ties keep the original insertion order. The ordering is deterministic for
// the same underlying rows.
func (ix *Index) List(ctx context.Context, userID string) ([]Positioned, error) {
	rows, err := ix.rows.ListTranscripts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Label(rows), nil
}

func Label(rows []store.TranscriptRow) []Positioned {
	type keyed struct {
		row     store.TranscriptRow
		instant int64
	}
	ks := make([]keyed, len(rows))
	for i, r := range rows {
		ks[i] = keyed{row: r, instant: ParseInstant(r.RecordedAt)}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		return ks[i].instant > ks[j].instant
	})

	out := make([]Positioned, len(ks))
	for i, k := range ks {
		out[i] = Positioned{
			Position:  i + 1,
			CallID:    k.row.CallID,
			Timestamp: k.row.RecordedAt,
			Summary:   k.row.Summary,
		}
	}
	return out
}

// legacyEntry covers the shapes older deployments stored: either a bare call
// id string, or an object whose timestamp drifted across field names.
type legacyEntry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Time      string `json:"time"`
	CreatedAt string `json:"created_at"`
	Date      string `json:"date"`
	Summary   string `json:"summary"`
}

// DecodeLegacy maps one legacy transcript entry into the current record
// shape. Bare strings become records with an unknown timestamp rather than
// being dropped. The second return is false for entries with no usable id.
func DecodeLegacy(raw json.RawMessage) (store.TranscriptRow, bool) {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		if id == "" {
			return store.TranscriptRow{}, false
		}
		return store.TranscriptRow{CallID: id, RecordedAt: "Unknown", Summary: "Older call..."}, true
	}

	var e legacyEntry
	if err := json.Unmarshal(raw, &e); err != nil || e.ID == "" {
		return store.TranscriptRow{}, false
	}
	ts := firstNonEmpty(e.Timestamp, e.Time, e.CreatedAt, e.Date)
	if ts == "" {
		ts = "Unknown"
	}
	summary := e.Summary
	if summary == "" {
		summary = "Older call..."
	}
	return store.TranscriptRow{CallID: e.ID, RecordedAt: ts, Summary: summary}, true
}

// ImportLegacy upserts every decodable entry of a legacy transcript array.
func (ix *Index) ImportLegacy(ctx context.Context, userID string, raw []byte) (int, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, fmt.Errorf("decode legacy transcript array: %w", err)
	}
	n := 0
	for _, entry := range entries {
		row, ok := DecodeLegacy(entry)
		if !ok {
			continue
		}
		if err := ix.rows.UpsertTranscript(ctx, userID, row); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// instant layouts observed across stored and legacy records.
var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ParseInstant normalizes a stored timestamp string to unix seconds. Anything
// unparsable maps to the oldest possible instant so the record is never
// selected ahead of a dated one, and never dropped.
func ParseInstant(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}
