package transcripts

import (
	"context"
	"encoding/json"
	"testing"

	"concierge/internal/store"
)

func TestLabelNewestFirstWithUnparsableOldest(t *testing.T) {
	rows := []store.TranscriptRow{
		{CallID: "a", RecordedAt: "2025-01-01T10:00:00Z", Summary: "first..."},
		{CallID: "b", RecordedAt: "2025-01-10T10:00:00Z", Summary: "second..."},
		{CallID: "c", RecordedAt: "Unknown", Summary: "Older call..."},
	}

	got := Label(rows)
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	// "1 call back" is the latest, "2 calls back" the one before it,
	// unparsable timestamps land at the end.
	wantOrder := []string{"b", "a", "c"}
	for i, id := range wantOrder {
		if got[i].CallID != id {
			t.Fatalf("position %d: expected %s, got %s", i+1, id, got[i].CallID)
		}
		if got[i].Position != i+1 {
			t.Fatalf("position label mismatch: %+v", got[i])
		}
	}
}

func TestLabelTiesKeepInsertionOrder(t *testing.T) {
	rows := []store.TranscriptRow{
		{CallID: "x", RecordedAt: "Unknown"},
		{CallID: "y", RecordedAt: "also unknown"},
		{CallID: "z", RecordedAt: ""},
	}
	got := Label(rows)
	for i, id := range []string{"x", "y", "z"} {
		if got[i].CallID != id {
			t.Fatalf("tie order not stable: %+v", got)
		}
	}

	// same input, same labelling, every time
	again := Label(rows)
	for i := range got {
		if got[i] != again[i] {
			t.Fatalf("labelling is not deterministic: %+v vs %+v", got[i], again[i])
		}
	}
}

func TestParseInstantLayouts(t *testing.T) {
	cases := []struct {
		in       string
		parsable bool
	}{
		{"2025-01-01T10:00:00Z", true},
		{"2025-01-01T10:00:00.123Z", true},
		{"2025-01-01 10:00:00", true},
		{"2025-01-01", true},
		{"01/15/2025", true},
		{"Unknown", false},
		{"", false},
		{"last Tuesday", false},
	}
	for _, c := range cases {
		got := ParseInstant(c.in)
		if c.parsable && got == 0 {
			t.Errorf("ParseInstant(%q) = 0, expected a parsed instant", c.in)
		}
		if !c.parsable && got != 0 {
			t.Errorf("ParseInstant(%q) = %d, expected oldest instant", c.in, got)
		}
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("Upstream summary.", "long transcript text"); got != "Upstream summary...." {
		t.Fatalf("upstream summary not preferred: %q", got)
	}

	long := ""
	for i := 0; i < 40; i++ {
		long += "word "
	}
	got := Preview("", long)
	if len(got) > 150+3 {
		t.Fatalf("preview too long: %d chars", len(got))
	}
	if got[len(got)-3:] != "..." {
		t.Fatalf("preview missing suffix: %q", got)
	}

	if got := Preview("", "line one\n\n  line   two"); got != "line one line two..." {
		t.Fatalf("whitespace not collapsed: %q", got)
	}
}

func TestDecodeLegacyShapes(t *testing.T) {
	row, ok := DecodeLegacy(json.RawMessage(`"conv_123"`))
	if !ok {
		t.Fatal("bare string entry dropped")
	}
	if row.CallID != "conv_123" || row.RecordedAt != "Unknown" || row.Summary != "Older call..." {
		t.Fatalf("unexpected bare-string decode: %+v", row)
	}

	row, ok = DecodeLegacy(json.RawMessage(`{"id":"conv_456","created_at":"2024-12-01","summary":"booked a suite"}`))
	if !ok {
		t.Fatal("object entry dropped")
	}
	if row.CallID != "conv_456" || row.RecordedAt != "2024-12-01" || row.Summary != "booked a suite" {
		t.Fatalf("unexpected object decode: %+v", row)
	}

	// timestamp field names drifted across exports
	row, _ = DecodeLegacy(json.RawMessage(`{"id":"conv_789","time":"2024-11-05"}`))
	if row.RecordedAt != "2024-11-05" {
		t.Fatalf("alternate timestamp field ignored: %+v", row)
	}

	if _, ok := DecodeLegacy(json.RawMessage(`{"summary":"no id"}`)); ok {
		t.Fatal("entry without id must be rejected")
	}
	if _, ok := DecodeLegacy(json.RawMessage(`""`)); ok {
		t.Fatal("empty string entry must be rejected")
	}
}

type fakeRows struct {
	rows []store.TranscriptRow
}

func (f *fakeRows) UpsertTranscript(_ context.Context, _ string, row store.TranscriptRow) error {
	for _, r := range f.rows {
		if r.CallID == row.CallID {
			return nil
		}
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeRows) ListTranscripts(_ context.Context, _ string) ([]store.TranscriptRow, error) {
	return f.rows, nil
}

func TestImportLegacy(t *testing.T) {
	rows := &fakeRows{}
	ix := NewIndex(rows)

	raw := []byte(`["conv_1", {"id":"conv_2","timestamp":"2025-02-01"}, {"summary":"dropped"}, "conv_1"]`)
	n, err := ix.ImportLegacy(context.Background(), "u-1", raw)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	// the duplicate counts as decoded; the store ignores the second upsert
	if n != 3 {
		t.Fatalf("expected 3 decoded entries, got %d", n)
	}
	if len(rows.rows) != 2 {
		t.Fatalf("expected 2 stored records, got %d", len(rows.rows))
	}

	if _, err := ix.ImportLegacy(context.Background(), "u-1", []byte(`{"not":"an array"}`)); err == nil {
		t.Fatal("expected error for non-array export")
	}
}
