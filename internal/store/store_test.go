package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertUserUniquePhone(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id1, err := s.InsertUser(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	// second insert for the same phone resolves to the existing row
	id2, err := s.InsertUser(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same user id, got %s and %s", id1, id2)
	}

	u, err := s.FindUserByPhone(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if u.ID != id1 {
		t.Fatalf("unexpected user id %s", u.ID)
	}
}

func TestFindUserNotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.FindUserByPhone(context.Background(), "+10000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertMessageDuplicateEventID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	userID, err := s.InsertUser(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	convID, err := s.InsertConversation(ctx, userID, "sms", time.Now())
	if err != nil {
		t.Fatalf("insert conversation: %v", err)
	}

	msg := Message{
		ConversationID:  convID,
		Channel:         "sms",
		Direction:       DirectionUser,
		Text:            "hi",
		Provider:        "twilio",
		ProviderEventID: "evt-1",
	}
	if _, err := s.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	msg.ID = ""
	if _, err := s.InsertMessage(ctx, msg); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}

	n := countMessages(t, s, convID)
	if n != 1 {
		t.Fatalf("expected exactly one message row, got %d", n)
	}
}

func TestInsertMessageConcurrentDuplicates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	userID, _ := s.InsertUser(ctx, "+15551234567")
	convID, _ := s.InsertConversation(ctx, userID, "sms", time.Now())

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.InsertMessage(ctx, Message{
				ConversationID:  convID,
				Channel:         "sms",
				Direction:       DirectionUser,
				Text:            "hi",
				Provider:        "twilio",
				ProviderEventID: "evt-race",
			})
		}(i)
	}
	wg.Wait()

	okCount := 0
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, ErrAlreadyProcessed):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if okCount != 1 {
		t.Fatalf("expected exactly one winning insert, got %d", okCount)
	}
	if n := countMessages(t, s, convID); n != 1 {
		t.Fatalf("expected exactly one message row, got %d", n)
	}
}

func TestMessagesWithoutEventIDAreAllAccepted(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	userID, _ := s.InsertUser(ctx, "+15551234567")
	convID, _ := s.InsertConversation(ctx, userID, "sms", time.Now())

	for i := 0; i < 3; i++ {
		if _, err := s.InsertMessage(ctx, Message{
			ConversationID: convID,
			Channel:        "sms",
			Direction:      DirectionAgent,
			Text:           "reply",
			Provider:       "openai",
		}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if n := countMessages(t, s, convID); n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
}

func TestRecentMessagesCrossConversationOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	userID, _ := s.InsertUser(ctx, "+15551234567")
	smsConv, _ := s.InsertConversation(ctx, userID, "sms", time.Now())
	callConv, _ := s.InsertConversation(ctx, userID, "call", time.Now())

	texts := []string{"one", "two", "three"}
	convs := []string{smsConv, callConv, smsConv}
	for i, txt := range texts {
		if _, err := s.InsertMessage(ctx, Message{
			ConversationID: convs[i], Channel: "sms", Direction: DirectionUser,
			Text: txt, Provider: "twilio",
		}); err != nil {
			t.Fatalf("insert %q: %v", txt, err)
		}
	}

	got, err := s.RecentMessages(ctx, userID, 10)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, txt := range texts {
		if got[i].Text != txt {
			t.Fatalf("position %d: expected %q, got %q", i, txt, got[i].Text)
		}
	}

	// limit keeps the newest entries
	got, err = s.RecentMessages(ctx, userID, 2)
	if err != nil {
		t.Fatalf("recent messages with limit: %v", err)
	}
	if len(got) != 2 || got[0].Text != "two" || got[1].Text != "three" {
		t.Fatalf("unexpected limited window: %+v", got)
	}
}

func TestUpsertTranscriptIgnoresDuplicates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userID, _ := s.InsertUser(ctx, "+15551234567")

	row := TranscriptRow{CallID: "call-1", RecordedAt: "2025-01-01T10:00:00Z", Summary: "first..."}
	if err := s.UpsertTranscript(ctx, userID, row); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	row.Summary = "mutated..."
	if err := s.UpsertTranscript(ctx, userID, row); err != nil {
		t.Fatalf("duplicate upsert: %v", err)
	}

	rows, err := s.ListTranscripts(ctx, userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one record, got %d", len(rows))
	}
	if rows[0].Summary != "first..." {
		t.Fatalf("record was mutated: %+v", rows[0])
	}
}

func TestPromoCounters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userID, _ := s.InsertUser(ctx, "+15551234567")

	for i := 0; i < 3; i++ {
		if err := s.IncrementPromoCount(ctx, userID, "event-1"); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	counts, err := s.PromoCounts(ctx, userID)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["event-1"] != 3 {
		t.Fatalf("expected count 3, got %d", counts["event-1"])
	}
	if counts["event-2"] != 0 {
		t.Fatalf("expected zero for untouched item, got %d", counts["event-2"])
	}
}

func TestUpdateUserProfileFillsOnlyEmptyFields(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userID, _ := s.InsertUser(ctx, "+15551234567")

	if err := s.UpdateUserProfile(ctx, userID, "Ada Lovelace", "ada@example.com"); err != nil {
		t.Fatalf("first profile update: %v", err)
	}
	// a later extraction must not overwrite what the user already gave us
	if err := s.UpdateUserProfile(ctx, userID, "Someone Else", "other@example.com"); err != nil {
		t.Fatalf("second profile update: %v", err)
	}

	u, err := s.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.FullName != "Ada Lovelace" || u.Email != "ada@example.com" {
		t.Fatalf("profile overwritten: %+v", u)
	}
}

func countMessages(t *testing.T, s *Store, convID string) int {
	t.Helper()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, convID).Scan(&n)
	if err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return n
}
