package promo

import (
	"context"
	"errors"
	"testing"
	"time"

	"concierge/internal/store"
)

type fakeItems struct {
	items []store.PromoItem
	err   error
}

func (f *fakeItems) UpcomingPromoItems(_ context.Context, _ time.Time) ([]store.PromoItem, error) {
	return f.items, f.err
}

func TestSnapshotInitialRefresh(t *testing.T) {
	src := &fakeItems{items: []store.PromoItem{{ID: "gala", Title: "Winter Gala"}}}
	s := NewSnapshot(src)
	if err := s.Start("@every 1h"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	got := s.Current()
	if len(got) != 1 || got[0].ID != "gala" {
		t.Fatalf("initial refresh missing: %+v", got)
	}
}

func TestSnapshotKeepsLastGoodCopyOnFailure(t *testing.T) {
	src := &fakeItems{items: []store.PromoItem{{ID: "gala", Title: "Winter Gala"}}}
	s := NewSnapshot(src)
	if err := s.Start("@every 1h"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	src.err = errors.New("db offline")
	s.refresh()

	got := s.Current()
	if len(got) != 1 || got[0].ID != "gala" {
		t.Fatalf("previous snapshot not retained: %+v", got)
	}
}

func TestSnapshotRejectsBadSpec(t *testing.T) {
	s := NewSnapshot(&fakeItems{})
	if err := s.Start("not a cron spec"); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}
