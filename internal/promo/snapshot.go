package promo

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"concierge/internal/store"
)

type Items interface {
	UpcomingPromoItems(ctx context.Context, now time.Time) ([]store.PromoItem, error)
}

// Snapshot is the process-wide, read-only view of upcoming promotable items.
// It is refreshed on a timer and never written during request handling;
// request paths only read the last good copy.
type Snapshot struct {
	items Items
	cron  *cron.Cron
	ctx   context.Context
	stop  context.CancelFunc

	mu      sync.RWMutex
	current []store.PromoItem
}

func NewSnapshot(items Items) *Snapshot {
	ctx, cancel := context.WithCancel(context.Background())
	return &Snapshot{
		items: items,
		cron:  cron.New(cron.WithLocation(time.UTC)),
		ctx:   ctx,
		stop:  cancel,
	}
}

// Start performs an initial refresh and schedules periodic ones. every is a
// cron spec ("@every 10m" style or five-field).
func (s *Snapshot) Start(every string) error {
	s.refresh()
	if _, err := s.cron.AddFunc(every, s.refresh); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("promo snapshot refresh scheduled: %s", every)
	return nil
}

func (s *Snapshot) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.stop()
}

func (s *Snapshot) refresh() {
	items, err := s.items.UpcomingPromoItems(s.ctx, time.Now())
	if err != nil {
		// keep serving the previous snapshot
		log.Printf("promo snapshot refresh failed: %v", err)
		return
	}
	s.mu.Lock()
	s.current = items
	s.mu.Unlock()
	log.Printf("promo snapshot refreshed: %d upcoming items", len(items))
}

// Current returns the latest snapshot. The returned slice must not be
// modified by callers.
func (s *Snapshot) Current() []store.PromoItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
