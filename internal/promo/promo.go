// Package promo caps how often a promotable item is pitched to a user and
// keeps a timer-refreshed snapshot of upcoming items.
package promo

import (
	"context"
	"strings"

	"concierge/internal/store"
)

const DefaultPitchCap = 3

type Counters interface {
	PromoCounts(ctx context.Context, userID string) (map[string]int, error)
	IncrementPromoCount(ctx context.Context, userID, itemID string) error
}

// Capper enforces the per-(user, item) pitch cap. Eligibility reads never
// mutate state; counters move only after a confirmed send.
type Capper struct {
	counters Counters
	cap      int
}

func NewCapper(counters Counters, pitchCap int) *Capper {
	if pitchCap <= 0 {
		pitchCap = DefaultPitchCap
	}
	return &Capper{counters: counters, cap: pitchCap}
}

// Eligible filters items down to those still under the cap for the user.
// Capped items are removed here, structurally, before any selector sees them.
func (c *Capper) Eligible(ctx context.Context, userID string, items []store.PromoItem) ([]store.PromoItem, error) {
	counts, err := c.counters.PromoCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []store.PromoItem
	for _, item := range items {
		if counts[item.ID] < c.cap {
			out = append(out, item)
		}
	}
	return out, nil
}

// ConfirmPitch records that a promotional message referencing the item was
// actually sent to the user.
func (c *Capper) ConfirmPitch(ctx context.Context, userID, itemID string) error {
	return c.counters.IncrementPromoCount(ctx, userID, itemID)
}

// Mentioned returns the items whose title appears in the reply text, used to
// decide which pitch counters a sent reply confirms.
func Mentioned(reply string, items []store.PromoItem) []store.PromoItem {
	lower := strings.ToLower(reply)
	var out []store.PromoItem
	for _, item := range items {
		if item.Title != "" && strings.Contains(lower, strings.ToLower(item.Title)) {
			out = append(out, item)
		}
	}
	return out
}
