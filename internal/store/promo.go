package store

import (
	"context"
	"time"
)

type PromoItem struct {
	ID       string
	Title    string
	Pitch    string
	StartsAt time.Time
}

// UpcomingPromoItems lists items starting at or after now, soonest first.
func (s *Store) UpcomingPromoItems(ctx context.Context, now time.Time) ([]PromoItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, pitch, starts_at FROM promo_items WHERE starts_at >= ? ORDER BY starts_at ASC`,
		now.Unix())
	if err != nil {
		return nil, unavailable("promo items read", err)
	}
	defer rows.Close()

	var out []PromoItem
	for rows.Next() {
		var p PromoItem
		var starts int64
		if err := rows.Scan(&p.ID, &p.Title, &p.Pitch, &starts); err != nil {
			return nil, unavailable("promo items scan", err)
		}
		p.StartsAt = time.Unix(starts, 0).UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("promo items read", err)
	}
	return out, nil
}

func (s *Store) UpsertPromoItem(ctx context.Context, p PromoItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO promo_items (id, title, pitch, starts_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, pitch = excluded.pitch, starts_at = excluded.starts_at`,
		p.ID, p.Title, p.Pitch, p.StartsAt.Unix())
	if err != nil {
		return unavailable("promo items upsert", err)
	}
	return nil
}

// PromoCounts returns the per-item pitch counters for one user.
func (s *Store) PromoCounts(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, count FROM promo_counters WHERE user_id = ?`, userID)
	if err != nil {
		return nil, unavailable("promo counters read", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var item string
		var n int
		if err := rows.Scan(&item, &n); err != nil {
			return nil, unavailable("promo counters scan", err)
		}
		out[item] = n
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("promo counters read", err)
	}
	return out, nil
}

// IncrementPromoCount bumps the pitch counter for (user, item). Counters only
// ever go up.
func (s *Store) IncrementPromoCount(ctx context.Context, userID, itemID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO promo_counters (user_id, item_id, count) VALUES (?, ?, 1)
		 ON CONFLICT(user_id, item_id) DO UPDATE SET count = count + 1`,
		userID, itemID)
	if err != nil {
		return unavailable("promo counters increment", err)
	}
	return nil
}
