// Package identity maps raw channel addresses onto durable user records.
package identity

import (
	"context"
	"errors"
	"strings"

	"concierge/internal/store"
)

// Normalize strips channel transport prefixes and surrounding whitespace,
// yielding the canonical identifier used for all user lookups.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "whatsapp:")
	return strings.TrimSpace(s)
}

type Users interface {
	FindUserByPhone(ctx context.Context, phone string) (*store.User, error)
	InsertUser(ctx context.Context, phone string) (string, error)
}

type Resolver struct {
	users Users
}

func NewResolver(users Users) *Resolver {
	return &Resolver{users: users}
}

// Resolve returns the user id for a raw channel address, creating the user on
// first contact. Store failures propagate; a user id is never fabricated.
func (r *Resolver) Resolve(ctx context.Context, rawAddress string) (string, error) {
	phone := Normalize(rawAddress)
	u, err := r.users.FindUserByPhone(ctx, phone)
	if err == nil {
		return u.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	return r.users.InsertUser(ctx, phone)
}
