// Package ingest persists inbound messages exactly once per provider event id.
package ingest

import (
	"context"

	"concierge/internal/store"
)

type Messages interface {
	MessageEventExists(ctx context.Context, provider, eventID string) (bool, error)
	InsertMessage(ctx context.Context, m store.Message) (string, error)
}

// Gate accepts an inbound event at most once. The pre-check catches ordinary
// provider retries cheaply; the unique index behind InsertMessage catches the
// concurrent-duplicate window the pre-check cannot.
type Gate struct {
	messages Messages
}

func NewGate(messages Messages) *Gate {
	return &Gate{messages: messages}
}

// Accept persists the message and returns its id. It returns
// store.ErrAlreadyProcessed when the provider event id was seen before,
// sequentially or concurrently; callers must not generate a reply in that
// case. Messages without an event id are always accepted.
func (g *Gate) Accept(ctx context.Context, m store.Message) (string, error) {
	if m.ProviderEventID != "" {
		seen, err := g.messages.MessageEventExists(ctx, m.Provider, m.ProviderEventID)
		if err != nil {
			return "", err
		}
		if seen {
			return "", store.ErrAlreadyProcessed
		}
	}
	return g.messages.InsertMessage(ctx, m)
}
