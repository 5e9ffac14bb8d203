// Package session threads messages into bounded conversations per
// (user, channel scope).
package session

import (
	"context"
	"errors"
	"time"

	"concierge/internal/store"
)

type Conversations interface {
	FindOpenConversation(ctx context.Context, userID, scope string, activeSince time.Time) (*store.Conversation, error)
	TouchConversation(ctx context.Context, id string, now time.Time) error
	InsertConversation(ctx context.Context, userID, scope string, now time.Time) (string, error)
}

// Manager finds or opens the conversation new messages should attach to.
//
// Window is the inactivity cutoff: an open conversation idle for longer than
// the window is treated as stale and a fresh one is opened. A zero window
// reuses any open conversation regardless of age.
//
// The lookup-then-insert below can race under concurrent calls for the same
// (user, scope) and produce two open conversations. The store does not carry a
// constraint for this pair; see the design notes.
type Manager struct {
	conversations Conversations
	window        time.Duration
	now           func() time.Time
}

func NewManager(conversations Conversations, window time.Duration) *Manager {
	return &Manager{conversations: conversations, window: window, now: time.Now}
}

// Attach returns the conversation id for (user, scope), touching its activity
// timestamp, or opens a new conversation when none is reusable.
func (m *Manager) Attach(ctx context.Context, userID, scope string) (string, error) {
	now := m.now()
	var activeSince time.Time
	if m.window > 0 {
		activeSince = now.Add(-m.window)
	}

	c, err := m.conversations.FindOpenConversation(ctx, userID, scope, activeSince)
	if err == nil {
		if terr := m.conversations.TouchConversation(ctx, c.ID, now); terr != nil {
			return "", terr
		}
		return c.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	return m.conversations.InsertConversation(ctx, userID, scope, now)
}
