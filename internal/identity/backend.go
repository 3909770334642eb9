// Package identity delivers authentication sessions and auth-state-change
// events to the per-session auth contexts.
package identity

import (
	"context"
	"time"

	"github.com/joshuamichael7/whattowatch-sub004/internal/session"
)

type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// Listener receives auth-state changes. sess is nil when the session ended.
type Listener func(event Event, sess *session.Session)

// Backend is the identity backend as seen by one auth context.
type Backend interface {
	CurrentSession(ctx context.Context) (*session.Session, error)
	Subscribe(l Listener) (unsubscribe func())
}

// Publisher announces auth-state changes for a session.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, event Event, sess *session.Session) error
}

// SessionBackend is the Backend for a single browser session.
type SessionBackend struct {
	store     session.Store
	hub       *Hub
	sessionID string
	now       func() time.Time
}

func NewSessionBackend(store session.Store, hub *Hub, sessionID string) *SessionBackend {
	return &SessionBackend{
		store:     store,
		hub:       hub,
		sessionID: sessionID,
		now:       time.Now,
	}
}

// CurrentSession returns the stored session, or nil when it is missing
// or expired.
func (b *SessionBackend) CurrentSession(ctx context.Context) (*session.Session, error) {
	sess, err := b.store.Get(ctx, b.sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.IsExpired(b.now()) {
		return nil, nil
	}
	return sess, nil
}

func (b *SessionBackend) Subscribe(l Listener) func() {
	return b.hub.Subscribe(b.sessionID, l)
}
