package session

import (
	"context"
	"time"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
)

// Session represents an authenticated user session.
// It stores the subject identity and expiry only; profile data lives
// with the auth context.
type Session struct {
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id"` // references users.id
	Email             string    `json:"email,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	AbsoluteExpiresAt time.Time `json:"absolute_expires_at"`
}

// User returns the session subject. A nil session has no user.
func (s *Session) User() (auth.User, bool) {
	if s == nil || s.UserID == "" {
		return auth.User{}, false
	}
	return auth.User{ID: s.UserID, Email: s.Email}, true
}

func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// MaxLifetime caps how long renewals can keep a session alive.
const MaxLifetime = 30 * 24 * time.Hour

// New builds a session for userID expiring ttl from now.
func New(userID, email string, ttl time.Duration) (Session, error) {
	id, err := GenerateID()
	if err != nil {
		return Session{}, err
	}

	now := time.Now()
	return Session{
		SessionID:         id,
		UserID:            userID,
		Email:             email,
		CreatedAt:         now,
		ExpiresAt:         now.Add(ttl),
		AbsoluteExpiresAt: now.Add(max(ttl, MaxLifetime)),
	}, nil
}

// Renewed slides the expiry to now+ttl once less than half of ttl is
// left, never past AbsoluteExpiresAt. It reports false when no renewal
// is due or possible.
func (s Session) Renewed(ttl time.Duration, now time.Time) (Session, bool) {
	if ttl <= 0 || s.IsExpired(now) || s.ExpiresAt.Sub(now) >= ttl/2 {
		return s, false
	}

	next := now.Add(ttl)
	if !s.AbsoluteExpiresAt.IsZero() && next.After(s.AbsoluteExpiresAt) {
		next = s.AbsoluteExpiresAt
	}
	if !next.After(s.ExpiresAt) {
		return s, false
	}

	s.ExpiresAt = next
	return s, true
}

// Store defines how sessions are stored and retrieved.
// Get returns (nil, nil) when the session does not exist.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}
