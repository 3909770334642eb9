// Package account turns verified sign-ins into users. It is the only code
// that creates users, identity links and profile rows; profile lookup
// never does.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/db"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
)

// Execer is satisfied by *sql.DB, *sql.Tx and *db.DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ProvisionProfile creates the profile row for a user with role user. An
// existing row is left untouched.
func ProvisionProfile(ctx context.Context, ex Execer, userID, email, displayName string) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO profiles (id, email, role, display_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, userID, email, string(auth.RoleUser), displayName)
	if err != nil {
		return fmt.Errorf("account: provision profile: %w", err)
	}
	return nil
}

// Linker resolves an external identity to a user, linking or creating
// one as needed.
type Linker struct {
	db *db.DB
}

func NewLinker(db *db.DB) *Linker {
	return &Linker{db: db}
}

// Link returns the user behind identity:
//  1. an existing (provider, provider_user_id) link,
//  2. an existing user with the same email, linked to the new identity,
//  3. a newly created user.
//
// Every path makes sure the user has a profile row.
func (l *Linker) Link(ctx context.Context, identity *auth.Identity) (auth.User, error) {
	if identity == nil {
		return auth.User{}, errors.New("account: identity is nil")
	}

	userID, email, err := l.lookupIdentity(ctx, identity)
	if err == nil {
		return l.finish(ctx, userID, email, identity.DisplayName)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, fmt.Errorf("account: lookup identity: %w", err)
	}

	err = l.db.QueryRowContext(ctx, `
		SELECT id, email
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, identity.Email).Scan(&userID, &email)

	switch {
	case err == nil:
		logger.Info("linking identity to existing user", map[string]any{
			"provider": identity.Provider,
			"user_id":  userID.String(),
		})
	case errors.Is(err, sql.ErrNoRows):
		err = l.db.QueryRowContext(ctx, `
			INSERT INTO users (email, email_verified)
			VALUES ($1, $2)
			RETURNING id, email
		`, identity.Email, identity.EmailVerified).Scan(&userID, &email)
		if err != nil {
			return auth.User{}, fmt.Errorf("account: create user: %w", err)
		}
		logger.Info("user created from identity", map[string]any{
			"provider": identity.Provider,
			"user_id":  userID.String(),
		})
	default:
		return auth.User{}, fmt.Errorf("account: lookup user by email: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO identities (user_id, provider, provider_user_id)
		VALUES ($1, $2, $3)
	`, userID, identity.Provider, identity.ProviderUserID)
	if err != nil {
		return auth.User{}, fmt.Errorf("account: link identity: %w", err)
	}

	return l.finish(ctx, userID, email, identity.DisplayName)
}

func (l *Linker) lookupIdentity(ctx context.Context, identity *auth.Identity) (uuid.UUID, string, error) {
	var (
		userID uuid.UUID
		email  string
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT u.id, u.email
		FROM identities i
		JOIN users u ON u.id = i.user_id
		WHERE i.provider = $1
		  AND i.provider_user_id = $2
	`, identity.Provider, identity.ProviderUserID).Scan(&userID, &email)
	return userID, email, err
}

func (l *Linker) finish(ctx context.Context, userID uuid.UUID, email, displayName string) (auth.User, error) {
	if err := ProvisionProfile(ctx, l.db, userID.String(), email, displayName); err != nil {
		return auth.User{}, err
	}
	return auth.User{ID: userID.String(), Email: email}, nil
}
