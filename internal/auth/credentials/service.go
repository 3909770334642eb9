package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/auth/account"
	"github.com/joshuamichael7/whattowatch-sub004/internal/db"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyRegistered  = errors.New("credentials already exist")
	ErrInvalidEmail       = errors.New("invalid email address")
)

var validate = validator.New()

type Service struct {
	db *db.DB
}

func NewService(db *db.DB) *Service {
	return &Service{db: db}
}

// Register creates the user if needed, stores the password and provisions
// the user's profile, all in one transaction.
func (s *Service) Register(ctx context.Context, email, password string) (auth.User, error) {
	email = strings.TrimSpace(email)
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return auth.User{}, ErrInvalidEmail
	}

	hash, version, err := HashPassword(password)
	if err != nil {
		return auth.User{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.User{}, fmt.Errorf("credentials: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// 1. Find or create user by email
	var userID uuid.UUID
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&userID)

	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO users (email, email_verified)
			VALUES ($1, false)
			RETURNING id
		`, email).Scan(&userID)
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("credentials: find or create user: %w", err)
	}

	// 2. Refuse a second password
	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM credentials WHERE user_id = $1
		)
	`, userID).Scan(&exists)
	if err != nil {
		return auth.User{}, fmt.Errorf("credentials: check existing: %w", err)
	}
	if exists {
		return auth.User{}, ErrAlreadyRegistered
	}

	// 3. Store the hash
	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (user_id, password_hash, hash_version)
		VALUES ($1, $2, $3)
	`, userID, hash, version)
	if err != nil {
		return auth.User{}, fmt.Errorf("credentials: insert: %w", err)
	}

	// 4. Profile row
	if err := account.ProvisionProfile(ctx, tx, userID.String(), email, ""); err != nil {
		return auth.User{}, err
	}

	if err := tx.Commit(); err != nil {
		return auth.User{}, fmt.Errorf("credentials: commit: %w", err)
	}

	return auth.User{ID: userID.String(), Email: email}, nil
}

// Authenticate checks email and password. Every failure, including an
// unknown email, is reported as ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (auth.User, error) {
	var (
		c      Credential
		userID uuid.UUID
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, c.password_hash, c.hash_version
		FROM users u
		JOIN credentials c ON c.user_id = u.id
		WHERE LOWER(u.email) = LOWER($1)
	`, strings.TrimSpace(email)).Scan(&userID, &c.Email, &c.PasswordHash, &c.HashVersion)
	if err != nil {
		return auth.User{}, ErrInvalidCredentials
	}
	c.UserID = userID.String()

	if err := VerifyPassword(c, password); err != nil {
		return auth.User{}, ErrInvalidCredentials
	}

	return auth.User{ID: c.UserID, Email: c.Email}, nil
}
