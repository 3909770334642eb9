package resolver

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/db"
)

const profileColumns = `id, email, role, display_name, avatar_url, attributes, created_at, updated_at`

// DBSource reads profiles from Postgres.
type DBSource struct {
	db *db.DB
}

func NewDBSource(db *db.DB) *DBSource {
	return &DBSource{db: db}
}

func (s *DBSource) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM public.profiles WHERE LOWER(email) = LOWER($1)
		)
	`, email).Scan(&exists)
	return exists, err
}

func (s *DBSource) ExistsByID(ctx context.Context, id string) (bool, error) {
	// Ids that are not uuids cannot name a profile.
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM public.profiles WHERE id = $1
		)
	`, id).Scan(&exists)
	return exists, err
}

func (s *DBSource) FetchByEmail(ctx context.Context, email string) ([]auth.Profile, error) {
	return s.query(ctx, `
		SELECT `+profileColumns+`
		FROM public.profiles
		WHERE LOWER(email) = LOWER($1)
		ORDER BY created_at
	`, email)
}

func (s *DBSource) FetchByID(ctx context.Context, id string) ([]auth.Profile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return s.query(ctx, `
		SELECT `+profileColumns+`
		FROM public.profiles
		WHERE id = $1
	`, id)
}

// IsAdminByEmail implements AdminChecker.
func (s *DBSource) IsAdminByEmail(ctx context.Context, email string) (bool, error) {
	var admin bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM public.profiles
			WHERE LOWER(email) = LOWER($1) AND role = $2
		)
	`, email, string(auth.RoleAdmin)).Scan(&admin)
	return admin, err
}

// UpdateProfile changes the user-editable profile fields.
func (s *DBSource) UpdateProfile(ctx context.Context, id, displayName, avatarURL string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE public.profiles
		SET display_name = $2, avatar_url = $3, updated_at = NOW()
		WHERE id = $1
	`, id, displayName, avatarURL)
	if err != nil {
		return fmt.Errorf("resolver: update profile: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolver: update profile: %w", err)
	}
	if n == 0 {
		return ErrNoRows
	}
	return nil
}

func (s *DBSource) query(ctx context.Context, q string, arg any) ([]auth.Profile, error) {
	rows, err := s.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Profile
	for rows.Next() {
		var (
			p     auth.Profile
			role  string
			attrs []byte
		)
		if err := rows.Scan(
			&p.ID, &p.Email, &role, &p.DisplayName, &p.AvatarURL,
			&attrs, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("resolver: scan profile: %w", err)
		}
		p.Role = auth.Role(role)

		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &p.Attributes); err != nil {
				return nil, fmt.Errorf("resolver: decode attributes: %w", err)
			}
		}
		out = append(out, p)
	}

	return out, rows.Err()
}
