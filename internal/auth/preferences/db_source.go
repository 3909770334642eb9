package preferences

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/db"
)

// DBSource stores preferences in the user_preferences table.
type DBSource struct {
	db *db.DB
}

func NewDBSource(db *db.DB) *DBSource {
	return &DBSource{db: db}
}

func (s *DBSource) FetchPreferences(ctx context.Context, userID string) (*auth.Preferences, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}

	var p auth.Preferences
	err := s.db.QueryRowContext(ctx, `
		SELECT genres, moods, viewing_time, favorite_content,
		       avoid_content, age_ratings, language
		FROM public.user_preferences
		WHERE user_id = $1
	`, userID).Scan(
		pq.Array(&p.Genres),
		pq.Array(&p.Moods),
		&p.ViewingTime,
		pq.Array(&p.FavoriteContent),
		pq.Array(&p.AvoidContent),
		pq.Array(&p.AgeRatings),
		&p.Language,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("preferences: fetch: %w", err)
	}

	return &p, nil
}

// SavePreferences replaces the stored preferences for userID.
func (s *DBSource) SavePreferences(ctx context.Context, userID string, p auth.Preferences) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO public.user_preferences
			(user_id, genres, moods, viewing_time, favorite_content,
			 avoid_content, age_ratings, language, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			genres = EXCLUDED.genres,
			moods = EXCLUDED.moods,
			viewing_time = EXCLUDED.viewing_time,
			favorite_content = EXCLUDED.favorite_content,
			avoid_content = EXCLUDED.avoid_content,
			age_ratings = EXCLUDED.age_ratings,
			language = EXCLUDED.language,
			updated_at = NOW()
	`,
		userID,
		pq.Array(nonNil(p.Genres)),
		pq.Array(nonNil(p.Moods)),
		p.ViewingTime,
		pq.Array(nonNil(p.FavoriteContent)),
		pq.Array(nonNil(p.AvoidContent)),
		pq.Array(nonNil(p.AgeRatings)),
		p.Language,
	)
	if err != nil {
		return fmt.Errorf("preferences: save: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
