package preferences

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/db"
)

const userID = "0b9f6a52-3c55-4f57-a1de-6c7a8e9f0a11"

func newMock(t *testing.T) (*DBSource, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewDBSource(&db.DB{DB: sqlDB}), mock
}

func TestFetchPreferencesScansArrays(t *testing.T) {
	src, mock := newMock(t)

	mock.ExpectQuery(`FROM public.user_preferences`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{
			"genres", "moods", "viewing_time", "favorite_content", "avoid_content", "age_ratings", "language",
		}).AddRow("{drama,comedy}", "{cozy}", 90, "{}", "{\"Saw X\"}", "{PG-13}", "en"))

	p, err := src.FetchPreferences(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, []string{"drama", "comedy"}, p.Genres)
	assert.Equal(t, []string{"cozy"}, p.Moods)
	assert.Equal(t, 90, p.ViewingTime)
	assert.Empty(t, p.FavoriteContent)
	assert.Equal(t, []string{"Saw X"}, p.AvoidContent)
	assert.Equal(t, []string{"PG-13"}, p.AgeRatings)
	assert.Equal(t, "en", p.Language)
}

func TestFetchPreferencesNoRows(t *testing.T) {
	src, mock := newMock(t)

	mock.ExpectQuery(`FROM public.user_preferences`).
		WithArgs(userID).
		WillReturnError(sql.ErrNoRows)

	p, err := src.FetchPreferences(context.Background(), userID)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSavePreferencesUpserts(t *testing.T) {
	src, mock := newMock(t)

	mock.ExpectExec(`ON CONFLICT \(user_id\) DO UPDATE`).
		WithArgs(userID, sqlmock.AnyArg(), sqlmock.AnyArg(), 120,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "fr").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := src.SavePreferences(context.Background(), userID, auth.Preferences{
		Genres:      []string{"noir"},
		ViewingTime: 120,
		Language:    "fr",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
