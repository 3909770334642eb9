package credentials

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/db"
)

const userID = "3f6c2a9e-1d2b-4c55-8e0f-6a7b8c9d0e1f"

func newService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return NewService(&db.DB{DB: sqlDB}), mock
}

func TestRegisterNewUser(t *testing.T) {
	s, mock := newService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users")).
		WithArgs("new@x.com").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("new@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(userID))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credentials")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), HashVersionBcrypt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO profiles")).
		WithArgs(userID, "new@x.com", "user", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	user, err := s.Register(context.Background(), " new@x.com ", "correct horse")
	require.NoError(t, err)

	assert.Equal(t, auth.User{ID: userID, Email: "new@x.com"}, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterAlreadyRegistered(t *testing.T) {
	s, mock := newService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(userID))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := s.Register(context.Background(), "old@x.com", "correct horse")

	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterRejectsBadInputBeforeTouchingDB(t *testing.T) {
	s, mock := newService(t)

	_, err := s.Register(context.Background(), "not-an-email", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = s.Register(context.Background(), "a@x.com", "short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	rows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "email", "password_hash", "hash_version"}).
			AddRow(userID, "a@x.com", string(hash), HashVersionBcrypt)
	}

	t.Run("ok", func(t *testing.T) {
		s, mock := newService(t)
		mock.ExpectQuery(regexp.QuoteMeta("JOIN credentials")).WithArgs("A@x.com").WillReturnRows(rows())

		user, err := s.Authenticate(context.Background(), "A@x.com", "correct horse")
		require.NoError(t, err)
		assert.Equal(t, auth.User{ID: userID, Email: "a@x.com"}, user)
	})

	t.Run("wrong password", func(t *testing.T) {
		s, mock := newService(t)
		mock.ExpectQuery(regexp.QuoteMeta("JOIN credentials")).WillReturnRows(rows())

		_, err := s.Authenticate(context.Background(), "a@x.com", "battery staple")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		s, mock := newService(t)
		mock.ExpectQuery(regexp.QuoteMeta("JOIN credentials")).WillReturnError(sql.ErrNoRows)

		_, err := s.Authenticate(context.Background(), "ghost@x.com", "correct horse")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestVerifyPasswordRejectsUnknownHashVersion(t *testing.T) {
	hash, _, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.NoError(t, VerifyPassword(Credential{PasswordHash: hash, HashVersion: HashVersionBcrypt}, "correct horse"))
	assert.ErrorIs(t, VerifyPassword(Credential{PasswordHash: hash, HashVersion: "md5"}, "correct horse"), ErrInvalidCredentials)
}
