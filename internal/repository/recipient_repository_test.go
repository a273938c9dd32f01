package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

var recipientColumns = []string{"id", "email", "first_name", "verified", "notifications_enabled", "blacklisted", "audience", "last_contacted_at"}

func newRecipientRepo(t *testing.T, now time.Time) (*repository.RecipientRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &repository.RecipientRepository{DB: db, Audience: "customer", Now: func() time.Time { return now }}, mock
}

func TestRecipientRepository_ClaimNext(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	repo, mock := newRecipientRepo(t, now)

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(now, "customer").
		WillReturnRows(sqlmock.NewRows(recipientColumns).
			AddRow(int64(7), "ada@example.com", "Ada", true, true, false, "customer", now))

	rec, err := repo.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, "ada@example.com", rec.Email)
	require.NotNil(t, rec.LastContactedAt)
	assert.True(t, rec.LastContactedAt.Equal(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientRepository_ClaimNextWithoutEmail(t *testing.T) {
	now := time.Now().UTC()
	repo, mock := newRecipientRepo(t, now)

	mock.ExpectQuery("UPDATE recipients").
		WillReturnRows(sqlmock.NewRows(recipientColumns).
			AddRow(int64(8), nil, "Bob", true, true, false, "customer", now))

	rec, err := repo.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.HasAddress())
}

func TestRecipientRepository_ClaimNextNoneLeft(t *testing.T) {
	repo, mock := newRecipientRepo(t, time.Now())
	mock.ExpectQuery("UPDATE recipients").WillReturnRows(sqlmock.NewRows(recipientColumns))

	rec, err := repo.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecipientRepository_ClaimNextStoreFailure(t *testing.T) {
	repo, mock := newRecipientRepo(t, time.Now())
	mock.ExpectQuery("UPDATE recipients").WillReturnError(errors.New("too many connections"))

	rec, err := repo.ClaimNext(context.Background())
	require.Error(t, err)
	assert.Nil(t, rec)
}

func TestRecipientRepository_Release(t *testing.T) {
	repo, mock := newRecipientRepo(t, time.Now())
	mock.ExpectExec(regexp.QuoteMeta("SET last_contacted_at = NULL WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Releasing twice (or an unknown id) just updates nothing.
	mock.ExpectExec(regexp.QuoteMeta("SET last_contacted_at = NULL WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Release(context.Background(), 7))
	require.NoError(t, repo.Release(context.Background(), 7))
	require.NoError(t, mock.ExpectationsWereMet())
}
