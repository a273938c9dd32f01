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

func newMockDB(t *testing.T) (*repository.CounterRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &repository.CounterRepository{DB: db}, mock
}

func TestCounterRepository_GetUpsertsTheDay(t *testing.T) {
	repo, mock := newMockDB(t)
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (day) DO UPDATE SET day = EXCLUDED.day")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"day", "sent_count", "open_count", "click_count"}).
			AddRow(day, int64(12), int64(4), int64(1)))

	c, err := repo.Get(context.Background(), day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, day, c.Day)
	assert.Equal(t, int64(12), c.SentCount)
	assert.Equal(t, int64(4), c.OpenCount)
	assert.Equal(t, int64(1), c.ClickCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterRepository_IncrementIsASingleUpsert(t *testing.T) {
	tests := []struct {
		name   string
		column string
		call   func(*repository.CounterRepository, context.Context, time.Time) error
	}{
		{name: "sent", column: "sent_count", call: (*repository.CounterRepository).IncrementSent},
		{name: "opens", column: "open_count", call: (*repository.CounterRepository).IncrementOpens},
		{name: "clicks", column: "click_count", call: (*repository.CounterRepository).IncrementClicks},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockDB(t)
			mock.ExpectExec(regexp.QuoteMeta("SET " + tt.column + " = daily_counters." + tt.column + " + 1")).
				WithArgs(sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))

			require.NoError(t, tt.call(repo, context.Background(), time.Now()))
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCounterRepository_IncrementPropagatesStoreFailure(t *testing.T) {
	repo, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO daily_counters").WillReturnError(errors.New("connection refused"))

	err := repo.IncrementSent(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCounterRepository_Recent(t *testing.T) {
	repo, mock := newMockDB(t)
	d1 := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	d0 := d1.AddDate(0, 0, -1)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY day DESC")).
		WithArgs(30).
		WillReturnRows(sqlmock.NewRows([]string{"day", "sent_count", "open_count", "click_count"}).
			AddRow(d1, int64(5), int64(0), int64(0)).
			AddRow(d0, int64(7), int64(2), int64(1)))

	counters, err := repo.Recent(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, counters, 2)
	assert.Equal(t, d1, counters[0].Day)
	assert.Equal(t, int64(7), counters[1].SentCount)
	require.NoError(t, mock.ExpectationsWereMet())
}
