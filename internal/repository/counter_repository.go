package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// CounterRepositoryInterface is the day-bucketed counter store.
// Every method is a single atomic store operation.
type CounterRepositoryInterface interface {
	// Get returns the bucket for day, creating it with zero counts if absent.
	Get(ctx context.Context, day time.Time) (*model.DailyCounter, error)
	IncrementSent(ctx context.Context, day time.Time) error
	IncrementOpens(ctx context.Context, day time.Time) error
	IncrementClicks(ctx context.Context, day time.Time) error
	// Recent returns up to limit buckets, most recent first.
	Recent(ctx context.Context, limit int) ([]model.DailyCounter, error)
}

type CounterRepository struct {
	DB *sql.DB
}

const (
	columnSent   = "sent_count"
	columnOpens  = "open_count"
	columnClicks = "click_count"
)

func (r *CounterRepository) Get(ctx context.Context, day time.Time) (*model.DailyCounter, error) {
	// The no-op update makes RETURNING yield the row whether it was inserted or not.
	query := `
        INSERT INTO daily_counters (day)
        VALUES ($1)
        ON CONFLICT (day) DO UPDATE SET day = EXCLUDED.day
        RETURNING day, sent_count, open_count, click_count
    `
	var c model.DailyCounter
	err := r.DB.QueryRowContext(ctx, query, model.DayOf(day)).Scan(&c.Day, &c.SentCount, &c.OpenCount, &c.ClickCount)
	if err != nil {
		return nil, fmt.Errorf("get counter %s: %w", model.DayKey(day), err)
	}
	c.Day = model.DayOf(c.Day)
	return &c, nil
}

func (r *CounterRepository) IncrementSent(ctx context.Context, day time.Time) error {
	return r.increment(ctx, day, columnSent)
}

func (r *CounterRepository) IncrementOpens(ctx context.Context, day time.Time) error {
	return r.increment(ctx, day, columnOpens)
}

func (r *CounterRepository) IncrementClicks(ctx context.Context, day time.Time) error {
	return r.increment(ctx, day, columnClicks)
}

// increment is an upsert; column is always one of the constants above.
func (r *CounterRepository) increment(ctx context.Context, day time.Time, column string) error {
	query := fmt.Sprintf(`
        INSERT INTO daily_counters (day, %[1]s)
        VALUES ($1, 1)
        ON CONFLICT (day) DO UPDATE SET %[1]s = daily_counters.%[1]s + 1
    `, column)
	if _, err := r.DB.ExecContext(ctx, query, model.DayOf(day)); err != nil {
		return fmt.Errorf("increment %s for %s: %w", column, model.DayKey(day), err)
	}
	return nil
}

func (r *CounterRepository) Recent(ctx context.Context, limit int) ([]model.DailyCounter, error) {
	query := `
        SELECT day, sent_count, open_count, click_count
        FROM daily_counters
        ORDER BY day DESC
        LIMIT $1
    `
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	counters := []model.DailyCounter{}
	for rows.Next() {
		var c model.DailyCounter
		if err := rows.Scan(&c.Day, &c.SentCount, &c.OpenCount, &c.ClickCount); err != nil {
			return nil, err
		}
		c.Day = model.DayOf(c.Day)
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

var _ CounterRepositoryInterface = (*CounterRepository)(nil)
