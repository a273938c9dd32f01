package service

import (
	"context"
	"fmt"
	"time"

	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

// QuotaCounter enforces the global daily send limit on top of the counter store.
type QuotaCounter struct {
	Counters   repository.CounterRepositoryInterface
	DailyLimit *int
}

func NewQuotaCounter(counters repository.CounterRepositoryInterface, limit *int) *QuotaCounter {
	return &QuotaCounter{Counters: counters, DailyLimit: limit}
}

// HasBudget reports whether another message may be sent on day.
// Without a configured limit it never touches the store.
func (q *QuotaCounter) HasBudget(ctx context.Context, day time.Time) (bool, error) {
	if q.DailyLimit == nil {
		return true, nil
	}
	counter, err := q.Counters.Get(ctx, model.DayOf(day))
	if err != nil {
		return false, fmt.Errorf("read daily counter: %w", err)
	}
	return counter.SentCount < int64(*q.DailyLimit), nil
}

// Increment counts one delivered message against day.
func (q *QuotaCounter) Increment(ctx context.Context, day time.Time) error {
	if err := q.Counters.IncrementSent(ctx, model.DayOf(day)); err != nil {
		return fmt.Errorf("increment daily counter: %w", err)
	}
	return nil
}

// Limit is the configured ceiling, nil when unlimited.
func (q *QuotaCounter) Limit() *int {
	return q.DailyLimit
}
