package service

import (
	"context"
	"fmt"
	"time"

	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

// StatsWindowDays is how many day buckets a stats report covers.
const StatsWindowDays = 30

type StatsAggregator struct {
	Counters   repository.CounterRepositoryInterface
	DailyLimit *int
	Now        func() time.Time
}

// GetStats sums the most recent buckets and lists them newest first.
// Totals cover exactly the reported window.
func (a *StatsAggregator) GetStats(ctx context.Context) (*model.Stats, error) {
	buckets, err := a.Counters.Recent(ctx, StatsWindowDays)
	if err != nil {
		return nil, fmt.Errorf("read recent counters: %w", err)
	}
	if len(buckets) > StatsWindowDays {
		buckets = buckets[:StatsWindowDays]
	}

	cutoff := a.now().Add(-24 * time.Hour)
	stats := &model.Stats{
		Totals:  model.StatsTotals{DailyLimit: a.DailyLimit},
		History: make([]model.StatsDay, 0, len(buckets)),
	}
	for _, c := range buckets {
		stats.Totals.Sent += c.SentCount
		stats.Totals.Opens += c.OpenCount
		stats.Totals.Clicks += c.ClickCount
		if !c.Day.Before(cutoff) {
			stats.Totals.Last24hSent += c.SentCount
		}
		stats.History = append(stats.History, model.StatsDay{
			Date:   model.DayKey(c.Day),
			Sent:   c.SentCount,
			Opens:  c.OpenCount,
			Clicks: c.ClickCount,
		})
	}
	return stats, nil
}

func (a *StatsAggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}
