// internal/model/dispatch.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// RunResult is what a single dispatch run reports back to its trigger.
type RunResult struct {
	RunID      uuid.UUID `json:"-"`
	Sent       int       `json:"sent"`
	Skipped    int       `json:"-"`
	Failed     int       `json:"-"`
	StartedAt  time.Time `json:"-"`
	FinishedAt time.Time `json:"-"`
}

// StatsTotals aggregates the counters of the reported window.
type StatsTotals struct {
	Sent        int64 `json:"sent"`
	Opens       int64 `json:"opens"`
	Clicks      int64 `json:"clicks"`
	Last24hSent int64 `json:"last24hSent"`
	DailyLimit  *int  `json:"dailyLimit"`
}

// StatsDay is one history entry of the stats report.
type StatsDay struct {
	Date   string `json:"date"`
	Sent   int64  `json:"sent"`
	Opens  int64  `json:"opens"`
	Clicks int64  `json:"clicks"`
}

type Stats struct {
	Totals  StatsTotals `json:"totals"`
	History []StatsDay  `json:"history"`
}
