// internal/model/daily_counter.go
package model

import "time"

// DateLayout is the wire format of a counter's day.
const DateLayout = "2006-01-02"

// DailyCounter is the per-UTC-day bucket of campaign counts.
type DailyCounter struct {
	Day        time.Time `db:"day" json:"date"`
	SentCount  int64     `db:"sent_count" json:"sent"`
	OpenCount  int64     `db:"open_count" json:"opens"`
	ClickCount int64     `db:"click_count" json:"clicks"`
}

// DayOf truncates t to the start of its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey formats a day bucket the way it is stored and reported.
func DayKey(t time.Time) string {
	return DayOf(t).Format(DateLayout)
}
