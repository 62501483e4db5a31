package pipeline

import "time"

// PeriodOf truncates a posting date to the summary period granularity
// (month start, UTC).
func PeriodOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
