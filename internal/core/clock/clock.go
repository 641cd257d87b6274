// Package clock abstracts "now" so that day bucketing and year-scoped
// numbering stay deterministic in tests.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant. For tests and replays.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }

// Today truncates the clock's current time to the start of its UTC day.
// Balance rows are bucketed by this value.
func Today(c Clock) time.Time {
	return c.Now().UTC().Truncate(24 * time.Hour)
}
