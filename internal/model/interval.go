package model

import "time"

// Interval is a half-open time range [Start, End).  Both ends are kept in
// UTC by the constructors in this package.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval normalises both bounds to UTC.
func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start.UTC(), End: end.UTC()}
}

// Valid reports whether End is strictly after Start.
func (i Interval) Valid() bool { return i.End.After(i.Start) }

// Overlaps reports whether the two half-open intervals share any instant.
// Touching intervals ([1,5) and [5,8)) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Duration returns End-Start.
func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

// MonthInterval returns [first day of month 00:00 UTC, first day of next month).
func MonthInterval(year int, month time.Month) Interval {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Interval{Start: start, End: start.AddDate(0, 1, 0)}
}
