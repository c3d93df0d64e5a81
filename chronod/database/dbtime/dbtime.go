package dbtime

import "time"

// Now returns a standardized timezone used for database resources.
func Now() time.Time {
	return Time(time.Now().UTC())
}

// Time returns a time compatible with Postgres. Postgres only stores dates
// with microsecond precision.
func Time(t time.Time) time.Time {
	return t.Round(time.Microsecond)
}

// StartOfDay floors t to UTC midnight. Time entries are keyed by the UTC
// calendar day of the moment the work started.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
