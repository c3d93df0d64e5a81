package testutil

import "time"

// Constants for timing out operations, usable for creating contexts
// that timeout or in require.Eventually.
const (
	WaitShort  = 10 * time.Second
	WaitMedium = 15 * time.Second
	WaitLong   = 25 * time.Second
)

// Constants for polling intervals.
const (
	IntervalFast   = 25 * time.Millisecond
	IntervalMedium = 250 * time.Millisecond
)
