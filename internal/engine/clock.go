package engine

import "time"

// Clock supplies creation timestamps and issuance dates.
//
// Production uses SystemClock. Tests inject a deterministic clock so stored
// timestamps and dispatch messages are reproducible.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
