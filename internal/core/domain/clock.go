package domain

import "time"

// Clock abstracts time for everything that checks TTLs or expiry, so tests
// can drive the clock instead of sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
