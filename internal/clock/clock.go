package clock

import "time"

// Clock abstracts time.Now so TTL, backoff and staleness logic
// can be tested against a fixed time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
