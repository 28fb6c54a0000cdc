// Package clock abstracts time lookups for testability. The AI throttle
// gate and relative-time rendering read the current time through Clock so
// tests can pin it.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the elapsed time since t.
	Since(t time.Time) time.Duration
}

// RealClock reads the system clock.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the elapsed system time since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// Fixed is a Clock pinned to a single instant.
type Fixed struct {
	At time.Time
}

// Now returns the pinned instant.
func (f Fixed) Now() time.Time {
	return f.At
}

// Since returns the elapsed time from t to the pinned instant.
func (f Fixed) Since(t time.Time) time.Duration {
	return f.At.Sub(t)
}

var (
	_ Clock = RealClock{}
	_ Clock = Fixed{}
)
