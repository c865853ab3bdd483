package clock

import "time"

// Clock provides current time abstraction for deterministic tests.
// Params: none.
// Returns: current wall-clock time.
type Clock interface {
	Now() time.Time
}

// RealClock reads current time from the system clock.
// Params: none.
// Returns: current local timestamp.
type RealClock struct{}

// Now returns current local time.
// Params: none.
// Returns: current timestamp.
func (RealClock) Now() time.Time {
	return time.Now()
}
