package voicecore

import "time"

// TimeProvider is an interface for getting the current time and creating
// tickers. It allows injecting a mock provider for deterministic testing of
// the control loop and the stats collector.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
	// NewTicker creates a new ticker that fires at the given interval.
	NewTicker(d time.Duration) *time.Ticker
}

// RealTimeProvider implements TimeProvider using the actual system clock.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time { return time.Now() }

// NewTicker creates a real ticker backed by the system clock.
func (RealTimeProvider) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }
