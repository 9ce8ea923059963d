// Package timing records start/end pairs from a monotonic clock.
package timing

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the time source used for every measurement. The real clock's
// readings carry Go's monotonic component, so only differences are used.
type Clock = clockwork.Clock

// RealClock returns the system clock.
func RealClock() Clock { return clockwork.NewRealClock() }

// Sample is a (start, end) pair of timestamps.
type Sample struct {
	Start time.Time `json:"-"`
	End   time.Time `json:"-"`
}

// Elapsed returns End - Start.
func (s Sample) Elapsed() time.Duration { return s.End.Sub(s.Start) }

// Millis returns the elapsed time in fractional milliseconds.
func (s Sample) Millis() float64 {
	return float64(s.Elapsed()) / float64(time.Millisecond)
}

// Measure runs fn and returns the interval spanning it. The sample is
// returned even when fn fails.
func Measure(clock Clock, fn func() error) (Sample, error) {
	start := clock.Now()
	err := fn()
	return Sample{Start: start, End: clock.Now()}, err
}
