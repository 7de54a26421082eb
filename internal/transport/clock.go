package transport

import "time"

// Clock is a monotonic cycle counter with a calibration value to convert
// cycles into wall-clock time.
type Clock interface {
	// Cycles returns the current counter value.
	Cycles() uint64

	// FreqGHz returns the number of cycles per nanosecond.
	FreqGHz() float64
}

// MonotonicClock counts nanoseconds on Go's monotonic clock, so one cycle
// is one nanosecond and the frequency is 1 GHz.
type MonotonicClock struct {
	base time.Time
}

// NewMonotonicClock creates a clock anchored at the current instant.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{base: time.Now()}
}

// Cycles returns nanoseconds elapsed since the clock was created.
func (c *MonotonicClock) Cycles() uint64 {
	return uint64(time.Since(c.base))
}

// FreqGHz always returns 1.
func (c *MonotonicClock) FreqGHz() float64 {
	return 1
}

// ToUsec converts a cycle count to microseconds.
func ToUsec(cycles uint64, freqGHz float64) float64 {
	return float64(cycles) / (freqGHz * 1000)
}
