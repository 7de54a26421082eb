// Package latency records round-trip latency samples into an HDR histogram.
package latency

import (
	"errors"
	"fmt"
	"math"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// ErrOutOfRange is returned by Record when a sample falls outside the
// histogram's trackable range. The sample is counted as rejected.
var ErrOutOfRange = errors.New("latency sample out of histogram range")

// Recorder wraps an HDR histogram for closed-loop latency measurement.
//
// Values are recorded in microseconds multiplied by a precision factor, so
// that a coarse clock still spreads samples over distinct buckets. Every
// read divides by the same factor before returning.
//
// # Thread Safety
//
// Recorder is not safe for concurrent use. It is owned by a single client
// event loop and mutated only from completion callbacks running on that
// loop's goroutine.
type Recorder struct {
	hist     *hdrhistogram.Histogram
	config   Config
	rejected uint64
}

// Config contains configuration for the recorder.
type Config struct {
	// MinMicros is the lowest trackable latency in microseconds (default: 1)
	MinMicros int64

	// MaxMicros is the highest trackable latency in microseconds (default: 100s)
	MaxMicros int64

	// SigFigs is the number of significant digits kept per bucket (default: 2)
	SigFigs int

	// Precision multiplies recorded values before insertion (default: 10)
	Precision float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MinMicros: 1,
		MaxMicros: 100 * 1000 * 1000, // 100 seconds
		SigFigs:   2,
		Precision: 10,
	}
}

// Snapshot holds the statistics printed for one reporting interval.
// All latencies are in microseconds with the precision factor removed.
type Snapshot struct {
	P5    float64 `json:"p5Us"`
	P50   float64 `json:"p50Us"`
	P99   float64 `json:"p99Us"`
	Max   float64 `json:"maxUs"`
	Count int64   `json:"count"`
}

// New creates a recorder. The histogram range is the configured
// microsecond range scaled by the precision factor.
func New(config Config) (*Recorder, error) {
	if config.Precision <= 0 {
		return nil, fmt.Errorf("invalid precision factor %v", config.Precision)
	}
	if config.MinMicros < 1 || config.MaxMicros <= config.MinMicros {
		return nil, fmt.Errorf("invalid histogram range [%d, %d]", config.MinMicros, config.MaxMicros)
	}
	if config.SigFigs < 1 || config.SigFigs > 5 {
		return nil, fmt.Errorf("invalid significant figures %d", config.SigFigs)
	}

	lowest := int64(float64(config.MinMicros) * config.Precision)
	highest := int64(float64(config.MaxMicros) * config.Precision)

	return &Recorder{
		hist:   hdrhistogram.New(lowest, highest, config.SigFigs),
		config: config,
	}, nil
}

// Record records one latency sample given in microseconds.
//
// Samples outside [MinMicros, MaxMicros] are rejected rather than clamped:
// the caller gets ErrOutOfRange and the rejection counter grows.
func (r *Recorder) Record(latencyMicros float64) error {
	if math.IsNaN(latencyMicros) || latencyMicros < float64(r.config.MinMicros) || latencyMicros > float64(r.config.MaxMicros) {
		r.rejected++
		return fmt.Errorf("%w: %.3fus not in [%d, %d]", ErrOutOfRange, latencyMicros, r.config.MinMicros, r.config.MaxMicros)
	}

	// hdrhistogram rejects values above its highest trackable bucket too
	if err := r.hist.RecordValue(int64(latencyMicros * r.config.Precision)); err != nil {
		r.rejected++
		return fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}

	return nil
}

// Percentile returns the latency at percentile p (0 < p <= 100), or 0 when
// no samples have been recorded.
func (r *Recorder) Percentile(p float64) float64 {
	if r.hist.TotalCount() == 0 {
		return 0
	}
	return float64(r.hist.ValueAtPercentile(p)) / r.config.Precision
}

// Max returns the highest recorded latency, or 0 when empty.
func (r *Recorder) Max() float64 {
	if r.hist.TotalCount() == 0 {
		return 0
	}
	return float64(r.hist.Max()) / r.config.Precision
}

// Count returns the number of samples currently in the histogram.
func (r *Recorder) Count() int64 {
	return r.hist.TotalCount()
}

// Empty reports whether the histogram holds no samples.
func (r *Recorder) Empty() bool {
	return r.hist.TotalCount() == 0
}

// Rejected returns the number of out-of-range samples since creation.
// Reset does not clear it.
func (r *Recorder) Rejected() uint64 {
	return r.rejected
}

// Snapshot returns the interval statistics in one call.
func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		P5:    r.Percentile(5),
		P50:   r.Percentile(50),
		P99:   r.Percentile(99),
		Max:   r.Max(),
		Count: r.Count(),
	}
}

// Reset discards all samples and keeps the histogram configuration.
func (r *Recorder) Reset() {
	r.hist.Reset()
}

// Precision returns the configured precision factor.
func (r *Recorder) Precision() float64 {
	return r.config.Precision
}
