// Package timing derives inter-sample time deltas from hardware tick
// counters, unwrapping rollover and bounding pathological gaps.
package timing

import "errors"

// ErrNonPositiveDelta reports a computed dt of zero or less after rollover
// correction. Such a delta must never reach the fusion filter.
var ErrNonPositiveDelta = errors.New("non-positive time delta")

const (
	// DefaultTicksPerSecond matches the sensor's microsecond counter.
	DefaultTicksPerSecond = 1_000_000.0

	// DefaultRolloverThreshold mirrors the replay guard's wraparound rule.
	DefaultRolloverThreshold uint64 = 1 << 63

	// DefaultCeiling bounds dt after a connection gap. Larger deltas are
	// clamped and reported rather than forwarded.
	DefaultCeiling = 0.1
)

// Extractor converts consecutive hardware timestamps into seconds. It is
// a pure function of its configuration; callers keep the previous
// timestamp.
type Extractor struct {
	ticksPerSecond    float64
	rolloverThreshold uint64
	ceiling           float64
}

type Option func(*Extractor)

func WithTicksPerSecond(tps float64) Option {
	return func(e *Extractor) {
		if tps > 0 {
			e.ticksPerSecond = tps
		}
	}
}

func WithRolloverThreshold(n uint64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.rolloverThreshold = n
		}
	}
}

func WithCeiling(s float64) Option {
	return func(e *Extractor) {
		if s > 0 {
			e.ceiling = s
		}
	}
}

func New(opts ...Option) *Extractor {
	e := &Extractor{
		ticksPerSecond:    DefaultTicksPerSecond,
		rolloverThreshold: DefaultRolloverThreshold,
		ceiling:           DefaultCeiling,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ceiling returns the configured dt ceiling in seconds.
func (e *Extractor) Ceiling() float64 { return e.ceiling }

// Delta computes the elapsed seconds between two consecutive timestamps.
// A backwards timestamp is only honoured as a counter rollover when the
// decrease exceeds the rollover threshold; the unsigned subtraction then
// yields the correctly unwrapped tick count. Deltas above the ceiling are
// clamped to it and flagged as a gap for the caller to report.
func (e *Extractor) Delta(prev, cur uint64) (dt float64, gap bool, err error) {
	if cur < prev && prev-cur < e.rolloverThreshold {
		return 0, false, ErrNonPositiveDelta
	}

	ticks := cur - prev // wraps to the unwrapped distance on rollover
	if ticks == 0 {
		return 0, false, ErrNonPositiveDelta
	}

	dt = float64(ticks) / e.ticksPerSecond
	if dt > e.ceiling {
		return e.ceiling, true, nil
	}
	return dt, false, nil
}
