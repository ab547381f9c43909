// Package replay rejects duplicate, stale, and out-of-order frames.
package replay

import (
	"errors"
	"sync"
)

// ErrReplayDetected reports a frame whose sequence or timestamp places it
// at or before telemetry that was already accepted.
var ErrReplayDetected = errors.New("replay detected")

const (
	// DefaultWindow is how far ahead of the last accepted sequence a frame
	// may land and still be admitted. Loss on the link shows up as small
	// forward jumps; anything larger is treated as suspect.
	DefaultWindow uint32 = 4096

	// DefaultRolloverThreshold is the minimum backwards jump of the tick
	// counter that is read as a genuine wraparound rather than reordering.
	DefaultRolloverThreshold uint64 = 1 << 63
)

// Guard tracks per-source replay state. Checks are order-sensitive: callers
// must present frames for one source from a single goroutine, or serialize
// access; the internal lock only protects the source map itself.
type Guard struct {
	mu                sync.Mutex
	window            uint32
	rolloverThreshold uint64
	sources           map[string]*state
}

// state is one source's tracker. A source starts uninitialized (no entry in
// the map) and transitions to tracking on its first accepted frame.
type state struct {
	seq uint32
	ts  uint64
}

type Option func(*Guard)

func WithWindow(n uint32) Option {
	return func(g *Guard) {
		if n > 0 {
			g.window = n
		}
	}
}

func WithRolloverThreshold(n uint64) Option {
	return func(g *Guard) {
		if n > 0 {
			g.rolloverThreshold = n
		}
	}
}

func New(opts ...Option) *Guard {
	g := &Guard{
		window:            DefaultWindow,
		rolloverThreshold: DefaultRolloverThreshold,
		sources:           make(map[string]*state),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check admits or rejects a validated frame for the given source. The first
// frame from a source is accepted unconditionally. After that a frame must
// advance the sequence by at least one and at most the window, and must not
// move the timestamp backwards unless the counter genuinely rolled over.
// Rejected frames leave the tracked state untouched.
func (g *Guard) Check(source string, seq uint32, ts uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.sources[source]
	if !ok {
		g.sources[source] = &state{seq: seq, ts: ts}
		return nil
	}

	// Wrap-aware distance from the last accepted sequence. Values in the
	// upper half of the range are sequences at or behind the cursor.
	advance := seq - st.seq
	if advance == 0 || advance > g.window {
		return ErrReplayDetected
	}

	if ts < st.ts {
		// A decrease only passes when it is large enough to be the tick
		// counter wrapping, not telemetry arriving out of order.
		if st.ts-ts < g.rolloverThreshold {
			return ErrReplayDetected
		}
	}

	st.seq = seq
	st.ts = ts
	return nil
}

// Forget drops the tracked state for a source, returning it to the
// uninitialized state. Used when a sensor is power-cycled on purpose.
func (g *Guard) Forget(source string) {
	g.mu.Lock()
	delete(g.sources, source)
	g.mu.Unlock()
}

// Sources returns the number of sources currently tracked.
func (g *Guard) Sources() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sources)
}
