// Package pipeline orchestrates frame ingestion: decode, integrity check,
// replay guard, timing extraction, dispatch.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/pion/logging"

	"ahrsmon/pkg/engine"
	"ahrsmon/pkg/integrity"
	"ahrsmon/pkg/protocol"
	"ahrsmon/pkg/replay"
	"ahrsmon/pkg/timing"
	"ahrsmon/pkg/transport"
)

// Ingester is the single processing worker. It owns all order-sensitive
// state (replay guard progress, per-source timing cursors), so exactly one
// Run loop may consume the datagram queue.
type Ingester struct {
	sec   *integrity.SecurityContext
	guard *replay.Guard
	clock *timing.Extractor
	hub   *engine.Hub

	log       logging.LeveledLogger
	defaultDt float64

	// lastTS is touched only by the Run goroutine.
	lastTS map[string]uint64

	stats stats
}

type Option func(*Ingester)

// WithDefaultDt sets the delta handed to the first accepted frame of a
// source, when there is no prior timestamp to difference against.
// Typically 1/sample-rate.
func WithDefaultDt(dt float64) Option {
	return func(in *Ingester) {
		if dt > 0 {
			in.defaultDt = dt
		}
	}
}

func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(in *Ingester) {
		if f != nil {
			in.log = f.NewLogger("pipeline")
		}
	}
}

// New wires an ingester. The security context is mandatory: a pipeline
// must not start without authentication material.
func New(sec *integrity.SecurityContext, guard *replay.Guard, clock *timing.Extractor, hub *engine.Hub, opts ...Option) (*Ingester, error) {
	if sec == nil {
		return nil, errors.New("pipeline: nil security context")
	}
	in := &Ingester{
		sec:       sec,
		guard:     guard,
		clock:     clock,
		hub:       hub,
		defaultDt: 0.01,
		lastTS:    make(map[string]uint64),
	}
	if in.guard == nil {
		in.guard = replay.New()
	}
	if in.clock == nil {
		in.clock = timing.New()
	}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

// Run consumes datagrams until ctx is cancelled. Every datagram is an
// independent unit of work: a dropped frame never stalls the next one.
func (in *Ingester) Run(ctx context.Context, datagrams <-chan transport.Datagram) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var windowCount uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.stats.pps.Store(windowCount)
			windowCount = 0
		case d, ok := <-datagrams:
			if !ok {
				return
			}
			windowCount++
			in.process(d)
		}
	}
}

func (in *Ingester) process(d transport.Datagram) {
	in.stats.total.Add(1)

	raw, err := in.sec.OpenEnvelope(d.Data)
	if err != nil {
		in.reject(d, err)
		return
	}

	frame, err := protocol.Decode(raw)
	if err != nil {
		in.reject(d, err)
		return
	}

	if err := in.sec.Verify(raw); err != nil {
		in.reject(d, err)
		return
	}

	h := frame.Header
	if err := in.guard.Check(d.Source, h.Sequence, h.Timestamp); err != nil {
		in.reject(d, err)
		return
	}

	dt := in.defaultDt
	gap := false
	if prev, ok := in.lastTS[d.Source]; ok {
		dt, gap, err = in.clock.Delta(prev, h.Timestamp)
		if err != nil {
			in.reject(d, err)
			return
		}
	}
	in.lastTS[d.Source] = h.Timestamp

	if gap {
		in.stats.gaps.Add(1)
		if in.log != nil {
			in.log.Infof("gap on %s: dt clamped to %.3fs at seq %d", d.Source, in.clock.Ceiling(), h.Sequence)
		}
	}

	in.stats.accepted.Add(1)
	in.hub.Publish(engine.Event{Sample: &engine.Sample{
		Source:   d.Source,
		Frame:    frame,
		Dt:       dt,
		Gap:      gap,
		Received: d.Received,
	}})
}

func (in *Ingester) reject(d transport.Datagram, err error) {
	reason := classify(err)
	in.stats.count(reason)
	if in.log != nil {
		in.log.Debugf("dropped frame from %s: %v", d.Source, err)
	}
	in.hub.Publish(engine.Event{Rejection: &engine.Rejection{
		Source:   d.Source,
		Reason:   reason,
		Err:      err,
		Raw:      d.Data,
		Received: d.Received,
	}})
}

func classify(err error) engine.Reason {
	switch {
	case errors.Is(err, protocol.ErrUnsupportedVersion):
		return engine.ReasonUnsupportedVersion
	case errors.Is(err, protocol.ErrMalformed):
		return engine.ReasonMalformed
	case errors.Is(err, integrity.ErrChecksumMismatch):
		return engine.ReasonChecksumMismatch
	case errors.Is(err, integrity.ErrAuthMismatch):
		return engine.ReasonAuthMismatch
	case errors.Is(err, replay.ErrReplayDetected):
		return engine.ReasonReplayDetected
	case errors.Is(err, timing.ErrNonPositiveDelta):
		return engine.ReasonNonPositiveDelta
	default:
		return engine.ReasonMalformed
	}
}
