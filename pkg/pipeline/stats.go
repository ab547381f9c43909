package pipeline

import (
	"sync/atomic"

	"ahrsmon/pkg/engine"
)

// stats counters are written by the Run goroutine and read from anywhere.
type stats struct {
	total    atomic.Uint64
	accepted atomic.Uint64
	gaps     atomic.Uint64
	pps      atomic.Uint64

	malformed          atomic.Uint64
	unsupportedVersion atomic.Uint64
	checksumMismatch   atomic.Uint64
	authMismatch       atomic.Uint64
	replayDetected     atomic.Uint64
	nonPositiveDelta   atomic.Uint64
}

func (s *stats) count(r engine.Reason) {
	switch r {
	case engine.ReasonUnsupportedVersion:
		s.unsupportedVersion.Add(1)
	case engine.ReasonChecksumMismatch:
		s.checksumMismatch.Add(1)
	case engine.ReasonAuthMismatch:
		s.authMismatch.Add(1)
	case engine.ReasonReplayDetected:
		s.replayDetected.Add(1)
	case engine.ReasonNonPositiveDelta:
		s.nonPositiveDelta.Add(1)
	default:
		s.malformed.Add(1)
	}
}

// Snapshot is a point-in-time view of pipeline counters for the inspector
// and observability consumers.
type Snapshot struct {
	Total    uint64                   `json:"total"`
	Accepted uint64                   `json:"accepted"`
	Gaps     uint64                   `json:"gaps"`
	PPS      uint64                   `json:"pps"`
	Rejected map[engine.Reason]uint64 `json:"rejected"`
}

// RejectedTotal sums all rejection reasons.
func (s Snapshot) RejectedTotal() uint64 {
	var n uint64
	for _, v := range s.Rejected {
		n += v
	}
	return n
}

// Stats returns the current counters.
func (in *Ingester) Stats() Snapshot {
	return Snapshot{
		Total:    in.stats.total.Load(),
		Accepted: in.stats.accepted.Load(),
		Gaps:     in.stats.gaps.Load(),
		PPS:      in.stats.pps.Load(),
		Rejected: map[engine.Reason]uint64{
			engine.ReasonMalformed:          in.stats.malformed.Load(),
			engine.ReasonUnsupportedVersion: in.stats.unsupportedVersion.Load(),
			engine.ReasonChecksumMismatch:   in.stats.checksumMismatch.Load(),
			engine.ReasonAuthMismatch:       in.stats.authMismatch.Load(),
			engine.ReasonReplayDetected:     in.stats.replayDetected.Load(),
			engine.ReasonNonPositiveDelta:   in.stats.nonPositiveDelta.Load(),
		},
	}
}
