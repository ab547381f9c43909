package engine

import (
	"time"

	"ahrsmon/pkg/protocol"
)

// Reason classifies why a frame was dropped before dispatch.
type Reason string

const (
	ReasonMalformed          Reason = "malformed"
	ReasonUnsupportedVersion Reason = "unsupported-version"
	ReasonChecksumMismatch   Reason = "checksum-mismatch"
	ReasonAuthMismatch       Reason = "auth-mismatch"
	ReasonReplayDetected     Reason = "replay-detected"
	ReasonNonPositiveDelta   Reason = "non-positive-delta"
)

// Sample is one validated frame plus its derived time delta. Created per
// accepted frame and handed straight to consumers; the pipeline does not
// retain it.
type Sample struct {
	Source   string
	Frame    protocol.Frame
	Dt       float64 // seconds, always > 0
	Gap      bool    // dt was clamped to the ceiling after a link gap
	Received time.Time
}

// Rejection is one dropped frame with its classification and the raw bytes
// for diagnostic display.
type Rejection struct {
	Source   string
	Reason   Reason
	Err      error
	Raw      []byte
	Received time.Time
}

// Event is what flows through the hub: exactly one of Sample or Rejection
// is set.
type Event struct {
	Sample    *Sample
	Rejection *Rejection
}
