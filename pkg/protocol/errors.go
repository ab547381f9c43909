package protocol

import "errors"

var (
	// ErrMalformed reports a frame that does not match the wire layout:
	// truncated header, length mismatch, or an unrecognized payload type.
	ErrMalformed = errors.New("malformed frame")

	// ErrUnsupportedVersion reports a version byte this codec does not speak.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)
