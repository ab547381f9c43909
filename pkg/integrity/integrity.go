// Package integrity authenticates wire frames against shared key material.
package integrity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20poly1305"

	"ahrsmon/pkg/protocol"
)

// Key sizes accepted by NewSecurityContext.
const (
	AuthKeySize     = 32
	EnvelopeKeySize = chacha20poly1305.KeySize
	NonceSize       = chacha20poly1305.NonceSize
)

var (
	// ErrChecksumMismatch reports transmission corruption: the CRC over
	// header+payload does not match the frame's checksum field.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrAuthMismatch reports a failed authentication tag: a spoofed frame,
	// a tampered frame, or a key mismatch between sensor and host.
	ErrAuthMismatch = errors.New("authentication tag mismatch")

	// ErrKeySize reports key material of the wrong length.
	ErrKeySize = errors.New("invalid key size")
)

// SecurityContext holds the shared authentication key and, when the link is
// encrypted, the datagram envelope key. It is immutable after construction
// and safe for concurrent use. Key material is provisioned externally and
// never generated here.
type SecurityContext struct {
	authKey []byte
	sealer  chacha20poly1305AEAD
}

type chacha20poly1305AEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// NewSecurityContext builds a context from a 32-byte authentication key and
// an optional envelope key. A nil envelopeKey selects plaintext datagrams.
func NewSecurityContext(authKey, envelopeKey []byte) (*SecurityContext, error) {
	if len(authKey) != AuthKeySize {
		return nil, fmt.Errorf("%w: auth key is %d bytes, want %d", ErrKeySize, len(authKey), AuthKeySize)
	}
	c := &SecurityContext{authKey: append([]byte(nil), authKey...)}
	if envelopeKey != nil {
		if len(envelopeKey) != EnvelopeKeySize {
			return nil, fmt.Errorf("%w: envelope key is %d bytes, want %d", ErrKeySize, len(envelopeKey), EnvelopeKeySize)
		}
		aead, err := chacha20poly1305.New(envelopeKey)
		if err != nil {
			return nil, err
		}
		c.sealer = aead
	}
	return c, nil
}

// Encrypted reports whether the context carries an envelope key.
func (c *SecurityContext) Encrypted() bool { return c.sealer != nil }

// Verify checks a complete wire frame: CRC first (cheap, catches line
// noise), then the keyed tag (catches spoofing). It short-circuits on the
// first failure. The tag comparison is constant time.
func (c *SecurityContext) Verify(frame []byte) error {
	if len(frame) < protocol.MinFrameSize {
		return fmt.Errorf("%w: frame too short for trailer", ErrChecksumMismatch)
	}
	region := frame[:len(frame)-protocol.TrailerSize]
	trailer := frame[len(frame)-protocol.TrailerSize:]

	declared := binary.BigEndian.Uint32(trailer[:protocol.ChecksumSize])
	if crc32.ChecksumIEEE(region) != declared {
		return ErrChecksumMismatch
	}

	tag, err := c.authTag(region)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(tag, trailer[protocol.ChecksumSize:]) != 1 {
		return ErrAuthMismatch
	}
	return nil
}

// Seal fills in the checksum and authentication tag of an encoded frame in
// place. Simulation and test path only.
func (c *SecurityContext) Seal(frame []byte) error {
	if len(frame) < protocol.MinFrameSize {
		return fmt.Errorf("%w: frame too short for trailer", ErrChecksumMismatch)
	}
	region := frame[:len(frame)-protocol.TrailerSize]
	trailer := frame[len(frame)-protocol.TrailerSize:]

	binary.BigEndian.PutUint32(trailer[:protocol.ChecksumSize], crc32.ChecksumIEEE(region))
	tag, err := c.authTag(region)
	if err != nil {
		return err
	}
	copy(trailer[protocol.ChecksumSize:], tag)
	return nil
}

func (c *SecurityContext) authTag(region []byte) ([]byte, error) {
	h, err := blake2s.New256(c.authKey)
	if err != nil {
		return nil, err
	}
	h.Write(region)
	return h.Sum(nil), nil
}

// OpenEnvelope strips the [nonce:12][ciphertext] encryption envelope from a
// datagram. Failures are indistinguishable from a wrong key and classify as
// an authentication mismatch.
func (c *SecurityContext) OpenEnvelope(datagram []byte) ([]byte, error) {
	if c.sealer == nil {
		return datagram, nil
	}
	if len(datagram) < NonceSize {
		return nil, fmt.Errorf("%w: datagram shorter than envelope nonce", ErrAuthMismatch)
	}
	plain, err := c.sealer.Open(nil, datagram[:NonceSize], datagram[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: envelope open: %v", ErrAuthMismatch, err)
	}
	return plain, nil
}

// SealEnvelope wraps a wire frame in the encryption envelope with a random
// nonce. A no-op passthrough when the context has no envelope key.
func (c *SecurityContext) SealEnvelope(frame []byte) ([]byte, error) {
	if c.sealer == nil {
		return frame, nil
	}
	out := make([]byte, NonceSize, NonceSize+len(frame)+chacha20poly1305.Overhead)
	if _, err := rand.Read(out); err != nil {
		return nil, err
	}
	return c.sealer.Seal(out, out[:NonceSize], frame, nil), nil
}
