package integrity_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"ahrsmon/pkg/integrity"
	"ahrsmon/pkg/protocol"
)

func testKeys(t *testing.T) (auth, env []byte) {
	t.Helper()
	auth = bytes.Repeat([]byte{0xA5}, integrity.AuthKeySize)
	env = bytes.Repeat([]byte{0x5A}, integrity.EnvelopeKeySize)
	return auth, env
}

func sealedFrame(t *testing.T, ctx *integrity.SecurityContext) []byte {
	t.Helper()
	wire, err := protocol.Encode(protocol.Frame{
		Header: protocol.Header{
			Version:   protocol.Version,
			Type:      protocol.TypeImu6,
			Sequence:  10,
			Timestamp: 100_000,
		},
		Payload: protocol.Imu6Payload{AccZ: -9.81, GyrX: 0.02},
	})
	require.NoError(t, err)
	require.NoError(t, ctx.Seal(wire))
	return wire
}

func TestNewSecurityContextKeySizes(t *testing.T) {
	auth, env := testKeys(t)

	_, err := integrity.NewSecurityContext(auth[:16], nil)
	require.ErrorIs(t, err, integrity.ErrKeySize)

	_, err = integrity.NewSecurityContext(auth, env[:8])
	require.ErrorIs(t, err, integrity.ErrKeySize)

	ctx, err := integrity.NewSecurityContext(auth, nil)
	require.NoError(t, err)
	require.False(t, ctx.Encrypted())

	ctx, err = integrity.NewSecurityContext(auth, env)
	require.NoError(t, err)
	require.True(t, ctx.Encrypted())
}

func TestSealVerify(t *testing.T) {
	auth, _ := testKeys(t)
	ctx, err := integrity.NewSecurityContext(auth, nil)
	require.NoError(t, err)

	wire := sealedFrame(t, ctx)
	require.NoError(t, ctx.Verify(wire))
}

// Flipping any single bit of a sealed frame must fail verification: region
// flips trip the checksum, checksum flips trip the checksum compare, tag
// flips trip the tag compare. Nothing is silently accepted.
func TestTamperAnyBitDetected(t *testing.T) {
	auth, _ := testKeys(t)
	ctx, err := integrity.NewSecurityContext(auth, nil)
	require.NoError(t, err)

	wire := sealedFrame(t, ctx)
	tagStart := len(wire) - protocol.TagSize

	for i := range wire {
		for bit := 0; bit < 8; bit++ {
			tampered := append([]byte(nil), wire...)
			tampered[i] ^= 1 << bit

			err := ctx.Verify(tampered)
			if i < tagStart {
				require.ErrorIs(t, err, integrity.ErrChecksumMismatch, "byte %d bit %d", i, bit)
			} else {
				require.ErrorIs(t, err, integrity.ErrAuthMismatch, "byte %d bit %d", i, bit)
			}
		}
	}
}

func TestVerifyWrongKeyIsAuthMismatch(t *testing.T) {
	auth, _ := testKeys(t)
	sender, err := integrity.NewSecurityContext(auth, nil)
	require.NoError(t, err)

	other := bytes.Repeat([]byte{0x11}, integrity.AuthKeySize)
	receiver, err := integrity.NewSecurityContext(other, nil)
	require.NoError(t, err)

	wire := sealedFrame(t, sender)
	require.ErrorIs(t, receiver.Verify(wire), integrity.ErrAuthMismatch)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	auth, env := testKeys(t)
	ctx, err := integrity.NewSecurityContext(auth, env)
	require.NoError(t, err)

	wire := sealedFrame(t, ctx)
	sealed, err := ctx.SealEnvelope(wire)
	require.NoError(t, err)
	require.NotEqual(t, wire, sealed)

	opened, err := ctx.OpenEnvelope(sealed)
	require.NoError(t, err)
	require.Equal(t, wire, opened)
}

func TestEnvelopeTamperFails(t *testing.T) {
	auth, env := testKeys(t)
	ctx, err := integrity.NewSecurityContext(auth, env)
	require.NoError(t, err)

	sealed, err := ctx.SealEnvelope(sealedFrame(t, ctx))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0x01
	_, err = ctx.OpenEnvelope(sealed)
	require.ErrorIs(t, err, integrity.ErrAuthMismatch)

	_, err = ctx.OpenEnvelope(sealed[:integrity.NonceSize-1])
	require.ErrorIs(t, err, integrity.ErrAuthMismatch)
}

func TestPlaintextEnvelopePassthrough(t *testing.T) {
	auth, _ := testKeys(t)
	ctx, err := integrity.NewSecurityContext(auth, nil)
	require.NoError(t, err)

	wire := sealedFrame(t, ctx)
	out, err := ctx.SealEnvelope(wire)
	require.NoError(t, err)
	require.Equal(t, wire, out)

	opened, err := ctx.OpenEnvelope(out)
	require.NoError(t, err)
	require.Equal(t, wire, opened)
}
