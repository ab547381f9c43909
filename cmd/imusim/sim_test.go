package main

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"ahrsmon/pkg/integrity"
	"ahrsmon/pkg/protocol"
)

func testContext(t *testing.T, envelope bool) *integrity.SecurityContext {
	t.Helper()
	var envelopeKey []byte
	if envelope {
		envelopeKey = bytes.Repeat([]byte{0x22}, integrity.EnvelopeKeySize)
	}
	sec, err := integrity.NewSecurityContext(
		bytes.Repeat([]byte{0x11}, integrity.AuthKeySize), envelopeKey)
	require.NoError(t, err)
	return sec
}

func TestQuaternionIsNormalized(t *testing.T) {
	for _, tm := range []float64{0, 0.37, 1.9, 42.5} {
		q := quaternionAt(tm)
		norm := math.Sqrt(float64(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z))
		require.InDelta(t, 1.0, norm, 1e-5, "t=%g", tm)
	}
}

func TestAccelMagnitudeNearGravity(t *testing.T) {
	for _, tm := range []float64{0, 0.5, 2.3} {
		ax, ay, az := accelAt(tm)
		norm := math.Sqrt(ax*ax + ay*ay + az*az)
		require.InDelta(t, gravity, norm, 1e-9, "t=%g", tm)
	}
}

func TestBuildDatagramVerifies(t *testing.T) {
	sec := testContext(t, false)

	datagram, err := buildDatagram(sec, protocol.TypeImu6, 7, 70_000, 0.07)
	require.NoError(t, err)
	require.NoError(t, sec.Verify(datagram))

	frame, err := protocol.Decode(datagram)
	require.NoError(t, err)
	require.Equal(t, uint32(7), frame.Header.Sequence)
	require.Equal(t, uint64(70_000), frame.Header.Timestamp)
	require.Equal(t, protocol.TypeImu6, frame.Header.Type)
}

func TestBuildDatagramEncrypted(t *testing.T) {
	sec := testContext(t, true)

	datagram, err := buildDatagram(sec, protocol.TypeImuQuat, 1, 10_000, 0.01)
	require.NoError(t, err)

	wire, err := sec.OpenEnvelope(datagram)
	require.NoError(t, err)
	require.NoError(t, sec.Verify(wire))
}

func TestEveryKindEncodes(t *testing.T) {
	sec := testContext(t, false)
	kinds := []protocol.Type{
		protocol.TypeImu3Acc, protocol.TypeImu3Gyr, protocol.TypeImu3Mag,
		protocol.TypeImu6, protocol.TypeImu9, protocol.TypeImu10,
		protocol.TypeImuQuat,
	}
	for _, kind := range kinds {
		datagram, err := buildDatagram(sec, kind, 1, 10_000, 0.5)
		require.NoError(t, err, "kind=%s", kind)
		frame, err := protocol.Decode(datagram)
		require.NoError(t, err, "kind=%s", kind)
		require.Equal(t, kind, frame.Header.Type)
	}
}

func TestParseKind(t *testing.T) {
	kind, err := parseKind("quat")
	require.NoError(t, err)
	require.Equal(t, protocol.TypeImuQuat, kind)

	_, err = parseKind("diag")
	require.Error(t, err)
}
