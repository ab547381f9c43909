package ahrs_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"ahrsmon/pkg/ahrs"
	"ahrsmon/pkg/protocol"
)

func TestInitialAttitudeIsIdentity(t *testing.T) {
	e := ahrs.New()
	w, x, y, z := e.Quaternion()
	require.Equal(t, 1.0, w)
	require.Zero(t, x)
	require.Zero(t, y)
	require.Zero(t, z)
}

func TestQuatPayloadSetsAttitudeDirectly(t *testing.T) {
	e := ahrs.New()
	// 90 degrees about Z.
	s := float32(math.Sqrt2 / 2)
	e.Update(protocol.ImuQuatPayload{W: s, Z: s}, 0.01)

	_, _, yaw := e.Euler()
	require.InDelta(t, math.Pi/2, yaw, 1e-3)
}

func TestGyroIntegrationYaw(t *testing.T) {
	e := ahrs.New()
	// 0.5 rad/s about Z for 1 s in 100 steps.
	for i := 0; i < 100; i++ {
		e.Update(protocol.Imu3GyrPayload{GyrZ: 0.5}, 0.01)
	}
	_, _, yaw := e.Euler()
	require.InDelta(t, 0.5, yaw, 0.01)
}

func TestAccelerometerCorrectsTilt(t *testing.T) {
	e := ahrs.New(ahrs.WithGain(2.0))

	// Seed a wrong attitude, then feed level samples: gravity along +Z in
	// the body frame, no rotation. The filter must pull back to level.
	s := float32(math.Sin(0.2))
	c := float32(math.Cos(0.2))
	e.Update(protocol.ImuQuatPayload{W: c, X: s}, 0.01)

	for i := 0; i < 2000; i++ {
		e.Update(protocol.Imu6Payload{AccZ: 9.80665}, 0.01)
	}

	roll, pitch, _ := e.Euler()
	require.InDelta(t, 0, roll, 0.02)
	require.InDelta(t, 0, pitch, 0.02)
}

func TestFreefallSkipsAccCorrection(t *testing.T) {
	e := ahrs.New()
	// Near-zero acceleration must not destabilize the estimate.
	for i := 0; i < 100; i++ {
		e.Update(protocol.Imu6Payload{AccZ: 0.01}, 0.01)
	}
	w, _, _, _ := e.Quaternion()
	require.InDelta(t, 1.0, w, 1e-6)
}

func TestDiagPayloadIgnored(t *testing.T) {
	e := ahrs.New()
	e.Update(protocol.DiagPayload{Code: 1, Message: "x"}, 0.01)
	w, _, _, _ := e.Quaternion()
	require.Equal(t, 1.0, w)
}
