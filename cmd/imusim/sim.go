package main

import (
	"math"

	"ahrsmon/pkg/protocol"
)

// Smooth multi-axis oscillation so each sensor channel stays plausible and
// the motion is easy to eyeball in a viewer.
const (
	rollAmplitudeRad  = 35.0 * math.Pi / 180.0
	pitchAmplitudeRad = 25.0 * math.Pi / 180.0
	yawAmplitudeRad   = 40.0 * math.Pi / 180.0

	rollFreqHz  = 0.23
	pitchFreqHz = 0.31
	yawFreqHz   = 0.17

	rollPhaseRad  = 0.0
	pitchPhaseRad = math.Pi / 3.0
	yawPhaseRad   = 2.0 * math.Pi / 3.0

	gravity      = 9.80665
	fieldHorizuT = 22.0
	fieldVertuT  = 42.0
	seaLevelhPa  = 1013.25
)

func eulerAt(t float64) (roll, pitch, yaw float64) {
	roll = rollAmplitudeRad * math.Sin(2.0*math.Pi*rollFreqHz*t+rollPhaseRad)
	pitch = pitchAmplitudeRad * math.Sin(2.0*math.Pi*pitchFreqHz*t+pitchPhaseRad)
	yaw = yawAmplitudeRad * math.Sin(2.0*math.Pi*yawFreqHz*t+yawPhaseRad)
	return
}

// ratesAt is the analytic derivative of eulerAt. Close enough to body rates
// at these amplitudes.
func ratesAt(t float64) (p, q, r float64) {
	p = rollAmplitudeRad * 2.0 * math.Pi * rollFreqHz * math.Cos(2.0*math.Pi*rollFreqHz*t+rollPhaseRad)
	q = pitchAmplitudeRad * 2.0 * math.Pi * pitchFreqHz * math.Cos(2.0*math.Pi*pitchFreqHz*t+pitchPhaseRad)
	r = yawAmplitudeRad * 2.0 * math.Pi * yawFreqHz * math.Cos(2.0*math.Pi*yawFreqHz*t+yawPhaseRad)
	return
}

// accelAt is gravity expressed in the body frame for the current attitude.
func accelAt(t float64) (ax, ay, az float64) {
	roll, pitch, _ := eulerAt(t)
	ax = -gravity * math.Sin(pitch)
	ay = gravity * math.Sin(roll) * math.Cos(pitch)
	az = gravity * math.Cos(roll) * math.Cos(pitch)
	return
}

// magAt is a fixed north-pointing field rotated by the current yaw.
func magAt(t float64) (mx, my, mz float64) {
	_, _, yaw := eulerAt(t)
	mx = fieldHorizuT * math.Cos(yaw)
	my = -fieldHorizuT * math.Sin(yaw)
	mz = fieldVertuT
	return
}

func quaternionAt(t float64) protocol.ImuQuatPayload {
	roll, pitch, yaw := eulerAt(t)
	cr := math.Cos(roll * 0.5)
	sr := math.Sin(roll * 0.5)
	cp := math.Cos(pitch * 0.5)
	sp := math.Sin(pitch * 0.5)
	cy := math.Cos(yaw * 0.5)
	sy := math.Sin(yaw * 0.5)

	// ZYX intrinsic rotation (yaw -> pitch -> roll).
	w := cr*cp*cy + sr*sp*sy
	x := sr*cp*cy - cr*sp*sy
	y := cr*sp*cy + sr*cp*sy
	z := cr*cp*sy - sr*sp*cy

	norm := math.Sqrt(w*w + x*x + y*y + z*z)
	if norm == 0 {
		return protocol.ImuQuatPayload{W: 1}
	}
	inv := 1.0 / norm
	return protocol.ImuQuatPayload{
		W: float32(w * inv),
		X: float32(x * inv),
		Y: float32(y * inv),
		Z: float32(z * inv),
	}
}

func payloadAt(kind protocol.Type, t float64) protocol.Payload {
	ax, ay, az := accelAt(t)
	gx, gy, gz := ratesAt(t)
	mx, my, mz := magAt(t)

	switch kind {
	case protocol.TypeImu3Acc:
		return protocol.Imu3AccPayload{
			AccX: float32(ax), AccY: float32(ay), AccZ: float32(az),
		}
	case protocol.TypeImu3Gyr:
		return protocol.Imu3GyrPayload{
			GyrX: float32(gx), GyrY: float32(gy), GyrZ: float32(gz),
		}
	case protocol.TypeImu3Mag:
		return protocol.Imu3MagPayload{
			MagX: float32(mx), MagY: float32(my), MagZ: float32(mz),
		}
	case protocol.TypeImu9:
		return protocol.Imu9Payload{
			AccX: float32(ax), AccY: float32(ay), AccZ: float32(az),
			GyrX: float32(gx), GyrY: float32(gy), GyrZ: float32(gz),
			MagX: float32(mx), MagY: float32(my), MagZ: float32(mz),
		}
	case protocol.TypeImu10:
		return protocol.Imu10Payload{
			AccX: float32(ax), AccY: float32(ay), AccZ: float32(az),
			GyrX: float32(gx), GyrY: float32(gy), GyrZ: float32(gz),
			MagX: float32(mx), MagY: float32(my), MagZ: float32(mz),
			Pressure: seaLevelhPa,
		}
	case protocol.TypeImuQuat:
		return quaternionAt(t)
	default:
		return protocol.Imu6Payload{
			AccX: float32(ax), AccY: float32(ay), AccZ: float32(az),
			GyrX: float32(gx), GyrY: float32(gy), GyrZ: float32(gz),
		}
	}
}
