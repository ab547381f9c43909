// Package ahrs is a downstream consumer that fuses validated samples into
// an attitude estimate. The pipeline treats it as a black box: it only
// receives samples with a strictly positive dt.
package ahrs

import (
	"context"
	"math"
	"sync"

	"ahrsmon/pkg/engine"
	"ahrsmon/pkg/protocol"
)

const gravity = 9.80665

// Estimator is a complementary attitude filter: gyro integration with a
// proportional accelerometer tilt correction. Quaternion payloads bypass
// the filter and set the estimate directly.
type Estimator struct {
	mu   sync.RWMutex
	w    float64
	x    float64
	y    float64
	z    float64
	gain float64
}

type Option func(*Estimator)

// WithGain sets the accelerometer correction gain. Higher values trust the
// accelerometer more and converge faster at the cost of vibration noise.
func WithGain(g float64) Option {
	return func(e *Estimator) {
		if g > 0 {
			e.gain = g
		}
	}
}

func New(opts ...Option) *Estimator {
	e := &Estimator{w: 1, gain: 0.5}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Consume runs the estimator over the event stream. Rejections are ignored.
func (e *Estimator) Consume(ctx context.Context, in <-chan engine.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			if ev.Sample != nil {
				e.Update(ev.Sample.Frame.Payload, ev.Sample.Dt)
			}
		}
	}
}

// Update advances the estimate by one sample. dt is in seconds and must be
// positive; the pipeline guarantees this for dispatched samples.
func (e *Estimator) Update(p protocol.Payload, dt float64) {
	switch v := p.(type) {
	case protocol.ImuQuatPayload:
		e.set(float64(v.W), float64(v.X), float64(v.Y), float64(v.Z))
	case protocol.Imu3GyrPayload:
		e.integrate(float64(v.GyrX), float64(v.GyrY), float64(v.GyrZ), dt)
	case protocol.Imu6Payload:
		e.fuse(float64(v.AccX), float64(v.AccY), float64(v.AccZ),
			float64(v.GyrX), float64(v.GyrY), float64(v.GyrZ), dt)
	case protocol.Imu9Payload:
		e.fuse(float64(v.AccX), float64(v.AccY), float64(v.AccZ),
			float64(v.GyrX), float64(v.GyrY), float64(v.GyrZ), dt)
	case protocol.Imu10Payload:
		e.fuse(float64(v.AccX), float64(v.AccY), float64(v.AccZ),
			float64(v.GyrX), float64(v.GyrY), float64(v.GyrZ), dt)
	}
	// Acc-only, mag-only, and diag payloads carry nothing to integrate.
}

// fuse applies the accelerometer tilt correction to the gyro rates before
// integrating. acc in m/s^2, gyr in rad/s.
func (e *Estimator) fuse(ax, ay, az, gx, gy, gz, dt float64) {
	norm := math.Sqrt(ax*ax + ay*ay + az*az)
	if norm > 0.5*gravity && norm < 1.5*gravity {
		ax, ay, az = ax/norm, ay/norm, az/norm

		e.mu.RLock()
		w, x, y, z := e.w, e.x, e.y, e.z
		e.mu.RUnlock()

		// Gravity direction predicted by the current attitude.
		vx := 2 * (x*z - w*y)
		vy := 2 * (w*x + y*z)
		vz := w*w - x*x - y*y + z*z

		// Error is the cross product between measured and predicted
		// gravity; it feeds back as an extra rotation rate.
		ex := ay*vz - az*vy
		ey := az*vx - ax*vz
		ez := ax*vy - ay*vx

		gx += e.gain * ex
		gy += e.gain * ey
		gz += e.gain * ez
	}
	e.integrate(gx, gy, gz, dt)
}

func (e *Estimator) integrate(gx, gy, gz, dt float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, x, y, z := e.w, e.x, e.y, e.z
	halfDt := 0.5 * dt
	e.w = w + halfDt*(-x*gx-y*gy-z*gz)
	e.x = x + halfDt*(w*gx+y*gz-z*gy)
	e.y = y + halfDt*(w*gy-x*gz+z*gx)
	e.z = z + halfDt*(w*gz+x*gy-y*gx)

	norm := math.Sqrt(e.w*e.w + e.x*e.x + e.y*e.y + e.z*e.z)
	if norm == 0 {
		e.w, e.x, e.y, e.z = 1, 0, 0, 0
		return
	}
	e.w /= norm
	e.x /= norm
	e.y /= norm
	e.z /= norm
}

func (e *Estimator) set(w, x, y, z float64) {
	norm := math.Sqrt(w*w + x*x + y*y + z*z)
	if norm == 0 {
		return
	}
	e.mu.Lock()
	e.w, e.x, e.y, e.z = w/norm, x/norm, y/norm, z/norm
	e.mu.Unlock()
}

// Quaternion returns the current estimate as (w, x, y, z).
func (e *Estimator) Quaternion() (w, x, y, z float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.w, e.x, e.y, e.z
}

// Euler returns roll, pitch, yaw in radians (ZYX convention).
func (e *Estimator) Euler() (roll, pitch, yaw float64) {
	w, x, y, z := e.Quaternion()

	sinr := 2 * (w*x + y*z)
	cosr := 1 - 2*(x*x+y*y)
	roll = math.Atan2(sinr, cosr)

	sinp := 2 * (w*y - z*x)
	switch {
	case sinp >= 1:
		pitch = math.Pi / 2
	case sinp <= -1:
		pitch = -math.Pi / 2
	default:
		pitch = math.Asin(sinp)
	}

	siny := 2 * (w*z + x*y)
	cosy := 1 - 2*(y*y+z*z)
	yaw = math.Atan2(siny, cosy)
	return roll, pitch, yaw
}
