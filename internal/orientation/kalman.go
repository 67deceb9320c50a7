package orientation

import (
	"math"

	"github.com/formcheck/formcheck/internal/merge"
)

// KalmanConfig holds the per-axis noise parameters.
type KalmanConfig struct {
	QAngle   float64
	QBias    float64
	RMeasure float64
	MaxDt    float64 // seconds; 0 disables the upper bound
}

// DefaultKalmanConfig returns noise values tuned for a 100 Hz wearable IMU.
func DefaultKalmanConfig() KalmanConfig {
	return KalmanConfig{QAngle: 0.001, QBias: 0.003, RMeasure: 0.03, MaxDt: 1}
}

// axisKalman tracks one angle and the gyroscope bias on that axis.
type axisKalman struct {
	qAngle, qBias, r float64
	angle, bias      float64
	p                [2][2]float64
}

func (k *axisKalman) predict(rate, dt float64) {
	k.angle += dt * (rate - k.bias)

	k.p[0][0] += dt * (dt*k.p[1][1] - k.p[0][1] - k.p[1][0] + k.qAngle)
	k.p[0][1] -= dt * k.p[1][1]
	k.p[1][0] -= dt * k.p[1][1]
	k.p[1][1] += k.qBias * dt
}

func (k *axisKalman) correct(measured float64) {
	s := k.p[0][0] + k.r
	k0, k1 := k.p[0][0]/s, k.p[1][0]/s

	y := measured - k.angle
	k.angle += k0 * y
	k.bias += k1 * y

	p00, p01 := k.p[0][0], k.p[0][1]
	k.p[0][0] -= k0 * p00
	k.p[0][1] -= k0 * p01
	k.p[1][0] -= k1 * p00
	k.p[1][1] -= k1 * p01
}

func (k *axisKalman) update(measured, rate, dt float64) float64 {
	k.predict(rate, dt)
	k.correct(measured)
	return k.angle
}

// KalmanFilter runs an angle/bias Kalman filter on each axis. Roll and
// pitch are corrected by the gravity vector, yaw by the tilt-compensated
// magnetometer heading when one is available.
type KalmanFilter struct {
	cfg              KalmanConfig
	roll, pitch, yaw axisKalman
	pose             Pose
	initialized      bool
}

// NewKalmanFilter returns an uninitialised filter; the first frame seeds it.
func NewKalmanFilter(cfg KalmanConfig) *KalmanFilter {
	k := &KalmanFilter{cfg: cfg}
	k.Reset()
	return k
}

func (k *KalmanFilter) Pose() Pose { return k.pose }

func (k *KalmanFilter) Reset() {
	axis := axisKalman{qAngle: k.cfg.QAngle, qBias: k.cfg.QBias, r: k.cfg.RMeasure}
	k.roll, k.pitch, k.yaw = axis, axis, axis
	k.pose = Pose{}
	k.initialized = false
}

func (k *KalmanFilter) Update(f merge.Frame, dt float64) Pose {
	if !k.initialized {
		k.seed(f)
		return k.pose
	}
	if !validDt(dt, k.cfg.MaxDt) {
		logSkippedDt("kalman", f.Time, dt)
		return k.pose
	}

	roll, pitch := AccelAngles(f.Acc)
	pitchRate := f.Gyro.Y

	// Crossing ±180° in roll restarts the axis at the measurement instead
	// of letting the filter swing through zero.
	if (roll < -90 && k.pose.Roll > 90) || (roll > 90 && k.pose.Roll < -90) {
		k.roll.angle = roll
		k.pose.Roll = roll
	} else {
		k.pose.Roll = k.roll.update(roll, f.Gyro.X, dt)
	}
	if math.Abs(k.pose.Roll) > 90 {
		pitchRate = -pitchRate
	}
	k.pose.Pitch = k.pitch.update(pitch, pitchRate, dt)

	if f.HasMag {
		yaw := TiltCompensatedYaw(f.Mag, k.pose.Roll, k.pose.Pitch)
		if math.Abs(yaw-k.yaw.angle) > 180 {
			k.yaw.angle = yaw
		} else {
			k.yaw.update(yaw, f.Gyro.Z, dt)
		}
	} else {
		k.yaw.predict(f.Gyro.Z, dt)
	}
	k.yaw.angle = wrap180(k.yaw.angle)
	k.pose.Yaw = k.yaw.angle
	return k.pose
}

func (k *KalmanFilter) seed(f merge.Frame) {
	roll, pitch := AccelAngles(f.Acc)
	var yaw float64
	if f.HasMag {
		yaw = TiltCompensatedYaw(f.Mag, roll, pitch)
	}
	k.roll.angle, k.pitch.angle, k.yaw.angle = roll, pitch, yaw
	k.pose = Pose{Roll: roll, Pitch: pitch, Yaw: yaw}
	k.initialized = true
}
