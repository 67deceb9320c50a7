// Package orientation estimates roll, pitch and yaw from merged IMU frames.
//
// Angles are in degrees. The body frame is right-handed with z up when the
// device lies flat: the accelerometer reads +1 g on z at rest, gyroscope
// rates are degrees/s, and yaw increases counter-clockwise seen from above.
package orientation

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"

	"github.com/formcheck/formcheck/internal/merge"
	"github.com/formcheck/formcheck/internal/monitoring"
	"github.com/formcheck/formcheck/internal/sensor"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// Pose is an orientation in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Angle looks up an axis by its column name.
func (p Pose) Angle(name string) (float64, bool) {
	switch name {
	case "roll":
		return p.Roll, true
	case "pitch":
		return p.Pitch, true
	case "yaw":
		return p.Yaw, true
	}
	return 0, false
}

// Axes are the column names Pose.Angle understands.
var Axes = []string{"roll", "pitch", "yaw"}

// Estimate is the filter output for one merged frame.
type Estimate struct {
	Time time.Time
	Pose
}

// Filter is a stateful orientation estimator. Frames must be fed in
// timestamp order; dt is the elapsed time since the previous frame in
// seconds. A dt that is not positive, not finite or above the filter's
// limit leaves the state untouched and returns the previous pose.
type Filter interface {
	Update(f merge.Frame, dt float64) Pose
	Pose() Pose
	Reset()
}

// Run feeds frames through f in order and returns one estimate per frame.
func Run(frames []merge.Frame, f Filter) []Estimate {
	out := make([]Estimate, len(frames))
	for i, fr := range frames {
		var dt float64
		if i > 0 {
			dt = fr.Time.Sub(frames[i-1].Time).Seconds()
		}
		out[i] = Estimate{Time: fr.Time, Pose: f.Update(fr, dt)}
	}
	return out
}

// Options selects and tunes a filter.
type Options struct {
	Kind   string // "kalman" or "complementary"
	Alpha  float64
	MaxDt  time.Duration
	Kalman KalmanConfig
}

// New builds the filter named by opts.Kind. Each session needs its own.
func New(opts Options) (Filter, error) {
	switch opts.Kind {
	case "", "kalman":
		cfg := opts.Kalman
		if cfg == (KalmanConfig{}) {
			cfg = DefaultKalmanConfig()
		}
		if opts.MaxDt > 0 {
			cfg.MaxDt = opts.MaxDt.Seconds()
		}
		return NewKalmanFilter(cfg), nil
	case "complementary":
		return NewComplementaryFilter(opts.Alpha, opts.MaxDt.Seconds()), nil
	}
	return nil, fmt.Errorf("unknown orientation filter %q", opts.Kind)
}

// AccelAngles derives roll and pitch from the gravity vector.
func AccelAngles(acc sensor.Vector) (roll, pitch float64) {
	roll = math.Atan2(acc.Y, acc.Z) * rad2deg
	pitch = math.Atan2(-acc.X, math.Hypot(acc.Y, acc.Z)) * rad2deg
	return roll, pitch
}

// TiltCompensatedYaw de-rotates the magnetometer reading by roll and pitch
// into the horizontal plane before taking the heading.
func TiltCompensatedYaw(mag sensor.Vector, roll, pitch float64) float64 {
	phi, theta := roll*deg2rad, pitch*deg2rad
	m := r3.Vector{X: mag.X, Y: mag.Y, Z: mag.Z}

	levelX := r3.Vector{X: math.Cos(theta), Y: math.Sin(phi) * math.Sin(theta), Z: math.Cos(phi) * math.Sin(theta)}
	levelY := r3.Vector{X: 0, Y: math.Cos(phi), Z: -math.Sin(phi)}
	return math.Atan2(-m.Dot(levelY), m.Dot(levelX)) * rad2deg
}

// UncompensatedYaw takes the heading from the raw x/y axes. It is only
// correct when the device is level and is kept for diagnostics.
func UncompensatedYaw(mag sensor.Vector) float64 {
	return math.Atan2(-mag.Y, mag.X) * rad2deg
}

// wrap180 maps an angle into (-180, 180].
func wrap180(a float64) float64 {
	a = math.Mod(a, 360)
	switch {
	case a > 180:
		a -= 360
	case a <= -180:
		a += 360
	}
	return a
}

func validDt(dt, maxDt float64) bool {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 {
		return false
	}
	return maxDt <= 0 || dt <= maxDt
}

func logSkippedDt(filter string, t time.Time, dt float64) {
	monitoring.Debugf("%s filter: skipping frame at %s with dt=%g", filter, t.Format(time.RFC3339Nano), dt)
}
