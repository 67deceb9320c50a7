package orientation

import (
	"github.com/formcheck/formcheck/internal/merge"
)

// DefaultAlpha weights gyro integration against the absolute reference.
const DefaultAlpha = 0.98

// ComplementaryFilter blends integrated gyroscope rates with the
// accelerometer tilt and magnetometer heading:
//
//	angle = alpha*(angle + rate*dt) + (1-alpha)*reference
//
// When TimeConstant is set, alpha is derived per step as tau/(tau+dt).
type ComplementaryFilter struct {
	Alpha        float64
	TimeConstant float64
	MaxDt        float64

	pose        Pose
	initialized bool
}

// NewComplementaryFilter uses DefaultAlpha when alpha is outside (0, 1].
func NewComplementaryFilter(alpha, maxDt float64) *ComplementaryFilter {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &ComplementaryFilter{Alpha: alpha, MaxDt: maxDt}
}

func (c *ComplementaryFilter) Pose() Pose { return c.pose }

func (c *ComplementaryFilter) Reset() {
	c.pose = Pose{}
	c.initialized = false
}

func (c *ComplementaryFilter) Update(f merge.Frame, dt float64) Pose {
	roll, pitch := AccelAngles(f.Acc)
	if !c.initialized {
		c.pose = Pose{Roll: roll, Pitch: pitch}
		if f.HasMag {
			c.pose.Yaw = TiltCompensatedYaw(f.Mag, roll, pitch)
		}
		c.initialized = true
		return c.pose
	}
	if !validDt(dt, c.MaxDt) {
		logSkippedDt("complementary", f.Time, dt)
		return c.pose
	}

	alpha := c.Alpha
	if c.TimeConstant > 0 {
		alpha = c.TimeConstant / (c.TimeConstant + dt)
	}

	c.pose.Roll = blend(c.pose.Roll+f.Gyro.X*dt, roll, alpha)
	c.pose.Pitch = blend(c.pose.Pitch+f.Gyro.Y*dt, pitch, alpha)
	yaw := c.pose.Yaw + f.Gyro.Z*dt
	if f.HasMag {
		yaw = blend(yaw, TiltCompensatedYaw(f.Mag, c.pose.Roll, c.pose.Pitch), alpha)
	}
	c.pose.Yaw = wrap180(yaw)
	return c.pose
}

// blend mixes predicted toward reference along the shorter arc.
func blend(predicted, reference, alpha float64) float64 {
	return wrap180(predicted + (1-alpha)*wrap180(reference-predicted))
}
