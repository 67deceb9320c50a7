// Package merge aligns the accelerometer, gyroscope and magnetometer streams
// of one capture onto a single timeline.
//
// Accelerometer and gyroscope are inner-joined on their timestamps. The
// slower magnetometer stream is linearly interpolated at every joined
// instant inside its coverage; joined rows before the first or after the
// last magnetometer sample are dropped rather than extrapolated.
package merge

import (
	"math"
	"sort"
	"time"

	"github.com/formcheck/formcheck/internal/sensor"
)

// Frame is one aligned row of the three instruments.
type Frame struct {
	Time   time.Time
	Acc    sensor.Vector
	Gyro   sensor.Vector
	Mag    sensor.Vector
	HasMag bool
}

// Options tunes the join.
type Options struct {
	// Tolerance pairs accelerometer and gyroscope samples whose stamps
	// differ by at most this much. Zero requires exact equality.
	Tolerance time.Duration
}

// Merge joins the three streams. mag may be empty, in which case the
// result is the acc/gyro join with HasMag unset. The output timestamps are
// strictly increasing; an empty result is valid.
func Merge(acc, gyro, mag []sensor.Sample, opts Options) []Frame {
	return Attach(Join(acc, gyro, opts), mag)
}

// Join is the accelerometer/gyroscope half of Merge. Its frame times are
// the instants at which both inertial sensors reported.
func Join(acc, gyro []sensor.Sample, opts Options) []Frame {
	return joinInertial(prepare(acc), prepare(gyro), opts.Tolerance)
}

// Attach interpolates mag onto joined frames. With no usable magnetometer
// samples frames is returned as is.
func Attach(frames []Frame, mag []sensor.Sample) []Frame {
	mag = prepare(mag)
	if len(mag) == 0 {
		return frames
	}
	return attachMag(frames, mag)
}

// Remerge splits frames back into their streams and merges them again.
// For a gap-free merged table the result equals the input.
func Remerge(frames []Frame, opts Options) []Frame {
	acc := make([]sensor.Sample, 0, len(frames))
	gyro := make([]sensor.Sample, 0, len(frames))
	var mag []sensor.Sample
	for _, f := range frames {
		acc = append(acc, sensor.Sample{Time: f.Time, Vector: f.Acc})
		gyro = append(gyro, sensor.Sample{Time: f.Time, Vector: f.Gyro})
		if f.HasMag {
			mag = append(mag, sensor.Sample{Time: f.Time, Vector: f.Mag})
		}
	}
	return Merge(acc, gyro, mag, opts)
}

// prepare returns the finite samples of s sorted by time with duplicate
// stamps collapsed to their first occurrence. s is never modified.
func prepare(s []sensor.Sample) []sensor.Sample {
	out := make([]sensor.Sample, 0, len(s))
	for _, x := range s {
		if finite(x.Vector) {
			out = append(out, x)
		}
	}
	if !sort.SliceIsSorted(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) }) {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	}

	n := 0
	for i, x := range out {
		if i > 0 && !x.Time.After(out[n-1].Time) {
			continue
		}
		out[n] = x
		n++
	}
	return out[:n]
}

func joinInertial(acc, gyro []sensor.Sample, tol time.Duration) []Frame {
	if tol < 0 {
		tol = 0
	}
	out := make([]Frame, 0, min(len(acc), len(gyro)))
	j := 0
	for _, a := range acc {
		lo, hi := a.Time.Add(-tol), a.Time.Add(tol)
		for j < len(gyro) && gyro[j].Time.Before(lo) {
			j++
		}
		if j == len(gyro) {
			break
		}

		best := -1
		for k := j; k < len(gyro) && !gyro[k].Time.After(hi); k++ {
			if best < 0 || absDuration(gyro[k].Time.Sub(a.Time)) < absDuration(gyro[best].Time.Sub(a.Time)) {
				best = k
			}
		}
		if best < 0 {
			continue
		}
		out = append(out, Frame{Time: a.Time, Acc: a.Vector, Gyro: gyro[best].Vector})
		j = best + 1
	}
	return out
}

func attachMag(frames []Frame, mag []sensor.Sample) []Frame {
	first, last := mag[0].Time, mag[len(mag)-1].Time
	out := make([]Frame, 0, len(frames))
	k := 0
	for _, f := range frames {
		if f.Time.Before(first) || f.Time.After(last) {
			continue
		}
		for k+1 < len(mag) && !mag[k+1].Time.After(f.Time) {
			k++
		}
		f.Mag = mag[k].Vector
		if mag[k].Time.Before(f.Time) {
			f.Mag = interpolate(mag[k], mag[k+1], f.Time)
		}
		f.HasMag = true
		out = append(out, f)
	}
	return out
}

// interpolate assumes a.Time < t < b.Time.
func interpolate(a, b sensor.Sample, t time.Time) sensor.Vector {
	frac := float64(t.Sub(a.Time)) / float64(b.Time.Sub(a.Time))
	return sensor.Vector{
		X: a.X + (b.X-a.X)*frac,
		Y: a.Y + (b.Y-a.Y)*frac,
		Z: a.Z + (b.Z-a.Z)*frac,
	}
}

func finite(v sensor.Vector) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
