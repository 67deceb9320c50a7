// Package sensor reads raw IMU capture streams and the device's onboard
// fusion output.
package sensor

import (
	"path/filepath"
	"strings"
	"time"
)

// Kind identifies which instrument produced a stream.
type Kind int

const (
	Accelerometer Kind = iota
	Gyroscope
	Magnetometer
	Fusion
)

func (k Kind) String() string {
	switch k {
	case Accelerometer:
		return "accelerometer"
	case Gyroscope:
		return "gyroscope"
	case Magnetometer:
		return "magnetometer"
	case Fusion:
		return "sensor_fusion"
	default:
		return "unknown"
	}
}

// KindFromFilename classifies a capture file by its name. Capture folders
// hold accelerometer*.csv, gyroscope*.csv, magnetometer*.csv and optionally
// *sensor_fusion*.csv.
func KindFromFilename(name string) (Kind, bool) {
	base := strings.ToLower(filepath.Base(name))
	if filepath.Ext(base) != ".csv" {
		return 0, false
	}
	switch {
	case strings.Contains(base, "sensor_fusion"):
		return Fusion, true
	case strings.HasPrefix(base, "accelerometer"), strings.HasPrefix(base, "acc_"):
		return Accelerometer, true
	case strings.HasPrefix(base, "gyroscope"), strings.HasPrefix(base, "gyro_"):
		return Gyroscope, true
	case strings.HasPrefix(base, "magnetometer"), strings.HasPrefix(base, "mag_"):
		return Magnetometer, true
	}
	return 0, false
}

// Vector is a three-axis reading. Units follow the instrument: g for the
// accelerometer, degrees/s for the gyroscope, microtesla for the magnetometer.
type Vector struct {
	X, Y, Z float64
}

// Sample is one timestamped reading from a single instrument.
type Sample struct {
	Time time.Time
	Vector
}

// Times extracts the timestamps of a stream in order.
func Times(samples []Sample) []time.Time {
	out := make([]time.Time, len(samples))
	for i, s := range samples {
		out[i] = s.Time
	}
	return out
}

// Span returns the first and last timestamps. ok is false for an empty stream.
func Span(samples []Sample) (first, last time.Time, ok bool) {
	if len(samples) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return samples[0].Time, samples[len(samples)-1].Time, true
}
