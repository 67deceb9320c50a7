package sensor

import (
	"errors"
	"fmt"
	"math"
)

// Output data rates and full-scale ranges the capture firmware accepts.
var (
	AccelerometerODRs   = []float64{12.5, 25, 50, 100, 200, 400, 800, 1600}
	AccelerometerRanges = []float64{2, 4, 8, 16}
	GyroscopeODRs       = []float64{25, 50, 100, 200, 400, 800, 1600, 3200}
	GyroscopeRanges     = []float64{125, 250, 500, 1000, 2000}
	MagnetometerPresets = []string{"low_power", "regular", "enhanced_regular", "high_accuracy"}
)

// Magnetometer preset output rates in Hz.
var magnetometerPresetODR = map[string]float64{
	"low_power":        10,
	"regular":          10,
	"enhanced_regular": 10,
	"high_accuracy":    20,
}

// StreamSettings describes how one instrument was configured for a capture.
type StreamSettings struct {
	Enabled *bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	ODR     float64 `yaml:"odr,omitempty" json:"odr,omitempty"`
	Range   float64 `yaml:"range,omitempty" json:"range,omitempty"`
	Preset  string  `yaml:"preset,omitempty" json:"preset,omitempty"`
}

// IsEnabled treats an omitted flag as enabled.
func (s StreamSettings) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// CaptureSettings mirrors the device configuration used for a capture run.
type CaptureSettings struct {
	Accelerometer StreamSettings `yaml:"accelerometer" json:"accelerometer"`
	Gyroscope     StreamSettings `yaml:"gyroscope" json:"gyroscope"`
	Magnetometer  StreamSettings `yaml:"magnetometer" json:"magnetometer"`
}

// Validate checks every configured rate, range and preset against the
// firmware tables. Zero values mean "not specified" and pass.
func (c CaptureSettings) Validate() error {
	var errs []error
	check := func(name string, v float64, allowed []float64) {
		if v != 0 && !containsFloat(allowed, v) {
			errs = append(errs, fmt.Errorf("%s %g not in %v", name, v, allowed))
		}
	}
	check("accelerometer odr", c.Accelerometer.ODR, AccelerometerODRs)
	check("accelerometer range", c.Accelerometer.Range, AccelerometerRanges)
	check("gyroscope odr", c.Gyroscope.ODR, GyroscopeODRs)
	check("gyroscope range", c.Gyroscope.Range, GyroscopeRanges)
	if p := c.Magnetometer.Preset; p != "" {
		if _, ok := magnetometerPresetODR[p]; !ok {
			errs = append(errs, fmt.Errorf("magnetometer preset %q not in %v", p, MagnetometerPresets))
		}
	}
	return errors.Join(errs...)
}

// ExpectedRateHz is the rate the merged acc/gyro stream should reach: the
// slower of the two enabled inertial streams. It returns 0 when neither
// rate is known.
func (c CaptureSettings) ExpectedRateHz() float64 {
	rate := math.Inf(1)
	for _, s := range []StreamSettings{c.Accelerometer, c.Gyroscope} {
		if s.IsEnabled() && s.ODR > 0 {
			rate = math.Min(rate, s.ODR)
		}
	}
	if math.IsInf(rate, 1) {
		return 0
	}
	return rate
}

// MagnetometerRateHz returns the preset's output rate, or 0 if unknown.
func (c CaptureSettings) MagnetometerRateHz() float64 {
	if c.Magnetometer.ODR > 0 {
		return c.Magnetometer.ODR
	}
	return magnetometerPresetODR[c.Magnetometer.Preset]
}

func containsFloat(list []float64, v float64) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
