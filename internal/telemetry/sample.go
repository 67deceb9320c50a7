// Package telemetry reads cycling telemetry exported from the fitness
// platform and keeps the local activity folder in sync with it.
package telemetry

import (
	"math"
	"time"

	"github.com/formcheck/formcheck/internal/units"
)

// Known column names. Anything else in a telemetry CSV is carried through
// Sample.Extra untouched.
const (
	ColTimestamp        = "timestamp"
	ColEnhancedSpeed    = "enhanced_speed"
	ColEnhancedAltitude = "enhanced_altitude"
	ColCadence          = "cadence"
	ColPower            = "power"
	ColHeartRate        = "heart_rate"
	ColPositionLat      = "position_lat"
	ColPositionLong     = "position_long"

	// ColSpeedKMH is derived from enhanced_speed.
	ColSpeedKMH = "speed_kmh"
)

// Columns is the canonical CSV column order.
var Columns = []string{
	ColTimestamp, ColEnhancedSpeed, ColEnhancedAltitude, ColCadence,
	ColPower, ColHeartRate, ColPositionLat, ColPositionLong,
}

// MeanColumns are the telemetry signals the correlator averages per bucket.
var MeanColumns = []string{ColSpeedKMH, ColHeartRate, ColCadence, ColPower}

// Sample is one telemetry record. Absent numeric fields are NaN.
type Sample struct {
	Time             time.Time
	EnhancedSpeed    float64 // m/s
	EnhancedAltitude float64 // m
	Cadence          float64 // rpm
	Power            float64 // W
	HeartRate        float64 // bpm
	PositionLat      float64 // degrees
	PositionLong     float64 // degrees
	Extra            map[string]string
}

// NewSample returns a sample at t with every numeric field absent.
func NewSample(t time.Time) Sample {
	nan := math.NaN()
	return Sample{
		Time:             t,
		EnhancedSpeed:    nan,
		EnhancedAltitude: nan,
		Cadence:          nan,
		Power:            nan,
		HeartRate:        nan,
		PositionLat:      nan,
		PositionLong:     nan,
	}
}

// SpeedKMH converts enhanced_speed to km/h.
func (s Sample) SpeedKMH() float64 {
	return units.ConvertSpeed(s.EnhancedSpeed, units.KMPH)
}

// Value returns the named numeric column; ok is false when the column is
// unknown or the value is absent.
func (s Sample) Value(column string) (v float64, ok bool) {
	switch column {
	case ColSpeedKMH:
		v = s.SpeedKMH()
	case ColEnhancedSpeed:
		v = s.EnhancedSpeed
	case ColEnhancedAltitude:
		v = s.EnhancedAltitude
	case ColCadence:
		v = s.Cadence
	case ColPower:
		v = s.Power
	case ColHeartRate:
		v = s.HeartRate
	case ColPositionLat:
		v = s.PositionLat
	case ColPositionLong:
		v = s.PositionLong
	default:
		return 0, false
	}
	return v, !math.IsNaN(v)
}

func (s *Sample) field(column string) *float64 {
	switch column {
	case ColEnhancedSpeed, "speed":
		return &s.EnhancedSpeed
	case ColEnhancedAltitude, "altitude":
		return &s.EnhancedAltitude
	case ColCadence:
		return &s.Cadence
	case ColPower:
		return &s.Power
	case ColHeartRate:
		return &s.HeartRate
	case ColPositionLat:
		return &s.PositionLat
	case ColPositionLong:
		return &s.PositionLong
	}
	return nil
}
