package telemetry

import (
	"fmt"
	"io"
	"math"

	"github.com/tormoder/fit"
)

// DecodeFIT extracts the record messages of a FIT activity.
func DecodeFIT(r io.Reader) ([]Sample, error) {
	file, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode fit: %w", err)
	}
	act, err := file.Activity()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoActivity, err)
	}
	out := make([]Sample, 0, len(act.Records))
	for _, rec := range act.Records {
		if rec == nil || rec.Timestamp.IsZero() {
			continue
		}
		out = append(out, recordSample(rec))
	}
	return out, nil
}

// ConvertFIT decodes a FIT activity from r and writes its records to w as a
// telemetry CSV. It returns the number of rows written.
func ConvertFIT(r io.Reader, w io.Writer) (int, error) {
	samples, err := DecodeFIT(r)
	if err != nil {
		return 0, err
	}
	if err := WriteCSV(w, samples); err != nil {
		return 0, err
	}
	return len(samples), nil
}

func recordSample(rec *fit.RecordMsg) Sample {
	s := NewSample(rec.Timestamp.UTC())

	s.EnhancedSpeed = rec.GetEnhancedSpeedScaled()
	if math.IsNaN(s.EnhancedSpeed) {
		s.EnhancedSpeed = rec.GetSpeedScaled()
	}
	s.EnhancedAltitude = rec.GetEnhancedAltitudeScaled()
	if math.IsNaN(s.EnhancedAltitude) {
		s.EnhancedAltitude = rec.GetAltitudeScaled()
	}
	if rec.Cadence != 0xFF {
		s.Cadence = float64(rec.Cadence)
	}
	if rec.Power != 0xFFFF {
		s.Power = float64(rec.Power)
	}
	if rec.HeartRate != 0xFF {
		s.HeartRate = float64(rec.HeartRate)
	}
	if !rec.PositionLat.Invalid() {
		s.PositionLat = rec.PositionLat.Degrees()
	}
	if !rec.PositionLong.Invalid() {
		s.PositionLong = rec.PositionLong.Degrees()
	}
	return s
}
