// Package pipeline runs the analysis end to end: it matches telemetry
// exports to capture sessions, processes each session concurrently and
// writes the reports.
package pipeline

import (
	"fmt"
	"time"

	"github.com/formcheck/formcheck/internal/config"
	"github.com/formcheck/formcheck/internal/correlate"
	"github.com/formcheck/formcheck/internal/merge"
	"github.com/formcheck/formcheck/internal/orientation"
	"github.com/formcheck/formcheck/internal/units"
)

// Settings is the resolved, typed form of the analysis configuration.
type Settings struct {
	Bucket        time.Duration
	IQRColumns    []string
	Source        *time.Location // naive telemetry timestamps
	Capture       *time.Location // naive capture timestamps
	Target        *time.Location // reference zone for output
	ExpectedHz    float64
	DropTolerance float64
	MagExpectedHz float64 // 0 skips the magnetometer rate check
	Merge         merge.Options
	Filter        orientation.Options
	Workers       int
}

// SettingsFromConfig resolves timezones and durations from cfg.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	if cfg == nil {
		cfg = config.Empty()
	}
	source, err := units.LoadLocation(cfg.GetSourceTimezone())
	if err != nil {
		return Settings{}, fmt.Errorf("source timezone: %w", err)
	}
	capture, err := units.LoadLocation(cfg.GetCaptureTimezone())
	if err != nil {
		return Settings{}, fmt.Errorf("capture timezone: %w", err)
	}
	target, err := units.LoadLocation(cfg.GetTargetTimezone())
	if err != nil {
		return Settings{}, fmt.Errorf("target timezone: %w", err)
	}
	return Settings{
		Bucket:        cfg.GetBucketWidth(),
		IQRColumns:    cfg.GetIQRColumns(),
		Source:        source,
		Capture:       capture,
		Target:        target,
		ExpectedHz:    cfg.GetExpectedRateHz(),
		DropTolerance: cfg.GetDropTolerance(),
		MagExpectedHz: cfg.GetMagnetometerRateHz(),
		Merge:         merge.Options{Tolerance: cfg.GetMergeTolerance()},
		Filter: orientation.Options{
			Kind:  cfg.GetFilter(),
			Alpha: cfg.GetComplementaryAlpha(),
			MaxDt: cfg.GetMaxDt(),
		},
		Workers: cfg.GetWorkers(),
	}, nil
}

func (s Settings) correlateOptions() correlate.Options {
	return correlate.Options{
		Bucket:     s.Bucket,
		IQRColumns: s.IQRColumns,
		Location:   s.Target,
	}
}

// describe is the JSON-friendly form stored with each run.
func (s Settings) describe() map[string]any {
	return map[string]any{
		"bucket":         s.Bucket.String(),
		"iqr_columns":    s.IQRColumns,
		"source_tz":      s.Source.String(),
		"capture_tz":     s.Capture.String(),
		"target_tz":      s.Target.String(),
		"expected_hz":    s.ExpectedHz,
		"drop_tolerance": s.DropTolerance,
		"mag_hz":         s.MagExpectedHz,
		"merge_tol":      s.Merge.Tolerance.String(),
		"filter":         s.Filter.Kind,
		"workers":        s.Workers,
	}
}
