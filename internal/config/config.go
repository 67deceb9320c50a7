// Package config loads the pipeline configuration document.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/formcheck/formcheck/internal/sensor"
	"github.com/formcheck/formcheck/internal/units"
)

// DefaultConfigPath is where the CLI looks when --config is not given.
const DefaultConfigPath = "config/formcheck.yaml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root configuration document. Every field is optional; the
// Get* accessors supply defaults for anything left out, so partial files
// are safe.
type Config struct {
	// Correlation
	BucketWidth    *string  `yaml:"bucket_width,omitempty" json:"bucket_width,omitempty"` // duration string like "5s"
	IQRColumns     []string `yaml:"iqr_columns,omitempty" json:"iqr_columns,omitempty"`
	SourceTimezone *string  `yaml:"source_timezone,omitempty" json:"source_timezone,omitempty"`
	TargetTimezone *string  `yaml:"target_timezone,omitempty" json:"target_timezone,omitempty"`

	// Capture
	CaptureTimezone *string                 `yaml:"capture_timezone,omitempty" json:"capture_timezone,omitempty"`
	ExpectedRateHz  *float64                `yaml:"expected_rate_hz,omitempty" json:"expected_rate_hz,omitempty"`
	DropTolerance   *float64                `yaml:"drop_tolerance,omitempty" json:"drop_tolerance,omitempty"`
	Capture         *sensor.CaptureSettings `yaml:"capture,omitempty" json:"capture,omitempty"`

	// Merge and filter
	MergeTolerance     *string  `yaml:"merge_tolerance,omitempty" json:"merge_tolerance,omitempty"`
	Filter             *string  `yaml:"filter,omitempty" json:"filter,omitempty"`
	ComplementaryAlpha *float64 `yaml:"complementary_alpha,omitempty" json:"complementary_alpha,omitempty"`
	MaxDt              *string  `yaml:"max_dt,omitempty" json:"max_dt,omitempty"`

	// Folders and catalogue
	GarminDataFolder   *string `yaml:"garmin_data_folder,omitempty" json:"garmin_data_folder,omitempty"`
	S3DataFolder       *string `yaml:"s3_data_folder,omitempty" json:"s3_data_folder,omitempty"`
	AnalysisDataFolder *string `yaml:"analysis_data_folder,omitempty" json:"analysis_data_folder,omitempty"`
	DatabasePath       *string `yaml:"database_path,omitempty" json:"database_path,omitempty"`

	// Run control
	PerformAnalysis *bool `yaml:"perform_analysis,omitempty" json:"perform_analysis,omitempty"`
	LookbackDays    *int  `yaml:"lookback_days,omitempty" json:"lookback_days,omitempty"`
	Workers         *int  `yaml:"workers,omitempty" json:"workers,omitempty"`

	Intervals IntervalsConfig `yaml:"intervals,omitempty" json:"intervals,omitempty"`
	S3        S3Config        `yaml:"s3,omitempty" json:"s3,omitempty"`
}

// IntervalsConfig locates the fitness platform account. Secrets may live in
// a separate credentials file.
type IntervalsConfig struct {
	BaseURL         string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	AthleteID       string `yaml:"athlete_id,omitempty" json:"athlete_id,omitempty"`
	APIKey          string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty"`
}

// S3Config locates the capture bucket.
type S3Config struct {
	Bucket          string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Region          string `yaml:"region,omitempty" json:"region,omitempty"`
	Prefix          string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty"`
}

func ptrString(v string) *string    { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a YAML (.yaml/.yml) or JSON (.json) configuration file and
// validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml, .yml or .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func checkDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return invalid("%s %q: %v", name, *v, err)
	}
	if d < 0 {
		return invalid("%s must be non-negative, got %s", name, *v)
	}
	return nil
}

// Validate checks every field that is set.
func (c *Config) Validate() error {
	for name, v := range map[string]*string{
		"bucket_width":    c.BucketWidth,
		"merge_tolerance": c.MergeTolerance,
		"max_dt":          c.MaxDt,
	} {
		if err := checkDuration(name, v); err != nil {
			return err
		}
	}
	if c.BucketWidth != nil && *c.BucketWidth != "" && c.GetBucketWidth() < time.Second {
		return invalid("bucket_width must be at least 1s, got %s", *c.BucketWidth)
	}

	for _, col := range c.IQRColumns {
		switch col {
		case "roll", "pitch", "yaw":
		default:
			return invalid("iqr_columns: unknown orientation column %q", col)
		}
	}

	for name, tz := range map[string]*string{
		"source_timezone":  c.SourceTimezone,
		"target_timezone":  c.TargetTimezone,
		"capture_timezone": c.CaptureTimezone,
	} {
		if tz != nil && *tz != "" && !units.IsTimezoneValid(*tz) {
			return invalid("%s: unknown timezone %q", name, *tz)
		}
	}

	if c.ExpectedRateHz != nil && *c.ExpectedRateHz <= 0 {
		return invalid("expected_rate_hz must be positive, got %g", *c.ExpectedRateHz)
	}
	if c.DropTolerance != nil && (*c.DropTolerance < 0 || *c.DropTolerance >= 1) {
		return invalid("drop_tolerance must be in [0, 1), got %g", *c.DropTolerance)
	}
	if c.Filter != nil {
		switch *c.Filter {
		case "", "kalman", "complementary":
		default:
			return invalid("filter must be kalman or complementary, got %q", *c.Filter)
		}
	}
	if c.ComplementaryAlpha != nil && (*c.ComplementaryAlpha <= 0 || *c.ComplementaryAlpha >= 1) {
		return invalid("complementary_alpha must be in (0, 1), got %g", *c.ComplementaryAlpha)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return invalid("workers must be at least 1, got %d", *c.Workers)
	}
	if c.LookbackDays != nil && *c.LookbackDays < 1 {
		return invalid("lookback_days must be at least 1, got %d", *c.LookbackDays)
	}
	if c.Capture != nil {
		if err := c.Capture.Validate(); err != nil {
			return fmt.Errorf("%w: capture: %w", ErrInvalid, err)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

// GetBucketWidth returns the correlation bucket width (default 5s).
func (c *Config) GetBucketWidth() time.Duration {
	return durationOr(c.BucketWidth, 5*time.Second)
}

// GetIQRColumns returns the orientation columns reduced to IQR.
func (c *Config) GetIQRColumns() []string {
	if len(c.IQRColumns) == 0 {
		return []string{"roll", "pitch"}
	}
	return c.IQRColumns
}

// GetSourceTimezone is the zone naive telemetry timestamps are written in.
func (c *Config) GetSourceTimezone() string { return stringOr(c.SourceTimezone, "UTC") }

// GetTargetTimezone is the reference zone for correlation output.
func (c *Config) GetTargetTimezone() string { return stringOr(c.TargetTimezone, "Europe/Brussels") }

// GetCaptureTimezone is the zone naive capture timestamps are written in.
func (c *Config) GetCaptureTimezone() string { return stringOr(c.CaptureTimezone, "Europe/Brussels") }

// GetExpectedRateHz returns the auditor's expected rate: the explicit value,
// else the rate implied by the capture settings, else 100 Hz.
func (c *Config) GetExpectedRateHz() float64 {
	if c.ExpectedRateHz != nil {
		return *c.ExpectedRateHz
	}
	if c.Capture != nil {
		if hz := c.Capture.ExpectedRateHz(); hz > 0 {
			return hz
		}
	}
	return 100
}

// GetMagnetometerRateHz is the magnetometer rate implied by the capture
// settings, or 0 when none are configured.
func (c *Config) GetMagnetometerRateHz() float64 {
	if c.Capture == nil {
		return 0
	}
	return c.Capture.MagnetometerRateHz()
}

func (c *Config) GetDropTolerance() float64 {
	if c.DropTolerance == nil {
		return 0.1
	}
	return *c.DropTolerance
}

func (c *Config) GetMergeTolerance() time.Duration { return durationOr(c.MergeTolerance, 0) }

func (c *Config) GetFilter() string { return stringOr(c.Filter, "kalman") }

func (c *Config) GetComplementaryAlpha() float64 {
	if c.ComplementaryAlpha == nil {
		return 0.98
	}
	return *c.ComplementaryAlpha
}

func (c *Config) GetMaxDt() time.Duration { return durationOr(c.MaxDt, time.Second) }

func (c *Config) GetGarminDataFolder() string { return stringOr(c.GarminDataFolder, "data/garmin") }

func (c *Config) GetS3DataFolder() string { return stringOr(c.S3DataFolder, "data/s3") }

func (c *Config) GetAnalysisDataFolder() string {
	return stringOr(c.AnalysisDataFolder, "analysis")
}

func (c *Config) GetDatabasePath() string { return stringOr(c.DatabasePath, "formcheck.db") }

// GetPerformAnalysis reports whether analyze runs even when a sync brought
// nothing new.
func (c *Config) GetPerformAnalysis() bool {
	if c.PerformAnalysis == nil {
		return false
	}
	return *c.PerformAnalysis
}

func (c *Config) GetLookbackDays() int {
	if c.LookbackDays == nil {
		return 30
	}
	return *c.LookbackDays
}

func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}
