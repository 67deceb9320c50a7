package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := Empty()

	if got := cfg.GetBucketWidth(); got != 5*time.Second {
		t.Errorf("GetBucketWidth() = %v, want 5s", got)
	}
	if got := cfg.GetIQRColumns(); len(got) != 2 || got[0] != "roll" || got[1] != "pitch" {
		t.Errorf("GetIQRColumns() = %v, want [roll pitch]", got)
	}
	if cfg.GetSourceTimezone() != "UTC" || cfg.GetTargetTimezone() != "Europe/Brussels" {
		t.Errorf("timezones = %s -> %s", cfg.GetSourceTimezone(), cfg.GetTargetTimezone())
	}
	if cfg.GetExpectedRateHz() != 100 {
		t.Errorf("GetExpectedRateHz() = %v, want 100", cfg.GetExpectedRateHz())
	}
	if cfg.GetFilter() != "kalman" {
		t.Errorf("GetFilter() = %q", cfg.GetFilter())
	}
	if cfg.GetMaxDt() != time.Second || cfg.GetMergeTolerance() != 0 {
		t.Errorf("max_dt=%v merge_tolerance=%v", cfg.GetMaxDt(), cfg.GetMergeTolerance())
	}
	if cfg.GetWorkers() != 4 || cfg.GetLookbackDays() != 30 || cfg.GetPerformAnalysis() {
		t.Errorf("run control defaults wrong: workers=%d lookback=%d", cfg.GetWorkers(), cfg.GetLookbackDays())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "formcheck.yaml", `
bucket_width: 10s
iqr_columns: [roll, yaw]
source_timezone: UTC
target_timezone: Europe/Brussels
filter: complementary
complementary_alpha: 0.9
workers: 2
capture:
  accelerometer: {odr: 100, range: 8}
  gyroscope: {odr: 200, range: 500}
  magnetometer: {preset: regular}
intervals:
  athlete_id: i123
  api_key: k
s3:
  bucket: captures
  region: eu-west-1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetBucketWidth() != 10*time.Second {
		t.Errorf("bucket width = %v", cfg.GetBucketWidth())
	}
	if got := strings.Join(cfg.GetIQRColumns(), ","); got != "roll,yaw" {
		t.Errorf("iqr columns = %s", got)
	}
	if cfg.GetExpectedRateHz() != 100 {
		t.Errorf("expected rate from capture settings = %v, want 100", cfg.GetExpectedRateHz())
	}
	if cfg.GetMagnetometerRateHz() != 10 {
		t.Errorf("magnetometer rate = %v, want 10", cfg.GetMagnetometerRateHz())
	}
	if cfg.GetComplementaryAlpha() != 0.9 || cfg.GetWorkers() != 2 {
		t.Errorf("alpha=%v workers=%d", cfg.GetComplementaryAlpha(), cfg.GetWorkers())
	}

	iv, err := cfg.ResolveIntervals()
	if err != nil || iv.AthleteID != "i123" {
		t.Errorf("ResolveIntervals() = %+v, %v", iv, err)
	}
	s3, creds, err := cfg.ResolveS3()
	if err != nil || s3.Bucket != "captures" || creds.AccessKey != "" {
		t.Errorf("ResolveS3() = %+v, %v, %v", s3, creds, err)
	}
}

func TestLoadJSONPartial(t *testing.T) {
	path := writeFile(t, "partial.json", `{"expected_rate_hz": 50, "lookback_days": 7}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetExpectedRateHz() != 50 || cfg.GetLookbackDays() != 7 {
		t.Errorf("rate=%v lookback=%d", cfg.GetExpectedRateHz(), cfg.GetLookbackDays())
	}
	if cfg.GetBucketWidth() != 5*time.Second {
		t.Errorf("omitted bucket_width should default, got %v", cfg.GetBucketWidth())
	}
}

func TestLoadRejects(t *testing.T) {
	if _, err := Load(writeFile(t, "config.toml", "x = 1")); err == nil {
		t.Error("expected extension error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
	if _, err := Load(writeFile(t, "bad.yaml", "bucket_width: [")); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad duration", Config{BucketWidth: ptrString("five seconds")}},
		{"sub-second bucket", Config{BucketWidth: ptrString("500ms")}},
		{"negative tolerance", Config{MergeTolerance: ptrString("-1s")}},
		{"unknown column", Config{IQRColumns: []string{"speed"}}},
		{"unknown timezone", Config{TargetTimezone: ptrString("Mars/Olympus")}},
		{"zero rate", Config{ExpectedRateHz: ptrFloat64(0)}},
		{"drop tolerance", Config{DropTolerance: ptrFloat64(1)}},
		{"unknown filter", Config{Filter: ptrString("madgwick")}},
		{"alpha", Config{ComplementaryAlpha: ptrFloat64(1.5)}},
		{"workers", Config{Workers: ptrInt(0)}},
		{"lookback", Config{LookbackDays: ptrInt(0)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestValidateCaptureSettings(t *testing.T) {
	path := writeFile(t, "capture.yaml", "capture:\n  gyroscope: {odr: 30}\n")
	_, err := Load(path)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Load() = %v, want ErrInvalid", err)
	}
	if !strings.Contains(err.Error(), "gyroscope odr 30") {
		t.Errorf("error should name the bad field: %v", err)
	}
}

func TestCredentials(t *testing.T) {
	s3Path := writeFile(t, "s3.json", `{"accessKey":"AK","secretKey":"SK","bucketName":"b","region":"eu-central-1"}`)
	ivPath := writeFile(t, "intervals.json", `{"intervals_icu":{"athlete_id":"i9","api_key":"secret"}}`)

	creds, err := LoadS3Credentials(s3Path)
	if err != nil {
		t.Fatalf("LoadS3Credentials: %v", err)
	}
	if creds.AccessKey != "AK" || creds.Region != "eu-central-1" {
		t.Errorf("creds = %+v", creds)
	}
	if strings.Contains(creds.String(), "SK") {
		t.Error("String() leaks the secret key")
	}

	cfg := &Config{
		Intervals: IntervalsConfig{CredentialsFile: ivPath},
		S3:        S3Config{CredentialsFile: s3Path, Prefix: "data/"},
	}
	iv, err := cfg.ResolveIntervals()
	if err != nil || iv.AthleteID != "i9" || iv.APIKey != "secret" {
		t.Errorf("ResolveIntervals() = %+v, %v", iv, err)
	}
	s3, got, err := cfg.ResolveS3()
	if err != nil || s3.Bucket != "b" || s3.Region != "eu-central-1" || got.SecretKey != "SK" {
		t.Errorf("ResolveS3() = %+v, %v", s3, err)
	}

	if _, err := LoadIntervalsCredentials(writeFile(t, "empty.json", `{}`)); !errors.Is(err, ErrInvalid) {
		t.Errorf("empty intervals credentials = %v", err)
	}
	if _, _, err := Empty().ResolveS3(); !errors.Is(err, ErrInvalid) {
		t.Errorf("ResolveS3 without bucket = %v", err)
	}
}

type resolved struct {
	Bucket                         time.Duration
	Columns                        []string
	Source, Target, Capture        string
	Rate, Tolerance, Alpha         float64
	Merge, MaxDt                   time.Duration
	Filter                         string
	Garmin, S3, Analysis, Database string
	Perform                        bool
	Lookback, Workers              int
}

func resolve(c *Config) resolved {
	return resolved{
		Bucket:    c.GetBucketWidth(),
		Columns:   c.GetIQRColumns(),
		Source:    c.GetSourceTimezone(),
		Target:    c.GetTargetTimezone(),
		Capture:   c.GetCaptureTimezone(),
		Rate:      c.GetExpectedRateHz(),
		Tolerance: c.GetDropTolerance(),
		Alpha:     c.GetComplementaryAlpha(),
		Merge:     c.GetMergeTolerance(),
		MaxDt:     c.GetMaxDt(),
		Filter:    c.GetFilter(),
		Garmin:    c.GetGarminDataFolder(),
		S3:        c.GetS3DataFolder(),
		Analysis:  c.GetAnalysisDataFolder(),
		Database:  c.GetDatabasePath(),
		Perform:   c.GetPerformAnalysis(),
		Lookback:  c.GetLookbackDays(),
		Workers:   c.GetWorkers(),
	}
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if diff := cmp.Diff(resolve(Empty()), resolve(cfg)); diff != "" {
		t.Errorf("example config drifted from defaults (-want +got):\n%s", diff)
	}
	if cfg.Intervals.CredentialsFile != "config/credentials.json" {
		t.Errorf("intervals credentials_file = %q", cfg.Intervals.CredentialsFile)
	}
}
