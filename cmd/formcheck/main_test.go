package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formcheck/formcheck/internal/fsutil"
	"github.com/formcheck/formcheck/internal/monitoring"
	"github.com/formcheck/formcheck/internal/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	monitoring.SetLogger(nil)
	monitoring.SetOutput(&bytes.Buffer{})
	t.Cleanup(func() {
		monitoring.SetLogger(monitoring.Logger().Infof)
		monitoring.SetOutput(os.Stderr)
	})

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// workspace lays out a config, one ride and one overlapping session.
func workspace(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	fsys := fsutil.OSFileSystem{}

	var ride strings.Builder
	ride.WriteString("timestamp,enhanced_speed,heart_rate\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&ride, "%s,%d,%d\n", testutil.Epoch.Add(time.Duration(i)*time.Second).Format("2006-01-02 15:04:05"), 8, 140)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "garmin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garmin", "Ride_2024_05_01_1000_42.csv"), []byte(ride.String()), 0o644))

	s := testutil.Stream(testutil.Epoch.Add(5*time.Second), 50, 20*time.Second, nil)
	testutil.WriteSession(t, fsys, filepath.Join(dir, "captures", "morning"), s, s, s)

	cfgPath = filepath.Join(dir, "formcheck.yaml")
	cfg := fmt.Sprintf(`garmin_data_folder: %s
s3_data_folder: %s
analysis_data_folder: %s
database_path: %s
expected_rate_hz: 50
workers: 1
`, filepath.Join(dir, "garmin"), filepath.Join(dir, "captures"), filepath.Join(dir, "analysis"), filepath.Join(dir, "catalogue.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return dir, cfgPath
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "formcheck dev"))
}

func TestMissingExplicitConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "match")
	assert.Error(t, err)
}

func TestMigrateCmd(t *testing.T) {
	_, cfg := workspace(t)

	out, err := run(t, "--config", cfg, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 0 of 2 (clean)")

	out, err = run(t, "--config", cfg, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 2 of 2")

	out, err = run(t, "--config", cfg, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1 of 2")

	_, err = run(t, "--config", cfg, "migrate", "force", "x")
	assert.Error(t, err)
}

func TestMatchCmd(t *testing.T) {
	_, cfg := workspace(t)
	out, err := run(t, "--config", cfg, "match")
	require.NoError(t, err)
	assert.Contains(t, out, "Ride_2024_05_01_1000_42")
	assert.Contains(t, out, "morning")
}

func TestAnalyzeCmd(t *testing.T) {
	dir, cfg := workspace(t)
	out, err := run(t, "--config", cfg, "analyze")
	require.NoError(t, err)
	assert.Contains(t, out, "morning")
	assert.Contains(t, out, "1 sessions, 0 failed")

	for _, name := range []string{"correlation.csv", "orientation.csv", "frame_rate.csv"} {
		_, err := os.Stat(filepath.Join(dir, "analysis", "Ride_2024_05_01_1000_42", "morning", name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(dir, "analysis", "Ride_2024_05_01_1000_42", "report.html"))
	assert.NoError(t, err)
}

func TestMergeAndAuditCmds(t *testing.T) {
	dir, cfg := workspace(t)
	session := filepath.Join(dir, "captures", "morning")

	out, err := run(t, "--config", cfg, "merge", session)
	require.NoError(t, err)
	assert.Contains(t, out, "1000 frames written")
	_, err = os.Stat(filepath.Join(session, "merged.csv"))
	assert.NoError(t, err)

	out, err = run(t, "--config", cfg, "audit", "--no-db")
	require.NoError(t, err)
	assert.Contains(t, out, "morning")
	_, err = os.Stat(filepath.Join(dir, "analysis", "frame_rate_analysis.png"))
	assert.NoError(t, err)
}
