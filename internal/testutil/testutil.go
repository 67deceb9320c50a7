// Package testutil provides shared fixtures for pipeline tests: synthetic
// capture streams and helpers to lay them out as capture folders.
package testutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/formcheck/formcheck/internal/fsutil"
	"github.com/formcheck/formcheck/internal/sensor"
)

// Epoch is a fixed, bucket-aligned instant used as T0 throughout the tests.
var Epoch = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// Stream generates samples at hz for duration d starting at start. f maps
// seconds since start to the reading; nil yields a level, resting device
// (gravity on +z, zero rates, field pointing north and down).
func Stream(start time.Time, hz float64, d time.Duration, f func(sec float64) sensor.Vector) []sensor.Sample {
	if f == nil {
		f = func(float64) sensor.Vector { return sensor.Vector{Z: 1} }
	}
	period := time.Duration(float64(time.Second) / hz)
	n := int(d / period)
	out := make([]sensor.Sample, n)
	for i := range out {
		off := time.Duration(i) * period
		out[i] = sensor.Sample{Time: start.Add(off), Vector: f(off.Seconds())}
	}
	return out
}

// StreamCSV renders samples in the capture layout epoch,x,y,z.
func StreamCSV(samples []sensor.Sample) []byte {
	var b strings.Builder
	b.WriteString("epoch,x,y,z\n")
	for _, s := range samples {
		fmt.Fprintf(&b, "%d,%g,%g,%g\n", s.Time.UnixMilli(), s.X, s.Y, s.Z)
	}
	return []byte(b.String())
}

// WriteSession lays out a capture folder dir on fsys with one CSV per
// stream. A nil stream is omitted.
func WriteSession(t testing.TB, fsys fsutil.FileSystem, dir string, acc, gyro, mag []sensor.Sample) {
	t.Helper()
	require := func(err error) {
		if err != nil {
			t.Fatalf("write session %s: %v", dir, err)
		}
	}
	require(fsys.MkdirAll(dir, 0o755))
	for name, s := range map[string][]sensor.Sample{
		"accelerometer.csv": acc,
		"gyroscope.csv":     gyro,
		"magnetometer.csv":  mag,
	} {
		if s == nil {
			continue
		}
		require(fsys.WriteFile(filepath.Join(dir, name), StreamCSV(s), 0o644))
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
