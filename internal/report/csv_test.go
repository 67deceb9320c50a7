package report

import (
	"bytes"
	"encoding/csv"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formcheck/formcheck/internal/correlate"
	"github.com/formcheck/formcheck/internal/framerate"
	"github.com/formcheck/formcheck/internal/merge"
	"github.com/formcheck/formcheck/internal/orientation"
	"github.com/formcheck/formcheck/internal/sensor"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func sampleResult() correlate.Result {
	return correlate.Result{
		Window:      correlate.Window{Start: t0, End: t0.Add(10 * time.Second)},
		Bucket:      5 * time.Second,
		IQRColumns:  []string{"roll", "pitch"},
		MeanColumns: []string{"speed_kmh", "heart_rate"},
		Rows: []correlate.Row{
			{
				Start:            t0,
				IQR:              map[string]float64{"roll": 1.5, "pitch": 2},
				Mean:             map[string]float64{"speed_kmh": 28.8, "heart_rate": 140},
				Samples:          40,
				TelemetrySamples: 5,
			},
			{
				Start:            t0.Add(5 * time.Second),
				IQR:              map[string]float64{"roll": 0.5, "pitch": math.NaN()},
				Mean:             map[string]float64{"speed_kmh": 30, "heart_rate": 142.5},
				Samples:          40,
				TelemetrySamples: 5,
			},
		},
	}
}

func readAll(t *testing.T, b []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteCorrelation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCorrelation(&buf, sampleResult()))

	rows := readAll(t, buf.Bytes())
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"bucket_start", "roll_iqr", "pitch_iqr", "speed_kmh", "heart_rate", "imu_samples", "telemetry_samples"}, rows[0])
	assert.Equal(t, []string{"2024-05-01 10:00:00.000Z", "1.5", "2", "28.8", "140", "40", "5"}, rows[1])
	assert.Equal(t, "", rows[2][2], "NaN is written as an empty cell")
}

func TestWriteCorrelation_NoRows(t *testing.T) {
	res := sampleResult()
	res.Rows = nil
	res.NoOverlap = true

	var buf bytes.Buffer
	require.NoError(t, WriteCorrelation(&buf, res))
	assert.Len(t, readAll(t, buf.Bytes()), 1)
}

func TestOrientationRoundTrip(t *testing.T) {
	est := []orientation.Estimate{
		{Time: t0, Pose: orientation.Pose{Roll: 1.25, Pitch: -3, Yaw: 179.5}},
		{Time: t0.Add(10 * time.Millisecond), Pose: orientation.Pose{Roll: 1.5, Pitch: -2.75, Yaw: -180}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteOrientation(&buf, est))
	assert.True(t, strings.HasPrefix(buf.String(), "epoch,roll,pitch,yaw\n1714557600000,"))

	got, err := ReadOrientation(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range est {
		assert.True(t, est[i].Time.Equal(got[i].Time))
		assert.Equal(t, est[i].Pose, got[i].Pose)
	}
}

func TestReadOrientation_Errors(t *testing.T) {
	for name, in := range map[string]string{
		"empty":      "",
		"bad header": "time,a,b,c\n",
		"bad value":  "epoch,roll,pitch,yaw\n1714557600000,x,0,0\n",
		"bad epoch":  "epoch,roll,pitch,yaw\nnope,0,0,0\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadOrientation(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestWriteMerged(t *testing.T) {
	frames := []merge.Frame{
		{Time: t0, Acc: sensor.Vector{Z: 1}, Gyro: sensor.Vector{X: 0.5}, Mag: sensor.Vector{X: 20, Y: -20}, HasMag: true},
		{Time: t0.Add(10 * time.Millisecond), Acc: sensor.Vector{Z: 1}},
	}

	t.Run("without reference", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteMerged(&buf, frames, nil))
		rows := readAll(t, buf.Bytes())
		require.Len(t, rows, 3)
		assert.Len(t, rows[0], 11)
		assert.Equal(t, "yaw_uncompensated", rows[0][10])
		assert.Equal(t, []string{"1714557600000", "0", "0", "1", "0.5", "0", "0", "20", "-20", "0"}, rows[1][:10])
		yaw, err := strconv.ParseFloat(rows[1][10], 64)
		require.NoError(t, err)
		assert.InDelta(t, 45, yaw, 1e-9, "heading straight from the raw x/y axes")
		assert.Equal(t, "", rows[2][7])
		assert.Equal(t, "", rows[2][10], "no heading without a magnetometer reading")
	})

	t.Run("with reference", func(t *testing.T) {
		ref := []orientation.Estimate{{Time: t0.Add(5 * time.Millisecond), Pose: orientation.Pose{Roll: 3}}}
		var buf bytes.Buffer
		require.NoError(t, WriteMerged(&buf, frames, ref))
		rows := readAll(t, buf.Bytes())
		require.Len(t, rows, 3)
		assert.Equal(t, "roll", rows[0][11])
		assert.Equal(t, "", rows[1][11], "no reference before the first frame")
		assert.Equal(t, "3", rows[2][11])
	})
}

func TestWriteFrameRate(t *testing.T) {
	r := framerate.Report{
		ExpectedHz: 100,
		Tolerance:  0.1,
		Buckets:    []framerate.Bucket{{Start: t0, Count: 100}, {Start: t0.Add(time.Second), Count: 42}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteFrameRate(&buf, r))
	rows := readAll(t, buf.Bytes())
	assert.Equal(t, [][]string{
		{"second", "count"},
		{"2024-05-01 10:00:00.000Z", "100"},
		{"2024-05-01 10:00:01.000Z", "42"},
	}, rows)
}
