package telemetry

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formcheck/formcheck/internal/sensor"
)

func TestReadCSV(t *testing.T) {
	in := "timestamp,enhanced_speed,heart_rate,cadence,device\n" +
		"2024-05-01 10:00:02,9.0,150,,edge\n" +
		"2024-05-01 10:00:00,10.0,,90,edge\n" +
		",1,1,1,x\n" +
		"2024-05-01 10:00:01,,148,91,edge\n"

	got, err := ReadCSV(strings.NewReader(in), "ride.csv", time.UTC)
	require.NoError(t, err)
	require.Len(t, got, 3, "row without a timestamp is skipped")

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.True(t, got[0].Time.Equal(base))
	assert.True(t, got[2].Time.Equal(base.Add(2*time.Second)))

	assert.InDelta(t, 36.0, got[0].SpeedKMH(), 1e-9)
	assert.True(t, math.IsNaN(got[0].HeartRate))
	_, ok := got[0].Value(ColHeartRate)
	assert.False(t, ok)
	assert.Equal(t, 90.0, got[0].Cadence)
	assert.Equal(t, "edge", got[0].Extra["device"])
	assert.True(t, math.IsNaN(got[0].Power), "absent column")
}

func TestReadCSV_SourceTimezone(t *testing.T) {
	brussels, err := time.LoadLocation("Europe/Brussels")
	require.NoError(t, err)

	got, err := ReadCSV(strings.NewReader("timestamp,enhanced_speed,heart_rate\n2024-05-01 12:00:00,,\n"), "ride.csv", brussels)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Time.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("time_of_day,power\n1,2\n"), "ride.csv", nil)
	assert.ErrorIs(t, err, sensor.ErrMissingColumn)

	_, err = ReadCSV(strings.NewReader(""), "empty.csv", nil)
	assert.ErrorIs(t, err, sensor.ErrMissingColumn)

	_, err = ReadCSV(strings.NewReader("timestamp,cadence\n2024-05-01 10:00:00,80\n"), "ride.csv", nil)
	require.ErrorIs(t, err, sensor.ErrMissingColumn, "no speed or heart rate")
	assert.Contains(t, err.Error(), ColEnhancedSpeed)

	_, err = ReadCSV(strings.NewReader("timestamp,Enhanced_Speed\n2024-05-01 10:00:00,5\n"), "ride.csv", nil)
	require.ErrorIs(t, err, sensor.ErrMissingColumn)
	assert.Contains(t, err.Error(), ColHeartRate)

	_, err = ReadCSV(strings.NewReader("timestamp,enhanced_speed,heart_rate,power\n2024-05-01 10:00:00,5,120,lots\n"), "ride.csv", nil)
	require.ErrorIs(t, err, sensor.ErrParse)
	var pe *sensor.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Line)
	assert.Equal(t, ColPower, pe.Column)
}

func TestWriteCSV(t *testing.T) {
	s := NewSample(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	s.EnhancedSpeed = 8.5
	s.Power = 210
	s.Extra = map[string]string{"zone": "2", "device": "edge"}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []Sample{s}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "timestamp,enhanced_speed,enhanced_altitude,cadence,power,heart_rate,position_lat,position_long,device,zone", lines[0])
	assert.Equal(t, "2024-05-01 10:00:00,8.5,,,210,,,,edge,2", lines[1])

	back, err := ReadCSV(&buf, "again.csv", time.UTC)
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, 210.0, back[0].Power)
}
