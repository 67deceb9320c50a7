package units

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTimezoneValid(t *testing.T) {
	assert.True(t, IsTimezoneValid("UTC"))
	assert.True(t, IsTimezoneValid("Europe/Brussels"))
	assert.False(t, IsTimezoneValid(""))
	assert.False(t, IsTimezoneValid("Mars/Olympus_Mons"))
}

func TestConvertTime(t *testing.T) {
	utc := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	got, err := ConvertTime(utc, "Europe/Brussels")
	require.NoError(t, err)
	assert.True(t, got.Equal(utc), "conversion must not move the instant")
	assert.Equal(t, 12, got.Hour(), "CEST is UTC+2 in May")

	_, err = ConvertTime(utc, "Invalid/Zone")
	assert.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	brussels, err := LoadLocation("Europe/Brussels")
	require.NoError(t, err)
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		loc  *time.Location
		want time.Time
	}{
		{"epoch millis", "1714557600000", brussels, want},
		{"fractional millis", "1714557600000.5", time.UTC, want.Add(500 * time.Microsecond)},
		{"rfc3339", "2024-05-01T12:00:00+02:00", time.UTC, want},
		{"space with offset", "2024-05-01 10:00:00+00:00", brussels, want},
		{"naive utc export", "2024-05-01 10:00:00", time.UTC, want},
		{"naive local capture", "2024-05-01 12:00:00", brussels, want},
		{"naive with fraction", "2024-05-01 10:00:00.250", time.UTC, want.Add(250 * time.Millisecond)},
		{"nil location means utc", "2024-05-01 10:00:00", nil, want},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.raw, tt.loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, raw := range []string{"", "yesterday", "NaN", "2024-13-45 99:00:00"} {
		_, err := ParseTimestamp(raw, time.UTC)
		assert.True(t, errors.Is(err, ErrTimestamp), "raw %q: %v", raw, err)
	}
}
