package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureSettings_Validate(t *testing.T) {
	t.Parallel()

	ok := CaptureSettings{
		Accelerometer: StreamSettings{ODR: 100, Range: 4},
		Gyroscope:     StreamSettings{ODR: 100, Range: 2000},
		Magnetometer:  StreamSettings{Preset: "regular"},
	}
	assert.NoError(t, ok.Validate())
	assert.NoError(t, CaptureSettings{}.Validate(), "unspecified values pass")

	bad := CaptureSettings{
		Accelerometer: StreamSettings{ODR: 123},
		Gyroscope:     StreamSettings{Range: 3000},
		Magnetometer:  StreamSettings{Preset: "turbo"},
	}
	err := bad.Validate()
	assert.ErrorContains(t, err, "accelerometer odr 123")
	assert.ErrorContains(t, err, "gyroscope range 3000")
	assert.ErrorContains(t, err, `magnetometer preset "turbo"`)
}

func TestCaptureSettings_Rates(t *testing.T) {
	t.Parallel()

	off := false
	tests := []struct {
		name string
		c    CaptureSettings
		want float64
	}{
		{"slower stream wins", CaptureSettings{
			Accelerometer: StreamSettings{ODR: 200},
			Gyroscope:     StreamSettings{ODR: 100},
		}, 100},
		{"disabled stream ignored", CaptureSettings{
			Accelerometer: StreamSettings{ODR: 50, Enabled: &off},
			Gyroscope:     StreamSettings{ODR: 400},
		}, 400},
		{"unknown", CaptureSettings{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.ExpectedRateHz())
		})
	}

	assert.Equal(t, 20.0, CaptureSettings{Magnetometer: StreamSettings{Preset: "high_accuracy"}}.MagnetometerRateHz())
	assert.Equal(t, 25.0, CaptureSettings{Magnetometer: StreamSettings{ODR: 25}}.MagnetometerRateHz())
}
