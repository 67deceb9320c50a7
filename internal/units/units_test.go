package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertSpeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		mps   float64
		units string
		want  float64
	}{
		{"kmph", 10, KMPH, 36},
		{"kph alias", 10, KPH, 36},
		{"mps passthrough", 10, MPS, 10},
		{"unknown falls back to mps", 10, "furlongs", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ConvertSpeed(tt.mps, tt.units), 1e-9)
		})
	}
}

func TestConvertSpeed_NaNPropagates(t *testing.T) {
	assert.True(t, math.IsNaN(ConvertSpeed(math.NaN(), KMPH)))
}
