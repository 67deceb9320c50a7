package correlate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIQR(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"four", []float64{4, 1, 3, 2}, 1.5},
		{"five", []float64{1, 2, 3, 4, 5}, 2},
		{"single", []float64{7}, 0},
		{"nan ignored", []float64{1, math.NaN(), 2, 3, 4}, 1.5},
		{"spike barely moves it", []float64{1, 1, 1, 1, 1, 1, 1, 90}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, IQR(tc.values), 1e-9)
		})
	}
	assert.True(t, math.IsNaN(IQR(nil)))
	assert.True(t, math.IsNaN(IQR([]float64{math.NaN()})))
}

func TestQuantile(t *testing.T) {
	x := []float64{10, 20, 30, 40}
	assert.InDelta(t, 10, Quantile(x, 0), 1e-9)
	assert.InDelta(t, 25, Quantile(x, 0.5), 1e-9)
	assert.InDelta(t, 40, Quantile(x, 1), 1e-9)
	assert.InDelta(t, 17.5, Quantile(x, 0.25), 1e-9)
	assert.Equal(t, []float64{10, 20, 30, 40}, x)
}

func TestMean(t *testing.T) {
	assert.InDelta(t, 2, Mean([]float64{1, 2, 3, math.NaN()}), 1e-12)
	assert.True(t, math.IsNaN(Mean(nil)))
}

func TestRollingIQR(t *testing.T) {
	got := RollingIQR([]float64{1, 2, 3, 4, 100}, 4)
	assert.Len(t, got, 5)
	for i := 0; i < 3; i++ {
		assert.True(t, math.IsNaN(got[i]), "warm-up %d", i)
	}
	assert.InDelta(t, 1.5, got[3], 1e-9)
	assert.InDelta(t, 25.25, got[4], 1e-9)

	for _, v := range RollingIQR([]float64{1, 2}, 0) {
		assert.True(t, math.IsNaN(v))
	}
}
