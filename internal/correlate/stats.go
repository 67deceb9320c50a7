package correlate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Quantile returns the p-quantile of values using linear interpolation
// between closest ranks (numpy/pandas default). NaNs are ignored; an empty
// input yields NaN. values is not modified.
func Quantile(values []float64, p float64) float64 {
	x := finiteSorted(values)
	return quantileSorted(x, p)
}

// IQR is the interquartile range Q3 - Q1 of values, ignoring NaNs.
func IQR(values []float64) float64 {
	x := finiteSorted(values)
	if len(x) == 0 {
		return math.NaN()
	}
	return quantileSorted(x, 0.75) - quantileSorted(x, 0.25)
}

// Mean is the arithmetic mean of values, ignoring NaNs.
func Mean(values []float64) float64 {
	x := finiteSorted(values)
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// RollingIQR computes a trailing-window IQR: out[i] covers
// values[max(0,i-window+1) : i+1]. Windows shorter than window (the warm-up)
// yield NaN, as does window < 1.
func RollingIQR(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		if window < 1 || i+1 < window {
			out[i] = math.NaN()
			continue
		}
		out[i] = IQR(values[i+1-window : i+1])
	}
	return out
}

func quantileSorted(x []float64, p float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return math.NaN()
	}
	// gonum's LinInterp places the k-th order statistic at k/n; shifting p
	// reproduces the (n-1)p+1 rank used by numpy's "linear" method.
	q := ((n-1)*p + 1) / n
	return stat.Quantile(math.Min(math.Max(q, 0), 1), stat.LinInterp, x, nil)
}

func finiteSorted(values []float64) []float64 {
	x := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			x = append(x, v)
		}
	}
	sort.Float64s(x)
	return x
}
