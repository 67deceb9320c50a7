package merge

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formcheck/formcheck/internal/sensor"
	"github.com/formcheck/formcheck/internal/testutil"
)

var t0 = testutil.Epoch

func at(ms int, x float64) sensor.Sample {
	return sensor.Sample{Time: t0.Add(time.Duration(ms) * time.Millisecond), Vector: sensor.Vector{X: x, Y: x, Z: x}}
}

func TestMerge_RatesAndCoverage(t *testing.T) {
	t.Parallel()

	acc := testutil.Stream(t0, 100, 10*time.Second, nil)
	gyro := testutil.Stream(t0, 100, 10*time.Second, nil)
	mag := testutil.Stream(t0, 10, 10*time.Second, func(sec float64) sensor.Vector {
		return sensor.Vector{X: 20 + sec, Y: -5, Z: -40}
	})

	frames := Merge(acc, gyro, mag, Options{})

	// Magnetometer coverage ends at 9.9 s, so the last nine 100 Hz rows go.
	require.Len(t, frames, len(acc)-9)
	assert.Equal(t, t0, frames[0].Time)
	assert.Equal(t, t0.Add(9900*time.Millisecond), frames[len(frames)-1].Time)

	for i, f := range frames {
		require.True(t, f.HasMag, "row %d", i)
		for _, v := range []float64{f.Acc.X, f.Acc.Y, f.Acc.Z, f.Gyro.X, f.Gyro.Y, f.Gyro.Z, f.Mag.X, f.Mag.Y, f.Mag.Z} {
			require.False(t, math.IsNaN(v), "row %d has a missing value", i)
		}
		if i > 0 {
			require.True(t, f.Time.After(frames[i-1].Time), "row %d not strictly increasing", i)
		}
	}

	// 0.35 s sits halfway between the 0.3 s and 0.4 s magnetometer samples.
	assert.InDelta(t, 20.35, frames[35].Mag.X, 1e-9)
}

func TestMerge_DropsOutsideMagCoverage(t *testing.T) {
	t.Parallel()

	acc := []sensor.Sample{at(0, 1), at(10, 1), at(20, 1), at(30, 1), at(40, 1)}
	mag := []sensor.Sample{at(10, 0), at(30, 10)}

	frames := Merge(acc, acc, mag, Options{})
	require.Len(t, frames, 3)
	assert.Equal(t, t0.Add(10*time.Millisecond), frames[0].Time)
	assert.Equal(t, t0.Add(30*time.Millisecond), frames[2].Time)
	assert.InDelta(t, 5, frames[1].Mag.X, 1e-12)
}

func TestMerge_MagOnlyRowsProduceNothing(t *testing.T) {
	t.Parallel()

	acc := []sensor.Sample{at(0, 1), at(20, 2)}
	mag := []sensor.Sample{at(0, 0), at(5, 1), at(15, 3), at(20, 4)}

	frames := Merge(acc, acc, mag, Options{})
	require.Len(t, frames, 2)
	assert.Equal(t, 0.0, frames[0].Mag.X)
	assert.Equal(t, 4.0, frames[1].Mag.X)
}

func TestMerge_InnerJoin(t *testing.T) {
	t.Parallel()

	acc := []sensor.Sample{at(0, 1), at(10, 2), at(20, 3)}
	gyro := []sensor.Sample{at(10, 20), at(20, 30), at(30, 40)}

	frames := Merge(acc, gyro, nil, Options{})
	require.Len(t, frames, 2)
	for _, f := range frames {
		assert.False(t, f.HasMag)
		assert.Equal(t, f.Acc.X*10, f.Gyro.X)
	}
}

func TestMerge_Tolerance(t *testing.T) {
	t.Parallel()

	acc := []sensor.Sample{at(0, 1), at(10, 2), at(20, 3)}
	gyro := []sensor.Sample{at(1, 10), at(12, 20), at(26, 30)}

	assert.Empty(t, Merge(acc, gyro, nil, Options{}), "exact join has no common keys")

	frames := Merge(acc, gyro, nil, Options{Tolerance: 3 * time.Millisecond})
	require.Len(t, frames, 2)
	assert.Equal(t, 10.0, frames[0].Gyro.X)
	assert.Equal(t, 20.0, frames[1].Gyro.X)
	assert.Equal(t, acc[1].Time, frames[1].Time, "frame takes the accelerometer stamp")

	// Each gyro sample pairs at most once.
	dense := []sensor.Sample{at(0, 1), at(1, 2), at(2, 3)}
	frames = Merge(dense, []sensor.Sample{at(1, 9)}, nil, Options{Tolerance: 5 * time.Millisecond})
	require.Len(t, frames, 1)
}

func TestMerge_DuplicatesAndOrder(t *testing.T) {
	t.Parallel()

	acc := []sensor.Sample{at(20, 3), at(0, 1), at(10, 2), at(10, 99)}
	gyro := []sensor.Sample{at(0, 1), at(10, 2), at(20, 3), at(20, 3)}

	frames := Merge(acc, gyro, nil, Options{})
	require.Len(t, frames, 3)
	assert.Equal(t, 2.0, frames[1].Acc.X, "duplicates collapse to the first occurrence")
	assert.Len(t, acc, 4, "inputs are not modified")
	assert.Equal(t, 3.0, acc[0].X)
}

func TestMerge_SkipsNonFinite(t *testing.T) {
	t.Parallel()

	acc := []sensor.Sample{at(0, 1), at(10, math.NaN()), at(20, 3)}
	frames := Merge(acc, acc, nil, Options{})
	require.Len(t, frames, 2)
}

func TestMerge_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Merge(nil, nil, nil, Options{}))
	assert.Empty(t, Merge([]sensor.Sample{at(0, 1)}, nil, nil, Options{}))

	// Magnetometer entirely outside the inertial window.
	acc := []sensor.Sample{at(0, 1), at(10, 1)}
	assert.Empty(t, Merge(acc, acc, []sensor.Sample{at(500, 1), at(600, 1)}, Options{}))
}

func TestRemerge_Idempotent(t *testing.T) {
	t.Parallel()

	acc := testutil.Stream(t0, 100, 3*time.Second, func(sec float64) sensor.Vector {
		return sensor.Vector{X: math.Sin(sec), Y: math.Cos(sec), Z: 1}
	})
	gyro := testutil.Stream(t0, 100, 3*time.Second, func(sec float64) sensor.Vector {
		return sensor.Vector{X: sec, Y: -sec, Z: 0.5}
	})
	mag := testutil.Stream(t0, 10, 3*time.Second, func(sec float64) sensor.Vector {
		return sensor.Vector{X: 30 * math.Cos(sec), Y: 30 * math.Sin(sec), Z: -40}
	})

	for _, m := range [][]sensor.Sample{mag, nil} {
		once := Merge(acc, gyro, m, Options{})
		require.NotEmpty(t, once)
		twice := Remerge(once, Options{})
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("Remerge changed the table (-once +twice):\n%s", diff)
		}
	}
}

func TestJoinThenAttach(t *testing.T) {
	t.Parallel()

	acc := []sensor.Sample{at(0, 1), at(10, 2), at(20, 3), at(30, 4)}
	gyro := []sensor.Sample{at(30, 40), at(0, 10), at(20, 30)}
	mag := []sensor.Sample{at(0, 0), at(40, 4)}

	joined := Join(acc, gyro, Options{})
	require.Len(t, joined, 3)
	for _, f := range joined {
		assert.False(t, f.HasMag)
	}

	got := Attach(joined, mag)
	if diff := cmp.Diff(Merge(acc, gyro, mag, Options{}), got); diff != "" {
		t.Errorf("Attach(Join) differs from Merge (-want +got):\n%s", diff)
	}
	assert.Equal(t, joined, Attach(joined, nil))
}
