// Package correlate aligns orientation estimates with cycling telemetry on a
// common cadence.
package correlate

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/formcheck/formcheck/internal/monitoring"
	"github.com/formcheck/formcheck/internal/orientation"
	"github.com/formcheck/formcheck/internal/telemetry"
)

// DefaultBucket is the aggregation cadence.
const DefaultBucket = 5 * time.Second

// DefaultIQRColumns are the orientation angles tracked for dispersion.
var DefaultIQRColumns = []string{"roll", "pitch"}

// Window is a closed time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// In expresses the window in loc.
func (w Window) In(loc *time.Location) Window {
	return Window{Start: w.Start.In(loc), End: w.End.In(loc)}
}

// Options controls bucketing and which columns are reduced.
type Options struct {
	Bucket      time.Duration
	IQRColumns  []string
	MeanColumns []string
	// Location is the reference timezone that row start times are reported in.
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.Bucket <= 0 {
		o.Bucket = DefaultBucket
	}
	if len(o.IQRColumns) == 0 {
		o.IQRColumns = DefaultIQRColumns
	}
	if len(o.MeanColumns) == 0 {
		o.MeanColumns = telemetry.MeanColumns
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// Row is one bucket of the aligned table.
type Row struct {
	Start            time.Time
	IQR              map[string]float64
	Mean             map[string]float64
	Samples          int
	TelemetrySamples int
}

// Result is the aligned table for one orientation/telemetry pair.
type Result struct {
	Window      Window
	NoOverlap   bool
	Bucket      time.Duration
	IQRColumns  []string
	MeanColumns []string // telemetry columns that carried data in the window
	Rows        []Row
}

// ErrUnknownColumn is returned for an IQR column that is not an orientation
// angle.
var ErrUnknownColumn = errors.New("unknown orientation column")

// Overlap intersects the time ranges of both series. ok is false when either
// is empty or they do not meet. Both inputs must be sorted by time.
func Overlap(orient []orientation.Estimate, tel []telemetry.Sample) (Window, bool) {
	if len(orient) == 0 || len(tel) == 0 {
		return Window{}, false
	}
	start := latest(orient[0].Time, tel[0].Time)
	end := earliest(orient[len(orient)-1].Time, tel[len(tel)-1].Time)
	if end.Before(start) {
		return Window{}, false
	}
	return Window{Start: start, End: end}, true
}

type bucket struct {
	start  time.Time
	angles map[string][]float64
	tel    map[string][]float64
	nOri   int
	nTel   int
}

// Correlate buckets both series inside their overlap. Orientation columns
// reduce to IQR, telemetry columns to mean. Only buckets holding samples from
// both sides are emitted. Non-overlapping input yields NoOverlap, not an
// error.
func Correlate(orient []orientation.Estimate, tel []telemetry.Sample, opts Options) (Result, error) {
	opts = opts.withDefaults()
	for _, c := range opts.IQRColumns {
		if _, ok := (orientation.Pose{}).Angle(c); !ok {
			return Result{}, fmt.Errorf("%w: %q", ErrUnknownColumn, c)
		}
	}
	res := Result{Bucket: opts.Bucket, IQRColumns: opts.IQRColumns}

	w, ok := Overlap(orient, tel)
	if !ok {
		res.NoOverlap = true
		monitoring.Logf("no overlap between orientation and telemetry series")
		return res, nil
	}
	res.Window = w.In(opts.Location)

	buckets := make(map[int64]*bucket)
	var order []int64
	get := func(t time.Time) *bucket {
		key := bucketKey(t, opts.Bucket)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				start:  time.Unix(0, key*int64(opts.Bucket)).In(opts.Location),
				angles: make(map[string][]float64),
				tel:    make(map[string][]float64),
			}
			buckets[key] = b
			order = append(order, key)
		}
		return b
	}

	for _, e := range orient {
		if !w.Contains(e.Time) {
			continue
		}
		b := get(e.Time)
		b.nOri++
		for _, c := range opts.IQRColumns {
			v, _ := e.Angle(c)
			b.angles[c] = append(b.angles[c], v)
		}
	}

	present := make(map[string]bool)
	for _, s := range tel {
		if !w.Contains(s.Time) {
			continue
		}
		b := get(s.Time)
		b.nTel++
		for _, c := range opts.MeanColumns {
			if v, ok := s.Value(c); ok {
				b.tel[c] = append(b.tel[c], v)
				present[c] = true
			}
		}
	}
	for _, c := range opts.MeanColumns {
		if present[c] {
			res.MeanColumns = append(res.MeanColumns, c)
		}
	}

	slices.Sort(order)
	for _, key := range order {
		b := buckets[key]
		if b.nOri == 0 || b.nTel == 0 {
			continue
		}
		row := Row{
			Start:            b.start,
			IQR:              make(map[string]float64, len(opts.IQRColumns)),
			Mean:             make(map[string]float64, len(res.MeanColumns)),
			Samples:          b.nOri,
			TelemetrySamples: b.nTel,
		}
		for _, c := range opts.IQRColumns {
			row.IQR[c] = IQR(b.angles[c])
		}
		for _, c := range res.MeanColumns {
			row.Mean[c] = Mean(b.tel[c])
		}
		res.Rows = append(res.Rows, row)
	}
	if len(res.Rows) == 0 {
		res.NoOverlap = true
	}
	return res, nil
}

// Value returns a named column of the row, IQR columns first.
func (r Row) Value(column string) float64 {
	if v, ok := r.IQR[column]; ok {
		return v
	}
	if v, ok := r.Mean[column]; ok {
		return v
	}
	return math.NaN()
}

// bucketKey floors t onto the epoch-aligned grid.
func bucketKey(t time.Time, width time.Duration) int64 {
	ns := t.UnixNano()
	k := ns / int64(width)
	if ns%int64(width) < 0 {
		k--
	}
	return k
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
