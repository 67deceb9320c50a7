// Package framerate counts samples per second to expose capture dropouts.
package framerate

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultTolerance is the fraction of the expected rate a second may fall
// short by before it counts as a drop.
const DefaultTolerance = 0.1

// Bucket is one second of capture.
type Bucket struct {
	Start time.Time
	Count int
}

// Report is the per-second sample count of one stream.
type Report struct {
	Buckets    []Bucket
	ExpectedHz float64
	Tolerance  float64
}

// Options tunes an audit.
type Options struct {
	// From and Until widen the report to the capture window, so seconds at
	// either end with no samples show as zeros. Until is exclusive.
	From      time.Time
	Until     time.Time
	Tolerance float64
}

// Audit buckets times into 1-second windows from the earliest sample's
// second to the latest. times need not be sorted.
func Audit(times []time.Time, expectedHz float64) Report {
	return AuditWithOptions(times, expectedHz, Options{})
}

// AuditWithOptions is Audit with an explicit horizon and tolerance.
func AuditWithOptions(times []time.Time, expectedHz float64, opts Options) Report {
	r := Report{ExpectedHz: expectedHz, Tolerance: opts.Tolerance}
	if r.Tolerance <= 0 {
		r.Tolerance = DefaultTolerance
	}

	var lo, hi time.Time
	for i, t := range times {
		if i == 0 || t.Before(lo) {
			lo = t
		}
		if i == 0 || t.After(hi) {
			hi = t
		}
	}
	if !opts.From.IsZero() && (lo.IsZero() || opts.From.Before(lo)) {
		lo = opts.From
	}
	if lo.IsZero() {
		return r
	}
	first := lo.Truncate(time.Second)
	n := 0
	if !hi.IsZero() {
		n = int(hi.Truncate(time.Second).Sub(first)/time.Second) + 1
	}
	if !opts.Until.IsZero() {
		if extra := int(opts.Until.Sub(first) / time.Second); extra > n {
			n = extra
		}
	}
	if n <= 0 {
		return r
	}

	r.Buckets = make([]Bucket, n)
	for i := range r.Buckets {
		r.Buckets[i].Start = first.Add(time.Duration(i) * time.Second)
	}
	for _, t := range times {
		i := int(t.Truncate(time.Second).Sub(first) / time.Second)
		if i >= 0 && i < n {
			r.Buckets[i].Count++
		}
	}
	return r
}

// Counts returns the per-second counts in order.
func (r Report) Counts() []int {
	out := make([]int, len(r.Buckets))
	for i, b := range r.Buckets {
		out[i] = b.Count
	}
	return out
}

// Threshold is the count below which a second is reported as a drop. It is
// zero when no expected rate is known.
func (r Report) Threshold() float64 {
	if r.ExpectedHz <= 0 {
		return 0
	}
	return r.ExpectedHz * (1 - r.Tolerance)
}

// Drops lists the seconds whose count falls below Threshold.
func (r Report) Drops() []Bucket {
	th := r.Threshold()
	if th <= 0 {
		return nil
	}
	var out []Bucket
	for _, b := range r.Buckets {
		if float64(b.Count) < th {
			out = append(out, b)
		}
	}
	return out
}

// Mean is the average samples per second over the report.
func (r Report) Mean() float64 {
	if len(r.Buckets) == 0 {
		return 0
	}
	x := make([]float64, len(r.Buckets))
	for i, b := range r.Buckets {
		x[i] = float64(b.Count)
	}
	return stat.Mean(x, nil)
}

// Total is the number of samples audited.
func (r Report) Total() int {
	var n int
	for _, b := range r.Buckets {
		n += b.Count
	}
	return n
}
