package pipeline

import (
	"time"

	"github.com/formcheck/formcheck/internal/framerate"
	"github.com/formcheck/formcheck/internal/merge"
	"github.com/formcheck/formcheck/internal/sensor"
)

// auditInertial counts the joined accelerometer/gyroscope frames per second
// over the whole capture window. A second in which either sensor fell
// silent has no joined frames, and the window runs from the earliest raw
// sample to the end of the second holding the latest one, so silent
// seconds at either end are reported as zeros.
func (a *Analyzer) auditInertial(acc, gyro []sensor.Sample, joined []merge.Frame) framerate.Report {
	times := make([]time.Time, len(joined))
	for i, f := range joined {
		times[i] = f.Time
	}
	opts := framerate.Options{Tolerance: a.settings.DropTolerance}
	if from, until, ok := captureWindow(acc, gyro); ok {
		opts.From = from
		opts.Until = until.Truncate(time.Second).Add(time.Second)
	}
	return framerate.AuditWithOptions(times, a.settings.ExpectedHz, opts)
}

func captureWindow(streams ...[]sensor.Sample) (from, until time.Time, ok bool) {
	for _, s := range streams {
		for _, x := range s {
			if !ok || x.Time.Before(from) {
				from = x.Time
			}
			if !ok || x.Time.After(until) {
				until = x.Time
			}
			ok = true
		}
	}
	return from, until, ok
}

// magnetometerShortfall reports the observed magnetometer rate and whether
// it falls more than tol below expectedHz. It never reports a shortfall
// when no rate is configured or fewer than two samples exist.
func magnetometerShortfall(mag []sensor.Sample, expectedHz, tol float64) (float64, bool) {
	if expectedHz <= 0 || len(mag) < 2 {
		return 0, false
	}
	from, until, _ := captureWindow(mag)
	span := until.Sub(from).Seconds()
	if span <= 0 {
		return 0, false
	}
	hz := float64(len(mag)-1) / span
	return hz, hz < expectedHz*(1-tol)
}
