// Package report renders pipeline outputs: aligned CSV tables, PNG figures
// and an interactive HTML dashboard.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/formcheck/formcheck/internal/correlate"
	"github.com/formcheck/formcheck/internal/framerate"
	"github.com/formcheck/formcheck/internal/merge"
	"github.com/formcheck/formcheck/internal/orientation"
	"github.com/formcheck/formcheck/internal/units"
)

// Output file names inside an analysis folder.
const (
	ComparisonPNG = "imu_telemetry_comparison.png"
	FrameRatePNG  = "frame_rate_analysis.png"
	DashboardHTML = "report.html"
)

const timeLayout = "2006-01-02 15:04:05.000Z07:00"

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	if v == 0 {
		v = 0 // no "-0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// IQRColumnName is the CSV header for an orientation dispersion column.
func IQRColumnName(angle string) string { return angle + "_iqr" }

// WriteCorrelation writes the aligned table: one row per bucket.
func WriteCorrelation(w io.Writer, res correlate.Result) error {
	cw := csv.NewWriter(w)
	head := []string{"bucket_start"}
	for _, c := range res.IQRColumns {
		head = append(head, IQRColumnName(c))
	}
	head = append(head, res.MeanColumns...)
	head = append(head, "imu_samples", "telemetry_samples")
	if err := cw.Write(head); err != nil {
		return fmt.Errorf("write correlation header: %w", err)
	}
	for _, r := range res.Rows {
		row := []string{r.Start.Format(timeLayout)}
		for _, c := range res.IQRColumns {
			row = append(row, formatFloat(r.IQR[c]))
		}
		for _, c := range res.MeanColumns {
			row = append(row, formatFloat(r.Mean[c]))
		}
		row = append(row, strconv.Itoa(r.Samples), strconv.Itoa(r.TelemetrySamples))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write correlation row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOrientation writes estimates as epoch,roll,pitch,yaw with epoch in
// milliseconds.
func WriteOrientation(w io.Writer, est []orientation.Estimate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"epoch", "roll", "pitch", "yaw"}); err != nil {
		return fmt.Errorf("write orientation header: %w", err)
	}
	for _, e := range est {
		row := []string{
			strconv.FormatInt(e.Time.UnixMilli(), 10),
			formatFloat(e.Roll), formatFloat(e.Pitch), formatFloat(e.Yaw),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write orientation row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadOrientation parses a WriteOrientation table.
func ReadOrientation(r io.Reader) ([]orientation.Estimate, error) {
	cr := csv.NewReader(r)
	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read orientation header: %w", err)
	}
	if len(head) < 4 || head[0] != "epoch" {
		return nil, fmt.Errorf("unexpected orientation header %v", head)
	}
	var out []orientation.Estimate
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ts, err := units.ParseTimestamp(row[0], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var v [3]float64
		for i := range v {
			if v[i], err = strconv.ParseFloat(row[i+1], 64); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		out = append(out, orientation.Estimate{Time: ts, Pose: orientation.Pose{Roll: v[0], Pitch: v[1], Yaw: v[2]}})
	}
}

// WriteMerged writes merged frames with an optional reference orientation
// from the device's onboard fusion, matched by nearest preceding sample.
func WriteMerged(w io.Writer, frames []merge.Frame, est []orientation.Estimate) error {
	cw := csv.NewWriter(w)
	head := []string{"epoch", "acc_x", "acc_y", "acc_z", "gyro_x", "gyro_y", "gyro_z", "mag_x", "mag_y", "mag_z", "yaw_uncompensated"}
	if est != nil {
		head = append(head, "roll", "pitch", "yaw")
	}
	if err := cw.Write(head); err != nil {
		return fmt.Errorf("write merged header: %w", err)
	}
	j := 0
	for i, f := range frames {
		row := []string{
			strconv.FormatInt(f.Time.UnixMilli(), 10),
			formatFloat(f.Acc.X), formatFloat(f.Acc.Y), formatFloat(f.Acc.Z),
			formatFloat(f.Gyro.X), formatFloat(f.Gyro.Y), formatFloat(f.Gyro.Z),
		}
		if f.HasMag {
			row = append(row, formatFloat(f.Mag.X), formatFloat(f.Mag.Y), formatFloat(f.Mag.Z),
				formatFloat(orientation.UncompensatedYaw(f.Mag)))
		} else {
			row = append(row, "", "", "", "")
		}
		if est != nil {
			for j+1 < len(est) && !est[j+1].Time.After(f.Time) {
				j++
			}
			if len(est) > 0 && !est[j].Time.After(f.Time) {
				row = append(row, formatFloat(est[j].Roll), formatFloat(est[j].Pitch), formatFloat(est[j].Yaw))
			} else {
				row = append(row, "", "", "")
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write merged row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFrameRate writes second,count pairs.
func WriteFrameRate(w io.Writer, r framerate.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"second", "count"}); err != nil {
		return fmt.Errorf("write frame rate header: %w", err)
	}
	for _, b := range r.Buckets {
		if err := cw.Write([]string{b.Start.Format(timeLayout), strconv.Itoa(b.Count)}); err != nil {
			return fmt.Errorf("write frame rate row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
