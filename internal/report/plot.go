package report

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/formcheck/formcheck/internal/correlate"
	"github.com/formcheck/formcheck/internal/framerate"
	"github.com/formcheck/formcheck/internal/telemetry"
)

// IQRAxisMax caps the dispersion axis so sessions stay comparable.
const IQRAxisMax = 30.0

// Panel is one session's correlation inside a comparison figure.
type Panel struct {
	Title  string
	Result correlate.Result
}

// Audit is one session's frame-rate report.
type Audit struct {
	Title  string
	Report framerate.Report
}

var (
	speedColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	hrColor    = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

func timeTicks(loc *time.Location) plot.TimeTicks {
	if loc == nil {
		loc = time.UTC
	}
	return plot.TimeTicks{
		Format: "15:04:05",
		Time:   func(t float64) time.Time { return time.Unix(0, int64(t*1e9)).In(loc) },
	}
}

func unixSeconds(t time.Time) float64 { return float64(t.UnixNano()) / 1e9 }

func series(res correlate.Result, value func(correlate.Row) float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(res.Rows))
	for _, r := range res.Rows {
		v := value(r)
		if math.IsNaN(v) {
			continue
		}
		pts = append(pts, plotter.XY{X: unixSeconds(r.Start), Y: v})
	}
	return pts
}

func addLine(p *plot.Plot, label string, pts plotter.XYs, c color.Color) error {
	if len(pts) == 0 {
		return nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func legendTopRight(p *plot.Plot) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
}

// telemetryPlot draws speed and heart rate for a panel.
func telemetryPlot(pn Panel, loc *time.Location) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = pn.Title
	p.X.Tick.Marker = timeTicks(loc)
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Speed (km/h) / HR (bpm)"
	for _, s := range []struct {
		col   string
		label string
		c     color.Color
	}{
		{telemetry.ColSpeedKMH, "speed (km/h)", speedColor},
		{telemetry.ColHeartRate, "heart rate (bpm)", hrColor},
	} {
		col := s.col
		pts := series(pn.Result, func(r correlate.Row) float64 { return r.Value(col) })
		if err := addLine(p, s.label, pts, s.c); err != nil {
			return nil, fmt.Errorf("%s: %w", s.label, err)
		}
	}
	legendTopRight(p)
	return p, nil
}

// dispersionPlot draws the IQR columns of a panel on a fixed 0-30 axis.
func dispersionPlot(pn Panel, loc *time.Location) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "IMU Data i start"
	p.X.Tick.Marker = timeTicks(loc)
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "IQR (deg)"
	p.Y.Min, p.Y.Max = 0, IQRAxisMax
	for i, c := range pn.Result.IQRColumns {
		col := c
		pts := series(pn.Result, func(r correlate.Row) float64 { return math.Min(r.IQR[col], IQRAxisMax) })
		if err := addLine(p, IQRColumnName(col), pts, plotutil.Color(i+2)); err != nil {
			return nil, fmt.Errorf("%s: %w", col, err)
		}
	}
	legendTopRight(p)
	return p, nil
}

// WriteComparisonPNG renders one row per session: telemetry on the left,
// orientation dispersion on the right.
func WriteComparisonPNG(w io.Writer, panels []Panel, loc *time.Location) error {
	if len(panels) == 0 {
		return fmt.Errorf("no panels to plot")
	}
	grid := make([][]*plot.Plot, len(panels))
	for i, pn := range panels {
		left, err := telemetryPlot(pn, loc)
		if err != nil {
			return err
		}
		right, err := dispersionPlot(pn, loc)
		if err != nil {
			return err
		}
		grid[i] = []*plot.Plot{left, right}
	}
	return drawGrid(w, grid, 16*vg.Inch, vg.Length(len(panels))*4*vg.Inch)
}

// WriteFrameRatePNG renders per-second sample counts, one row per session,
// with the drop threshold as a dashed line.
func WriteFrameRatePNG(w io.Writer, audits []Audit, loc *time.Location) error {
	if len(audits) == 0 {
		return fmt.Errorf("no audits to plot")
	}
	grid := make([][]*plot.Plot, len(audits))
	for i, a := range audits {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s: samples per second (mean %.1f)", a.Title, a.Report.Mean())
		p.X.Tick.Marker = timeTicks(loc)
		p.X.Label.Text = "Time"
		p.Y.Label.Text = "Samples"
		p.Y.Min = 0

		pts := make(plotter.XYs, len(a.Report.Buckets))
		for j, b := range a.Report.Buckets {
			pts[j] = plotter.XY{X: unixSeconds(b.Start), Y: float64(b.Count)}
		}
		if err := addLine(p, "count", pts, speedColor); err != nil {
			return err
		}
		if th := a.Report.Threshold(); th > 0 && len(pts) > 0 {
			ref := plotter.XYs{{X: pts[0].X, Y: th}, {X: pts[len(pts)-1].X, Y: th}}
			line, err := plotter.NewLine(ref)
			if err != nil {
				return err
			}
			line.Color = hrColor
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			p.Add(line)
			p.Legend.Add("drop threshold", line)
		}
		legendTopRight(p)
		grid[i] = []*plot.Plot{p}
	}
	return drawGrid(w, grid, 14*vg.Inch, vg.Length(len(audits))*3*vg.Inch)
}

func drawGrid(w io.Writer, grid [][]*plot.Plot, width, height vg.Length) error {
	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      len(grid),
		Cols:      len(grid[0]),
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 6,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	canvases := plot.Align(grid, tiles, dc)
	for i := range grid {
		for j, p := range grid[i] {
			p.Draw(canvases[i][j])
		}
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
