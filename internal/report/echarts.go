package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/formcheck/formcheck/internal/telemetry"
)

// AssetsHost serves the echarts scripts referenced by the dashboard.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

func lineValue(v float64) opts.LineData {
	if math.IsNaN(v) {
		return opts.LineData{Value: "-"}
	}
	return opts.LineData{Value: math.Round(v*100) / 100}
}

func correlationChart(pn Panel, loc *time.Location) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    pn.Title,
			Subtitle: fmt.Sprintf("%d buckets of %s", len(pn.Result.Rows), pn.Result.Bucket),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside", Start: 0, End: 100}),
		charts.WithYAxisOpts(opts.YAxis{Name: "speed / HR"}),
	)
	line.ExtendYAxis(opts.YAxis{Name: "IQR (deg)", Min: 0, Max: IQRAxisMax, Position: "right"})

	x := make([]string, len(pn.Result.Rows))
	for i, r := range pn.Result.Rows {
		x[i] = r.Start.In(loc).Format("15:04:05")
	}
	line.SetXAxis(x)

	for _, col := range pn.Result.MeanColumns {
		if col != telemetry.ColSpeedKMH && col != telemetry.ColHeartRate {
			continue
		}
		data := make([]opts.LineData, len(pn.Result.Rows))
		for i, r := range pn.Result.Rows {
			data[i] = lineValue(r.Value(col))
		}
		line.AddSeries(col, data)
	}
	for _, col := range pn.Result.IQRColumns {
		data := make([]opts.LineData, len(pn.Result.Rows))
		for i, r := range pn.Result.Rows {
			data[i] = lineValue(r.IQR[col])
		}
		line.AddSeries(IQRColumnName(col), data, charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}))
	}
	return line
}

func frameRateChart(a Audit, loc *time.Location) *charts.Bar {
	bar := charts.NewBar()
	drops := len(a.Report.Drops())
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    a.Title + " frame rate",
			Subtitle: fmt.Sprintf("expected %.0f Hz, mean %.1f, %d seconds below threshold", a.Report.ExpectedHz, a.Report.Mean(), drops),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside", Start: 0, End: 100}),
	)
	x := make([]string, len(a.Report.Buckets))
	y := make([]opts.BarData, len(a.Report.Buckets))
	th := a.Report.Threshold()
	for i, b := range a.Report.Buckets {
		x[i] = b.Start.In(loc).Format("15:04:05")
		d := opts.BarData{Value: b.Count}
		if th > 0 && float64(b.Count) < th {
			d.ItemStyle = &opts.ItemStyle{Color: "#d62728"}
		}
		y[i] = d
	}
	bar.SetXAxis(x).AddSeries("samples", y)
	return bar
}

// WriteDashboard renders every correlation panel and frame-rate audit into
// one HTML page.
func WriteDashboard(w io.Writer, title string, panels []Panel, audits []Audit, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	page := components.NewPage()
	page.SetPageTitle(title)
	page.SetAssetsHost(AssetsHost)
	for _, pn := range panels {
		if pn.Result.NoOverlap || len(pn.Result.Rows) == 0 {
			continue
		}
		page.AddCharts(correlationChart(pn, loc))
	}
	for _, a := range audits {
		if len(a.Report.Buckets) == 0 {
			continue
		}
		page.AddCharts(frameRateChart(a, loc))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	return nil
}
