package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/formcheck/formcheck/internal/correlate"
	"github.com/formcheck/formcheck/internal/db"
	"github.com/formcheck/formcheck/internal/framerate"
	"github.com/formcheck/formcheck/internal/fsutil"
	"github.com/formcheck/formcheck/internal/merge"
	"github.com/formcheck/formcheck/internal/monitoring"
	"github.com/formcheck/formcheck/internal/orientation"
	"github.com/formcheck/formcheck/internal/report"
	"github.com/formcheck/formcheck/internal/sensor"
	"github.com/formcheck/formcheck/internal/telemetry"
)

// Per-session output files.
const (
	CorrelationCSV = "correlation.csv"
	OrientationCSV = "orientation.csv"
	FrameRateCSV   = "frame_rate.csv"
)

// Catalogue records what a run did. *db.DB implements it.
type Catalogue interface {
	UpsertSession(s sensor.Session) error
	UpsertTelemetryFile(f telemetry.File) error
	StartRun(kind string, settings any) (db.Run, error)
	FinishRun(id, status, summary string) error
	RecordMatch(m db.MatchRecord) error
	RecordAudit(sessionDir string, r framerate.Report) error
}

// Analyzer processes capture sessions against telemetry exports.
type Analyzer struct {
	fs        fsutil.FileSystem
	settings  Settings
	catalogue Catalogue
}

// NewAnalyzer returns an Analyzer over fsys. cat may be nil, in which case
// nothing is recorded.
func NewAnalyzer(fsys fsutil.FileSystem, settings Settings, cat Catalogue) *Analyzer {
	if settings.Workers <= 0 {
		settings.Workers = 1
	}
	return &Analyzer{fs: fsys, settings: settings, catalogue: cat}
}

// SessionResult is the outcome of one session. Err is set when the session
// could not be processed; the other fields are then partial.
type SessionResult struct {
	Session   sensor.Session
	OutputDir string
	Frames    int
	Audit     framerate.Report
	Result    correlate.Result
	Err       error
}

// FileResult groups the sessions analysed against one telemetry export.
type FileResult struct {
	File      telemetry.File
	OutputDir string
	Sessions  []SessionResult
}

// Summary is the outcome of Analyze.
type Summary struct {
	RunID string
	Files []FileResult
}

// Failed counts sessions that could not be processed.
func (s Summary) Failed() int {
	n := 0
	for _, f := range s.Files {
		for _, r := range f.Sessions {
			if r.Err != nil {
				n++
			}
		}
	}
	return n
}

// Sessions counts processed sessions, failed or not.
func (s Summary) Sessions() int {
	n := 0
	for _, f := range s.Files {
		n += len(f.Sessions)
	}
	return n
}

// Inputs locates the data an analysis reads and writes.
type Inputs struct {
	TelemetryDir string
	CaptureDir   string
	OutputDir    string
}

type telemetryExport struct {
	file    telemetry.File
	samples []telemetry.Sample
}

// Analyze catalogues the telemetry exports and capture sessions, matches
// them and analyses every match. Unreadable inputs and failing sessions are
// logged and skipped.
func (a *Analyzer) Analyze(ctx context.Context, in Inputs) (Summary, error) {
	exports, err := a.loadTelemetry(in.TelemetryDir)
	if err != nil {
		return Summary{}, err
	}
	sessions, err := sensor.DiscoverSessions(a.fs, in.CaptureDir, a.settings.Capture)
	if err != nil {
		return Summary{}, err
	}
	for _, s := range sessions {
		a.record("session", a.catalogueSession(s))
	}

	files := make([]telemetry.File, len(exports))
	byPath := make(map[string]telemetryExport, len(exports))
	for i, e := range exports {
		files[i] = e.file
		byPath[e.file.Path] = e
	}
	matches := correlate.MatchSessions(files, sessions)
	monitoring.Logf("%d telemetry files, %d sessions, %d matches", len(files), len(sessions), len(matches))

	var sum Summary
	if a.catalogue != nil {
		run, err := a.catalogue.StartRun("analyze", a.settings.describe())
		if err != nil {
			return Summary{}, err
		}
		sum.RunID = run.ID
	}

	grouped := make(map[string][]sensor.Session)
	var order []string
	for _, m := range matches {
		p := m.Telemetry.Path
		if _, seen := grouped[p]; !seen {
			order = append(order, p)
		}
		grouped[p] = append(grouped[p], m.Session)
	}

	var runErr error
	for _, p := range order {
		e := byPath[p]
		fr, err := a.AnalyzeFile(ctx, e.file, e.samples, grouped[p], in.OutputDir, sum.RunID)
		sum.Files = append(sum.Files, fr)
		if err != nil {
			runErr = err
			break
		}
	}

	if a.catalogue != nil {
		status := db.RunSucceeded
		if runErr != nil {
			status = db.RunFailed
		}
		desc := fmt.Sprintf("%d files, %d sessions, %d failed", len(sum.Files), sum.Sessions(), sum.Failed())
		a.record("run", a.catalogue.FinishRun(sum.RunID, status, desc))
	}
	return sum, runErr
}

func (a *Analyzer) loadTelemetry(dir string) ([]telemetryExport, error) {
	paths, err := telemetry.DiscoverFiles(a.fs, dir)
	if err != nil {
		return nil, err
	}
	var out []telemetryExport
	for _, p := range paths {
		f, samples, err := telemetry.LoadFile(a.fs, p, a.settings.Source)
		if err != nil {
			monitoring.Warnf("skipping telemetry %s: %v", p, err)
			continue
		}
		if a.catalogue != nil {
			a.record("telemetry file", a.catalogue.UpsertTelemetryFile(f))
		}
		out = append(out, telemetryExport{file: f, samples: samples})
	}
	return out, nil
}

func (a *Analyzer) catalogueSession(s sensor.Session) error {
	if a.catalogue == nil {
		return nil
	}
	return a.catalogue.UpsertSession(s)
}

// record logs catalogue failures; the analysis itself does not depend on
// the catalogue.
func (a *Analyzer) record(what string, err error) {
	if err != nil {
		monitoring.Warnf("catalogue %s: %v", what, err)
	}
}

// AnalyzeFile processes sessions against one telemetry export. Every
// session gets its own pre-created folder under root/<file name>; sessions
// run concurrently up to the configured worker count. The combined figures
// and dashboard are written once all sessions are done. The returned error
// is only set when ctx is cancelled or the output folders cannot be made.
func (a *Analyzer) AnalyzeFile(ctx context.Context, file telemetry.File, tel []telemetry.Sample, sessions []sensor.Session, root, runID string) (FileResult, error) {
	fr := FileResult{File: file, OutputDir: filepath.Join(root, file.Name)}
	sessions = append([]sensor.Session(nil), sessions...)
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].First.Before(sessions[j].First) })

	fr.Sessions = make([]SessionResult, len(sessions))
	for i, s := range sessions {
		dir := filepath.Join(fr.OutputDir, s.Name)
		if err := a.fs.MkdirAll(dir, 0o755); err != nil {
			return fr, fmt.Errorf("create output folder: %w", err)
		}
		fr.Sessions[i] = SessionResult{Session: s, OutputDir: dir}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.settings.Workers)
	for i := range fr.Sessions {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a.processSession(&fr.Sessions[i], tel)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fr, err
	}

	for _, r := range fr.Sessions {
		a.recordSession(runID, file, r)
	}
	a.writeFigures(fr)
	return fr, nil
}

func (a *Analyzer) processSession(r *SessionResult, tel []telemetry.Sample) {
	log := monitoring.WithFields(logrus.Fields{"session": r.Session.Name})
	started := time.Now()

	acc, gyro, mag, err := r.Session.LoadStreams(a.fs, a.settings.Capture)
	if err != nil {
		r.Err = err
		log.Warnf("load streams: %v", err)
		return
	}
	joined := merge.Join(acc, gyro, a.settings.Merge)
	r.Audit = a.auditInertial(acc, gyro, joined)
	if hz, short := magnetometerShortfall(mag, a.settings.MagExpectedHz, a.settings.DropTolerance); short {
		log.Warnf("magnetometer at %.1f Hz, configured for %.0f Hz", hz, a.settings.MagExpectedHz)
	}

	frames := merge.Attach(joined, mag)
	r.Frames = len(frames)
	filter, err := orientation.New(a.settings.Filter)
	if err != nil {
		r.Err = err
		log.Warnf("orientation filter: %v", err)
		return
	}
	est := orientation.Run(frames, filter)

	r.Result, err = correlate.Correlate(est, tel, a.settings.correlateOptions())
	if err != nil {
		r.Err = err
		log.Warnf("correlate: %v", err)
		return
	}

	if err := a.writeSessionOutputs(*r, est); err != nil {
		r.Err = err
		log.Warnf("write outputs: %v", err)
		return
	}
	log.WithFields(logrus.Fields{
		"frames":  r.Frames,
		"rows":    len(r.Result.Rows),
		"drops":   len(r.Audit.Drops()),
		"elapsed": time.Since(started).Round(time.Millisecond),
	}).Info("session analysed")
}

func (a *Analyzer) writeSessionOutputs(r SessionResult, est []orientation.Estimate) error {
	if err := writeFile(a.fs, filepath.Join(r.OutputDir, OrientationCSV), func(w io.Writer) error {
		return report.WriteOrientation(w, est)
	}); err != nil {
		return err
	}
	if err := writeFile(a.fs, filepath.Join(r.OutputDir, FrameRateCSV), func(w io.Writer) error {
		return report.WriteFrameRate(w, r.Audit)
	}); err != nil {
		return err
	}
	return writeFile(a.fs, filepath.Join(r.OutputDir, CorrelationCSV), func(w io.Writer) error {
		return report.WriteCorrelation(w, r.Result)
	})
}

func (a *Analyzer) recordSession(runID string, file telemetry.File, r SessionResult) {
	if a.catalogue == nil {
		return
	}
	if len(r.Audit.Buckets) > 0 {
		a.record("audit", a.catalogue.RecordAudit(r.Session.Dir, r.Audit))
	}
	if runID == "" {
		return
	}
	m := db.MatchRecord{
		RunID:         runID,
		TelemetryPath: file.Path,
		SessionDir:    r.Session.Dir,
		Window:        r.Result.Window,
		Rows:          len(r.Result.Rows),
	}
	if r.Err != nil {
		m.Error = r.Err.Error()
	} else {
		m.OutputPath = filepath.Join(r.OutputDir, CorrelationCSV)
	}
	a.record("match", a.catalogue.RecordMatch(m))
}

func (a *Analyzer) writeFigures(fr FileResult) {
	var panels []report.Panel
	var audits []report.Audit
	for _, r := range fr.Sessions {
		if r.Err != nil {
			continue
		}
		title := fmt.Sprintf("%s / %s", fr.File.Name, r.Session.Name)
		if !r.Result.NoOverlap {
			panels = append(panels, report.Panel{Title: title, Result: r.Result})
		}
		audits = append(audits, report.Audit{Title: r.Session.Name, Report: r.Audit})
	}
	loc := a.settings.Target

	if len(panels) > 0 {
		err := writeFile(a.fs, filepath.Join(fr.OutputDir, report.ComparisonPNG), func(w io.Writer) error {
			return report.WriteComparisonPNG(w, panels, loc)
		})
		if err != nil {
			monitoring.Warnf("%s: %v", report.ComparisonPNG, err)
		}
	}
	if len(audits) > 0 {
		err := writeFile(a.fs, filepath.Join(fr.OutputDir, report.FrameRatePNG), func(w io.Writer) error {
			return report.WriteFrameRatePNG(w, audits, loc)
		})
		if err != nil {
			monitoring.Warnf("%s: %v", report.FrameRatePNG, err)
		}
	}
	err := writeFile(a.fs, filepath.Join(fr.OutputDir, report.DashboardHTML), func(w io.Writer) error {
		return report.WriteDashboard(w, fr.File.Name, panels, audits, loc)
	})
	if err != nil {
		monitoring.Warnf("%s: %v", report.DashboardHTML, err)
	}
}

func writeFile(fsys fsutil.FileSystem, path string, write func(io.Writer) error) (err error) {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
