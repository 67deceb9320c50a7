package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/formcheck/formcheck/internal/merge"
	"github.com/formcheck/formcheck/internal/monitoring"
	"github.com/formcheck/formcheck/internal/orientation"
	"github.com/formcheck/formcheck/internal/report"
	"github.com/formcheck/formcheck/internal/sensor"
)

// MergedCSV is the file MergeSession writes into the session folder.
const MergedCSV = "merged.csv"

// MergeSession merges the streams of the capture folder dir and writes
// them to w, with the onboard fusion track as reference columns when the
// session has one. It returns the number of merged frames.
func (a *Analyzer) MergeSession(dir string, w io.Writer) (int, error) {
	s, err := sensor.OpenSession(a.fs, dir, a.settings.Capture)
	if err != nil {
		return 0, err
	}
	acc, gyro, mag, err := s.LoadStreams(a.fs, a.settings.Capture)
	if err != nil {
		return 0, err
	}
	frames := merge.Merge(acc, gyro, mag, a.settings.Merge)

	var ref []orientation.Estimate
	fusion, err := s.LoadFusion(a.fs, a.settings.Capture)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		monitoring.Warnf("session %s: ignoring fusion stream: %v", s.Name, err)
	default:
		ref = fusionEstimates(fusion)
	}
	if err := report.WriteMerged(w, frames, ref); err != nil {
		return 0, err
	}
	return len(frames), nil
}

func fusionEstimates(in []sensor.Euler) []orientation.Estimate {
	out := make([]orientation.Estimate, len(in))
	for i, e := range in {
		out[i] = orientation.Estimate{Time: e.Time, Pose: orientation.Pose{Roll: e.Roll, Pitch: e.Pitch, Yaw: e.Yaw}}
	}
	return out
}

// AuditSessions audits the joined inertial rate of every session under
// captureDir and writes frame_rate_analysis.png into outDir. Audits are
// recorded in the catalogue when one is configured.
func (a *Analyzer) AuditSessions(ctx context.Context, captureDir, outDir string) ([]report.Audit, error) {
	sessions, err := sensor.DiscoverSessions(a.fs, captureDir, a.settings.Capture)
	if err != nil {
		return nil, err
	}
	var audits []report.Audit
	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			return audits, err
		}
		acc, gyro, _, err := s.LoadStreams(a.fs, a.settings.Capture)
		if err != nil {
			monitoring.Warnf("session %s: %v", s.Name, err)
			continue
		}
		rep := a.auditInertial(acc, gyro, merge.Join(acc, gyro, a.settings.Merge))
		if drops := rep.Drops(); len(drops) > 0 {
			monitoring.Logf("session %s: %d of %d seconds below %.0f samples", s.Name, len(drops), len(rep.Buckets), rep.Threshold())
		}
		if a.catalogue != nil {
			a.record("session", a.catalogue.UpsertSession(s))
			a.record("audit", a.catalogue.RecordAudit(s.Dir, rep))
		}
		audits = append(audits, report.Audit{Title: s.Name, Report: rep})
	}
	if len(audits) == 0 {
		return nil, fmt.Errorf("no sessions to audit in %s", captureDir)
	}
	if err := a.fs.MkdirAll(outDir, 0o755); err != nil {
		return audits, fmt.Errorf("create output folder: %w", err)
	}
	err = writeFile(a.fs, filepath.Join(outDir, report.FrameRatePNG), func(w io.Writer) error {
		return report.WriteFrameRatePNG(w, audits, a.settings.Target)
	})
	return audits, err
}
