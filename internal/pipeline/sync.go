package pipeline

import (
	"context"

	"github.com/formcheck/formcheck/internal/fsutil"
	"github.com/formcheck/formcheck/internal/monitoring"
	"github.com/formcheck/formcheck/internal/storage"
	"github.com/formcheck/formcheck/internal/telemetry"
)

// Syncer fetches new telemetry from the fitness API and new captures from
// object storage. Either source may be nil.
type Syncer struct {
	FS           fsutil.FileSystem
	Intervals    *telemetry.Client
	Store        storage.ObjectStore
	Prefix       string
	TelemetryDir string
	CaptureDir   string
	LookbackDays int
}

// SyncResult reports what each source brought in.
type SyncResult struct {
	Telemetry telemetry.SyncResult
	Captures  storage.SyncResult
}

// NewData reports whether either source fetched something.
func (r SyncResult) NewData() bool {
	return r.Telemetry.NewData() || r.Captures.NewData()
}

// Sync runs both sources. A failing source is logged and treated as having
// no new data; only context cancellation is returned.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	if s.Intervals != nil {
		r, err := telemetry.Sync(ctx, s.Intervals, s.FS, s.TelemetryDir, s.LookbackDays)
		if err != nil {
			monitoring.Warnf("telemetry sync: %v", err)
		}
		res.Telemetry = r
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if s.Store != nil {
		r, err := storage.Sync(ctx, s.Store, s.Prefix, s.FS, s.CaptureDir)
		if err != nil {
			monitoring.Warnf("storage sync: %v", err)
		}
		res.Captures = r
	}
	return res, ctx.Err()
}
