package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/formcheck/formcheck/internal/correlate"
	"github.com/formcheck/formcheck/internal/framerate"
	"github.com/formcheck/formcheck/internal/sensor"
	"github.com/formcheck/formcheck/internal/telemetry"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// SessionRecord is a catalogued capture session.
type SessionRecord struct {
	Dir             string
	Name            string
	First           time.Time
	Last            time.Time
	HasMagnetometer bool
	HasFusion       bool
}

// Run is one analysis pass.
type Run struct {
	ID         string
	Kind       string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	ConfigJSON string
	Summary    string
}

// MatchRecord is the outcome of correlating one telemetry file with one
// session inside a run.
type MatchRecord struct {
	RunID         string
	TelemetryPath string
	SessionDir    string
	Window        correlate.Window
	Rows          int
	OutputPath    string
	Error         string
}

// AuditRecord summarises a session's frame-rate audit.
type AuditRecord struct {
	SessionDir string
	ExpectedHz float64
	Seconds    int
	Samples    int
	MeanHz     float64
	Drops      int
	FirstDrop  time.Time
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms sql.NullInt64) time.Time {
	if !ms.Valid {
		return time.Time{}
	}
	return time.UnixMilli(ms.Int64).UTC()
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

// UpsertSession records or refreshes a capture session.
func (db *DB) UpsertSession(s sensor.Session) error {
	_, hasFusion := s.Files[sensor.Fusion]
	_, err := db.Exec(`
		INSERT INTO capture_sessions (session_dir, name, first_unix_ms, last_unix_ms, has_magnetometer, has_fusion)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_dir) DO UPDATE SET
			name = excluded.name,
			first_unix_ms = excluded.first_unix_ms,
			last_unix_ms = excluded.last_unix_ms,
			has_magnetometer = excluded.has_magnetometer,
			has_fusion = excluded.has_fusion,
			updated_at = CURRENT_TIMESTAMP`,
		s.Dir, s.Name, toMillis(s.First), toMillis(s.Last), s.HasMagnetometer(), hasFusion)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", s.Dir, err)
	}
	return nil
}

// Sessions lists catalogued sessions by start time.
func (db *DB) Sessions() ([]SessionRecord, error) {
	rows, err := db.Query(`
		SELECT session_dir, name, first_unix_ms, last_unix_ms, has_magnetometer, has_fusion
		FROM capture_sessions ORDER BY first_unix_ms, session_dir`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var first, last sql.NullInt64
		if err := rows.Scan(&r.Dir, &r.Name, &first, &last, &r.HasMagnetometer, &r.HasFusion); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		r.First, r.Last = fromMillis(first), fromMillis(last)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertTelemetryFile records or refreshes a telemetry export.
func (db *DB) UpsertTelemetryFile(f telemetry.File) error {
	_, err := db.Exec(`
		INSERT INTO telemetry_files (path, name, activity_id, first_unix_ms, last_unix_ms, samples)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			activity_id = excluded.activity_id,
			first_unix_ms = excluded.first_unix_ms,
			last_unix_ms = excluded.last_unix_ms,
			samples = excluded.samples,
			updated_at = CURRENT_TIMESTAMP`,
		f.Path, f.Name, f.ActivityID, nullMillis(f.First), nullMillis(f.Last), f.Samples)
	if err != nil {
		return fmt.Errorf("upsert telemetry file %s: %w", f.Path, err)
	}
	return nil
}

// TelemetryFiles lists catalogued telemetry exports by start time.
func (db *DB) TelemetryFiles() ([]telemetry.File, error) {
	rows, err := db.Query(`
		SELECT path, name, COALESCE(activity_id, ''), first_unix_ms, last_unix_ms, samples
		FROM telemetry_files ORDER BY first_unix_ms, path`)
	if err != nil {
		return nil, fmt.Errorf("query telemetry files: %w", err)
	}
	defer rows.Close()

	var out []telemetry.File
	for rows.Next() {
		var f telemetry.File
		var first, last sql.NullInt64
		if err := rows.Scan(&f.Path, &f.Name, &f.ActivityID, &first, &last, &f.Samples); err != nil {
			return nil, fmt.Errorf("scan telemetry file: %w", err)
		}
		f.First, f.Last = fromMillis(first), fromMillis(last)
		out = append(out, f)
	}
	return out, rows.Err()
}

// StartRun opens an analysis run. settings is stored as JSON for later
// inspection; it may be nil.
func (db *DB) StartRun(kind string, settings any) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    RunRunning,
		StartedAt: db.clock.Now().UTC().Truncate(time.Millisecond),
	}
	if settings != nil {
		b, err := json.Marshal(settings)
		if err != nil {
			return Run{}, fmt.Errorf("encode run settings: %w", err)
		}
		run.ConfigJSON = string(b)
	}
	_, err := db.Exec(`
		INSERT INTO analysis_runs (run_id, kind, status, started_unix_ms, config_json)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Status, toMillis(run.StartedAt), run.ConfigJSON)
	if err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// FinishRun closes a run with its final status and a free-form summary.
func (db *DB) FinishRun(id, status, summary string) error {
	res, err := db.Exec(`
		UPDATE analysis_runs SET status = ?, summary = ?, finished_unix_ms = ?
		WHERE run_id = ?`,
		status, summary, toMillis(db.clock.Now()), id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// GetRun loads a run by id.
func (db *DB) GetRun(id string) (Run, error) {
	var r Run
	var started, finished sql.NullInt64
	var cfg, summary sql.NullString
	err := db.QueryRow(`
		SELECT run_id, kind, status, started_unix_ms, finished_unix_ms, config_json, summary
		FROM analysis_runs WHERE run_id = ?`, id).
		Scan(&r.ID, &r.Kind, &r.Status, &started, &finished, &cfg, &summary)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	r.StartedAt, r.FinishedAt = fromMillis(started), fromMillis(finished)
	r.ConfigJSON, r.Summary = cfg.String, summary.String
	return r, nil
}

// RecordMatch stores the outcome of one telemetry/session pair.
func (db *DB) RecordMatch(m MatchRecord) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO session_matches
			(run_id, telemetry_path, session_dir, window_start_ms, window_end_ms, row_count, output_path, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.TelemetryPath, m.SessionDir,
		toMillis(m.Window.Start), toMillis(m.Window.End), m.Rows,
		nullString(m.OutputPath), nullString(m.Error))
	if err != nil {
		return fmt.Errorf("record match %s/%s: %w", m.TelemetryPath, m.SessionDir, err)
	}
	return nil
}

// Matches lists the pairs recorded for a run.
func (db *DB) Matches(runID string) ([]MatchRecord, error) {
	rows, err := db.Query(`
		SELECT run_id, telemetry_path, session_dir, window_start_ms, window_end_ms, row_count,
			COALESCE(output_path, ''), COALESCE(error, '')
		FROM session_matches WHERE run_id = ?
		ORDER BY window_start_ms, session_dir`, runID)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var out []MatchRecord
	for rows.Next() {
		var m MatchRecord
		var start, end sql.NullInt64
		if err := rows.Scan(&m.RunID, &m.TelemetryPath, &m.SessionDir, &start, &end, &m.Rows, &m.OutputPath, &m.Error); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.Window = correlate.Window{Start: fromMillis(start), End: fromMillis(end)}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecordAudit stores the latest frame-rate audit for a catalogued session.
func (db *DB) RecordAudit(sessionDir string, r framerate.Report) error {
	drops := r.Drops()
	var firstDrop time.Time
	if len(drops) > 0 {
		firstDrop = drops[0].Start
	}
	_, err := db.Exec(`
		INSERT OR REPLACE INTO frame_rate_audits
			(session_dir, expected_hz, seconds, samples, mean_hz, drops, first_drop_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionDir, r.ExpectedHz, len(r.Buckets), r.Total(), r.Mean(), len(drops), nullMillis(firstDrop))
	if err != nil {
		return fmt.Errorf("record audit %s: %w", sessionDir, err)
	}
	return nil
}

// Audit loads the stored audit summary for a session.
func (db *DB) Audit(sessionDir string) (AuditRecord, error) {
	var a AuditRecord
	var first sql.NullInt64
	err := db.QueryRow(`
		SELECT session_dir, expected_hz, seconds, samples, mean_hz, drops, first_drop_ms
		FROM frame_rate_audits WHERE session_dir = ?`, sessionDir).
		Scan(&a.SessionDir, &a.ExpectedHz, &a.Seconds, &a.Samples, &a.MeanHz, &a.Drops, &first)
	if errors.Is(err, sql.ErrNoRows) {
		return AuditRecord{}, fmt.Errorf("no audit for %s: %w", sessionDir, err)
	}
	if err != nil {
		return AuditRecord{}, fmt.Errorf("get audit %s: %w", sessionDir, err)
	}
	a.FirstDrop = fromMillis(first)
	return a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
