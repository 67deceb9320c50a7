package correlate

import (
	"github.com/formcheck/formcheck/internal/sensor"
	"github.com/formcheck/formcheck/internal/telemetry"
)

// Match pairs a telemetry file with a capture session whose span overlaps it.
type Match struct {
	Telemetry telemetry.File
	Session   sensor.Session
	Window    Window
}

// MatchSessions pairs every telemetry file with every session overlapping it
// (closed intervals). A file may match several sessions; each pair is kept.
// Files or sessions without a span never match.
func MatchSessions(files []telemetry.File, sessions []sensor.Session) []Match {
	var out []Match
	for _, f := range files {
		if f.First.IsZero() || f.Last.IsZero() {
			continue
		}
		for _, s := range sessions {
			if s.First.IsZero() || s.Last.IsZero() {
				continue
			}
			start, end := latest(f.First, s.First), earliest(f.Last, s.Last)
			if end.Before(start) {
				continue
			}
			out = append(out, Match{Telemetry: f, Session: s, Window: Window{Start: start, End: end}})
		}
	}
	return out
}
