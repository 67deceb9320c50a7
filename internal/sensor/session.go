package sensor

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/formcheck/formcheck/internal/fsutil"
	"github.com/formcheck/formcheck/internal/monitoring"
)

// ErrIncompleteSession is returned when a folder lacks an accelerometer or
// gyroscope stream.
var ErrIncompleteSession = errors.New("session needs accelerometer and gyroscope streams")

// Session is one capture folder.
type Session struct {
	Name  string
	Dir   string
	Files map[Kind]string
	First time.Time
	Last  time.Time
}

// HasMagnetometer reports whether the session carries a magnetometer stream.
func (s Session) HasMagnetometer() bool {
	_, ok := s.Files[Magnetometer]
	return ok
}

// OpenSession classifies the capture files in dir and reads the session
// bounds from the accelerometer stream.
func OpenSession(fsys fsutil.FileSystem, dir string, loc *time.Location) (Session, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return Session{}, fmt.Errorf("list session %s: %w", dir, err)
	}
	s := Session{Name: filepath.Base(dir), Dir: dir, Files: make(map[Kind]string)}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		k, ok := KindFromFilename(e.Name())
		if !ok {
			continue
		}
		if prev, dup := s.Files[k]; dup {
			monitoring.Debugf("session %s: ignoring %s, already using %s", s.Name, e.Name(), filepath.Base(prev))
			continue
		}
		s.Files[k] = filepath.Join(dir, e.Name())
	}
	if s.Files[Accelerometer] == "" || s.Files[Gyroscope] == "" {
		return Session{}, fmt.Errorf("%s: %w", dir, ErrIncompleteSession)
	}

	acc, err := ReadSamplesFile(fsys, s.Files[Accelerometer], loc)
	if err != nil {
		return Session{}, err
	}
	first, last, ok := Span(acc)
	if !ok {
		return Session{}, fmt.Errorf("%s: empty accelerometer stream", dir)
	}
	s.First, s.Last = first, last
	return s, nil
}

// DiscoverSessions opens every immediate subfolder of root that looks like a
// capture session. Folders that are not sessions are skipped; unreadable
// sessions are logged and skipped. Sessions are ordered by start time.
func DiscoverSessions(fsys fsutil.FileSystem, root string, loc *time.Location) ([]Session, error) {
	entries, err := fsys.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var out []Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		s, err := OpenSession(fsys, dir, loc)
		switch {
		case errors.Is(err, ErrIncompleteSession):
			continue
		case err != nil:
			monitoring.Warnf("skipping session %s: %v", dir, err)
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].First.Before(out[j].First) })
	return out, nil
}

// LoadStreams reads the session's raw streams. mag is nil when the session
// has no magnetometer file.
func (s Session) LoadStreams(fsys fsutil.FileSystem, loc *time.Location) (acc, gyro, mag []Sample, err error) {
	if acc, err = ReadSamplesFile(fsys, s.Files[Accelerometer], loc); err != nil {
		return nil, nil, nil, err
	}
	if gyro, err = ReadSamplesFile(fsys, s.Files[Gyroscope], loc); err != nil {
		return nil, nil, nil, err
	}
	if path, ok := s.Files[Magnetometer]; ok {
		if mag, err = ReadSamplesFile(fsys, path, loc); err != nil {
			return nil, nil, nil, err
		}
	}
	return acc, gyro, mag, nil
}

// LoadFusion reads the onboard fusion stream, if the session has one.
func (s Session) LoadFusion(fsys fsutil.FileSystem, loc *time.Location) ([]Euler, error) {
	path, ok := s.Files[Fusion]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return ReadFusionFile(fsys, path, loc)
}
