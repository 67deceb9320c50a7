package telemetry

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/formcheck/formcheck/internal/fsutil"
)

// File describes one telemetry export on disk.
type File struct {
	Name       string // base name without extension
	Path       string
	ActivityID string
	First      time.Time
	Last       time.Time
	Samples    int
}

// ActivityIDFromName extracts the id from {type}_{YYYY_MM_DD_HHMM}_{id}.csv.
func ActivityIDFromName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if i := strings.LastIndex(base, "_"); i >= 0 && i < len(base)-1 {
		return base[i+1:]
	}
	return ""
}

// DiscoverFiles lists the telemetry CSVs in dir, sorted by name.
func DiscoverFiles(fsys fsutil.FileSystem, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list telemetry folder: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// LoadFile reads a telemetry export and summarises its time span.
func LoadFile(fsys fsutil.FileSystem, path string, loc *time.Location) (File, []Sample, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return File{}, nil, fmt.Errorf("open telemetry: %w", err)
	}
	defer f.Close()

	samples, err := ReadCSV(f, path, loc)
	if err != nil {
		return File{}, nil, err
	}
	base := filepath.Base(path)
	file := File{
		Name:       strings.TrimSuffix(base, filepath.Ext(base)),
		Path:       path,
		ActivityID: ActivityIDFromName(base),
		Samples:    len(samples),
	}
	if len(samples) > 0 {
		file.First, file.Last = samples[0].Time, samples[len(samples)-1].Time
	}
	return file, samples, nil
}
