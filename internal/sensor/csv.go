package sensor

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/formcheck/formcheck/internal/fsutil"
	"github.com/formcheck/formcheck/internal/units"
)

var (
	// ErrMissingColumn is returned when a required column is absent from the header.
	ErrMissingColumn = errors.New("missing column")
	// ErrParse is matched by every *ParseError.
	ErrParse = errors.New("parse error")
)

// ParseError reports a cell that could not be decoded.
type ParseError struct {
	File   string
	Line   int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: column %q: %v", e.File, e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// timestampColumns are accepted spellings of the time column, in priority order.
var timestampColumns = []string{"epoch", "epoch (ms)", "timestamp", "time"}

// table is a decoded CSV with a lower-cased header index.
type table struct {
	name   string
	header map[string]int
	order  []string // normalised header cells in file order
	rows   [][]string
}

func readTable(r io.Reader, name string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w: empty file has no header", name, ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", name, err)
	}

	t := &table{name: name, header: make(map[string]int, len(head)), order: make([]string, len(head))}
	for i, h := range head {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		t.order[i] = h
		if _, dup := t.header[h]; !dup {
			t.header[h] = i
		}
	}
	t.rows, err = cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: read rows: %w", name, err)
	}
	return t, nil
}

// column finds the first header matching one of names, or else the
// leftmost axis-style header such as "x-axis (g)".
func (t *table) column(names ...string) (int, string, bool) {
	for _, n := range names {
		if i, ok := t.header[n]; ok {
			return i, n, true
		}
	}
	for _, n := range names {
		if len(n) != 1 {
			continue
		}
		for i, h := range t.order {
			if strings.HasPrefix(h, n+"-axis") || h == n+"_axis" {
				return i, h, true
			}
		}
	}
	return 0, "", false
}

func (t *table) require(names ...string) (int, string, error) {
	i, n, ok := t.column(names...)
	if !ok {
		return 0, "", fmt.Errorf("%s: %w: %s", t.name, ErrMissingColumn, names[0])
	}
	return i, n, nil
}

func (t *table) cell(row []string, line, idx int, col string) (string, error) {
	if idx >= len(row) {
		return "", &ParseError{File: t.name, Line: line, Column: col, Err: errors.New("short row")}
	}
	return row[idx], nil
}

func (t *table) float(row []string, line, idx int, col string) (float64, error) {
	raw, err := t.cell(row, line, idx, col)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, &ParseError{File: t.name, Line: line, Column: col, Err: err}
	}
	return v, nil
}

func (t *table) time(row []string, line, idx int, col string, loc *time.Location) (time.Time, error) {
	raw, err := t.cell(row, line, idx, col)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := units.ParseTimestamp(raw, loc)
	if err != nil {
		return time.Time{}, &ParseError{File: t.name, Line: line, Column: col, Err: err}
	}
	return ts, nil
}

// ReadSamples decodes an epoch,x,y,z stream. Naive date-time stamps are
// read in loc. The result is sorted by time; duplicate stamps are kept and
// left for the merger to collapse.
func ReadSamples(r io.Reader, name string, loc *time.Location) ([]Sample, error) {
	t, err := readTable(r, name)
	if err != nil {
		return nil, err
	}
	ti, tcol, err := t.require(timestampColumns...)
	if err != nil {
		return nil, err
	}
	var idx [3]int
	var cols [3]string
	for a, axis := range []string{"x", "y", "z"} {
		if idx[a], cols[a], err = t.require(axis); err != nil {
			return nil, err
		}
	}

	out := make([]Sample, 0, len(t.rows))
	for n, row := range t.rows {
		line := n + 2
		if blankRow(row) {
			continue
		}
		ts, err := t.time(row, line, ti, tcol, loc)
		if err != nil {
			return nil, err
		}
		var v [3]float64
		for a := range v {
			if v[a], err = t.float(row, line, idx[a], cols[a]); err != nil {
				return nil, err
			}
		}
		out = append(out, Sample{Time: ts, Vector: Vector{X: v[0], Y: v[1], Z: v[2]}})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// ReadSamplesFile opens path on fsys and decodes it with ReadSamples.
func ReadSamplesFile(fsys fsutil.FileSystem, path string, loc *time.Location) ([]Sample, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture stream: %w", err)
	}
	defer f.Close()
	return ReadSamples(f, path, loc)
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
