package telemetry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/formcheck/formcheck/internal/sensor"
	"github.com/formcheck/formcheck/internal/units"
)

// timestampLayout is how exports write time: naive UTC, as the platform's
// FIT records carry it.
const timestampLayout = "2006-01-02 15:04:05"

// RequiredColumns must appear in every telemetry export header.
var RequiredColumns = []string{ColTimestamp, ColEnhancedSpeed, ColHeartRate}

// ReadCSV decodes a telemetry export. Naive timestamps are read in loc (the
// source timezone, normally UTC). Empty cells become NaN; unknown columns
// land in Extra. Rows are returned sorted by time.
func ReadCSV(r io.Reader, name string, loc *time.Location) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w: %s", name, sensor.ErrMissingColumn, ColTimestamp)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", name, err)
	}
	for i := range head {
		head[i] = strings.ToLower(strings.TrimSpace(head[i]))
	}

	ti := -1
	for i, h := range head {
		if h == ColTimestamp {
			ti = i
			break
		}
	}
	if ti < 0 {
		return nil, fmt.Errorf("%s: %w: %s", name, sensor.ErrMissingColumn, ColTimestamp)
	}
	for _, col := range RequiredColumns {
		if !slices.Contains(head, col) {
			return nil, fmt.Errorf("%s: %w: %s", name, sensor.ErrMissingColumn, col)
		}
	}

	var out []Sample
	line := 1
	for {
		row, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: read row %d: %w", name, line, err)
		}
		if ti >= len(row) || strings.TrimSpace(row[ti]) == "" {
			continue
		}

		ts, err := units.ParseTimestamp(row[ti], loc)
		if err != nil {
			return nil, &sensor.ParseError{File: name, Line: line, Column: ColTimestamp, Err: err}
		}
		s := NewSample(ts)
		for i, h := range head {
			if i == ti || i >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[i])
			f := s.field(h)
			if f == nil {
				if s.Extra == nil {
					s.Extra = make(map[string]string)
				}
				s.Extra[h] = row[i]
				continue
			}
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, &sensor.ParseError{File: name, Line: line, Column: h, Err: err}
			}
			*f = v
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// WriteCSV writes samples in the canonical column order followed by any
// extra columns, sorted by name.
func WriteCSV(w io.Writer, samples []Sample) error {
	extraSet := make(map[string]struct{})
	for _, s := range samples {
		for k := range s.Extra {
			extraSet[k] = struct{}{}
		}
	}
	extras := make([]string, 0, len(extraSet))
	for k := range extraSet {
		extras = append(extras, k)
	}
	sort.Strings(extras)

	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, Columns...), extras...)); err != nil {
		return fmt.Errorf("write telemetry header: %w", err)
	}
	row := make([]string, len(Columns)+len(extras))
	for _, s := range samples {
		row[0] = s.Time.UTC().Format(timestampLayout)
		for i, col := range Columns[1:] {
			v, ok := s.Value(col)
			row[i+1] = ""
			if ok {
				row[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		for i, k := range extras {
			row[len(Columns)+i] = s.Extra[k]
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write telemetry row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
