package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrTimestamp is returned when a timestamp string matches none of the
// accepted layouts.
var ErrTimestamp = errors.New("unrecognised timestamp")

var locationCache sync.Map // map[string]*time.Location

// IsTimezoneValid checks if the given timezone is valid by attempting to load it from the tz database
// This validates against the actual system tz database rather than a hardcoded list
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := LoadLocation(tz)
	return err == nil
}

// LoadLocation loads a tz database location once and caches it.
func LoadLocation(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return time.UTC, nil
	}
	if loc, ok := locationCache.Load(tz); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", tz, err)
	}
	locationCache.Store(tz, loc)
	return loc, nil
}

// ConvertTime expresses an instant in the specified timezone. The instant
// itself is unchanged; only its presentation location moves.
func ConvertTime(t time.Time, targetTimezone string) (time.Time, error) {
	loc, err := LoadLocation(targetTimezone)
	if err != nil {
		return t, err
	}
	return t.In(loc), nil
}

// Layouts without an explicit offset are interpreted in the caller's location.
var naiveLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-0700",
}

// ParseTimestamp normalises a raw timestamp cell into an absolute instant.
//
// Integer or decimal values are epoch milliseconds. Strings carrying an
// offset are honoured as-is; naive date-times are read in loc, so a
// telemetry export written in UTC and a capture written in local time land
// on the same timeline.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrTimestamp)
	}
	if loc == nil {
		loc = time.UTC
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).In(loc), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return time.Time{}, fmt.Errorf("%w: %q", ErrTimestamp, raw)
		}
		whole, frac := math.Modf(f)
		return time.UnixMilli(int64(whole)).Add(time.Duration(frac * float64(time.Millisecond))).In(loc), nil
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrTimestamp, raw)
}
