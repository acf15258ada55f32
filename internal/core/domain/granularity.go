package domain

import (
	"fmt"
	"strings"
	"time"
)

// Granularity is the bucket width tier of a metric record.
// Values are ordered: Raw < Hourly < Daily < Monthly.
type Granularity int

const (
	Raw Granularity = iota
	Hourly
	Daily
	Monthly
)

// Granularities lists every tier in ascending order.
var Granularities = []Granularity{Raw, Hourly, Daily, Monthly}

var granularityNames = map[Granularity]string{
	Raw:     "RAW",
	Hourly:  "HOURLY",
	Daily:   "DAILY",
	Monthly: "MONTHLY",
}

// Seconds returns the bucket width in seconds. Monthly is a fixed 30 day
// window aligned to the epoch, not a calendar month. Raw has no width.
func (g Granularity) Seconds() int64 {
	switch g {
	case Hourly:
		return 3600
	case Daily:
		return 86400
	case Monthly:
		return 2592000
	}
	return 0
}

// Width returns the bucket width as a duration.
func (g Granularity) Width() time.Duration {
	return time.Duration(g.Seconds()) * time.Second
}

// RoundDown floors t to the start of its bucket, keeping t's location.
// Raw timestamps are returned unchanged.
func (g Granularity) RoundDown(t time.Time) time.Time {
	w := g.Seconds()
	if w == 0 {
		return t
	}
	sec := t.Unix()
	floor := sec - sec%w
	if sec%w < 0 {
		floor -= w
	}
	return time.Unix(floor, 0).In(t.Location())
}

// Bucket returns the half-open interval [start, end) containing t.
func (g Granularity) Bucket(t time.Time) (time.Time, time.Time) {
	start := g.RoundDown(t)
	return start, start.Add(g.Width())
}

// Prev returns the next finer granularity. Raw has no predecessor.
func (g Granularity) Prev() (Granularity, bool) {
	switch g {
	case Hourly:
		return Raw, true
	case Daily:
		return Hourly, true
	case Monthly:
		return Daily, true
	}
	return Raw, false
}

// IsValid reports whether g is one of the known tiers.
func (g Granularity) IsValid() bool {
	_, ok := granularityNames[g]
	return ok
}

func (g Granularity) String() string {
	if name, ok := granularityNames[g]; ok {
		return name
	}
	return fmt.Sprintf("Granularity(%d)", int(g))
}

// ParseGranularity resolves a granularity by name (case-insensitive).
func ParseGranularity(name string) (Granularity, error) {
	for g, n := range granularityNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return g, nil
		}
	}
	return Raw, fmt.Errorf("%w: %q", ErrInvalidGranularityKey, name)
}
