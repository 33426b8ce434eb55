// Package interval models half-open time ranges and the set operations the
// availability resolver is built on. Everything here is pure: no clocks, no
// side effects.
package interval

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidRange is returned when a range does not satisfy start < end.
var ErrInvalidRange = errors.New("interval: range start must be before end")

// TimeRange is a half-open interval [Start, End). Immutable once constructed.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange validates start < end.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if !start.Before(end) {
		return TimeRange{}, fmt.Errorf("%w: start=%s end=%s", ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return TimeRange{Start: start, End: end}, nil
}

// Duration returns End - Start.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// IsZero reports whether the range is the zero value.
func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains reports whether other lies entirely within r.
func (r TimeRange) Contains(other TimeRange) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// Equal compares both endpoints by instant.
func (r TimeRange) Equal(other TimeRange) bool {
	return r.Start.Equal(other.Start) && r.End.Equal(other.End)
}

// Overlaps reports whether a and b share any instant. Half-open semantics:
// back-to-back ranges ([9:00,9:30) and [9:30,10:00)) do not overlap.
func Overlaps(a, b TimeRange) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Merge coalesces overlapping or touching ranges into a minimal sorted set.
func Merge(ranges []TimeRange) []TimeRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]TimeRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []TimeRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !r.Start.After(last.End) {
			if r.End.After(last.End) {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Subtract returns the free gaps of window after removing busy intervals.
// Busy intervals are merged first; parts outside the window are ignored.
// The result is ordered by start time.
func Subtract(window TimeRange, busy []TimeRange) []TimeRange {
	var gaps []TimeRange
	cursor := window.Start

	for _, b := range Merge(busy) {
		if !b.End.After(window.Start) || !b.Start.Before(window.End) {
			continue
		}
		if b.Start.After(cursor) {
			gaps = append(gaps, TimeRange{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(window.End) {
		gaps = append(gaps, TimeRange{Start: cursor, End: window.End})
	}
	return gaps
}
