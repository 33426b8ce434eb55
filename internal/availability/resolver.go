// Package availability derives ranked candidate appointment slots from a
// window and a set of busy intervals. The resolver is read-only and never
// widens the search window on its own; asking for the next window is the
// caller's policy.
package availability

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Anushkasethi/pharmacy-booking/internal/interval"
)

var (
	// ErrInvalidWindow is returned when the requested window is inverted or empty.
	ErrInvalidWindow = errors.New("availability: invalid window")

	// ErrUnsupportedAppointmentType is returned when no duration is configured
	// for the requested appointment type.
	ErrUnsupportedAppointmentType = errors.New("availability: unsupported appointment type")
)

// Reason explains why a result has fewer slots than requested.
type Reason string

const (
	ReasonOk             Reason = "ok"
	ReasonNoneInWindow   Reason = "none_in_window"
	ReasonNoneOfDuration Reason = "none_of_duration"
)

// CandidateSlot is a bookable range with its 0-based preference rank.
// Produced fresh per query, never persisted.
type CandidateSlot struct {
	Range interval.TimeRange
	Rank  int
}

// Request carries one availability query.
type Request struct {
	AppointmentType string
	Window          interval.TimeRange
	// Preferred, when set, re-ranks candidates by distance from this start
	// time instead of soonest-first.
	Preferred *time.Time
	Busy      []interval.TimeRange
}

// Result is the ranked outcome of a query. TotalCandidates counts every slot
// that fit before truncation, for "none available" diagnostics upstream.
type Result struct {
	Slots           []CandidateSlot
	Reason          Reason
	TotalCandidates int
}

// BusinessHours restricts slot starts to the pharmacy's open hours.
type BusinessHours struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

// Resolver computes candidate slots for configured appointment types.
type Resolver struct {
	durations     map[string]time.Duration
	granularity   time.Duration
	maxCandidates int
	hours         BusinessHours
}

// NewResolver builds a resolver. durations maps appointment type to slot
// length; granularity is the step between candidate starts.
func NewResolver(durations map[string]time.Duration, granularity time.Duration, maxCandidates int, hours BusinessHours) *Resolver {
	if granularity <= 0 {
		granularity = 15 * time.Minute
	}
	if maxCandidates <= 0 {
		maxCandidates = 3
	}
	if hours.Location == nil {
		hours.Location = time.UTC
	}
	return &Resolver{
		durations:     durations,
		granularity:   granularity,
		maxCandidates: maxCandidates,
		hours:         hours,
	}
}

// Resolve computes ranked candidate slots within req.Window.
func (r *Resolver) Resolve(req Request) (Result, error) {
	if !req.Window.Start.Before(req.Window.End) {
		return Result{}, fmt.Errorf("%w: start=%s end=%s", ErrInvalidWindow,
			req.Window.Start.Format(time.RFC3339), req.Window.End.Format(time.RFC3339))
	}

	duration, ok := r.durations[req.AppointmentType]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedAppointmentType, req.AppointmentType)
	}

	var candidates []CandidateSlot
	sawGap := false
	for _, window := range r.openWindows(req.Window) {
		for _, gap := range interval.Subtract(window, req.Busy) {
			sawGap = true
			candidates = append(candidates, r.slotsInGap(gap, duration)...)
		}
	}

	if len(candidates) == 0 {
		reason := ReasonNoneOfDuration
		if !sawGap {
			reason = ReasonNoneInWindow
		}
		return Result{Reason: reason}, nil
	}

	rank(candidates, req.Preferred)
	total := len(candidates)
	if len(candidates) > r.maxCandidates {
		candidates = candidates[:r.maxCandidates]
	}
	return Result{Slots: candidates, Reason: ReasonOk, TotalCandidates: total}, nil
}

// openWindows intersects the requested window with business hours, one
// sub-window per weekday. A zero StartHour/EndHour pair disables the clamp.
func (r *Resolver) openWindows(window interval.TimeRange) []interval.TimeRange {
	if r.hours.StartHour == 0 && r.hours.EndHour == 0 {
		return []interval.TimeRange{window}
	}

	var windows []interval.TimeRange
	day := window.Start.In(r.hours.Location)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, r.hours.Location)
	for ; day.Before(window.End); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		open := day.Add(time.Duration(r.hours.StartHour) * time.Hour)
		close := day.Add(time.Duration(r.hours.EndHour) * time.Hour)
		if open.Before(window.Start) {
			open = window.Start
		}
		if close.After(window.End) {
			close = window.End
		}
		if open.Before(close) {
			windows = append(windows, interval.TimeRange{Start: open, End: close})
		}
	}
	return windows
}

// slotsInGap generates every granularity-aligned start whose slot fits
// entirely inside the gap.
func (r *Resolver) slotsInGap(gap interval.TimeRange, duration time.Duration) []CandidateSlot {
	var slots []CandidateSlot
	start := gap.Start.Truncate(r.granularity)
	if start.Before(gap.Start) {
		start = start.Add(r.granularity)
	}
	for ; !start.Add(duration).After(gap.End); start = start.Add(r.granularity) {
		slots = append(slots, CandidateSlot{
			Range: interval.TimeRange{Start: start, End: start.Add(duration)},
		})
	}
	return slots
}

// rank orders candidates and assigns 0-based ranks: closest to the preferred
// start when one is given (ties broken by earliest start), soonest-first
// otherwise.
func rank(candidates []CandidateSlot, preferred *time.Time) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].Range.Start, candidates[j].Range.Start
		if preferred != nil {
			da, db := absDistance(a, *preferred), absDistance(b, *preferred)
			if da != db {
				return da < db
			}
		}
		return a.Before(b)
	})
	for i := range candidates {
		candidates[i].Rank = i
	}
}

func absDistance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
