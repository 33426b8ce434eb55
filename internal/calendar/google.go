// Package calendar provides availability sources for the booking coordinator:
// a Google Calendar freebusy adapter for production, a Redis read-through
// cache to absorb bursts of slot queries, and a static source for development
// and tests.
package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/Anushkasethi/pharmacy-booking/internal/booking"
	"github.com/Anushkasethi/pharmacy-booking/internal/interval"
)

// freeBusyQuerier is the slice of the Calendar API the source calls; narrow
// so tests can fake it without credentials.
type freeBusyQuerier interface {
	Query(ctx context.Context, req *gcal.FreeBusyRequest) (*gcal.FreeBusyResponse, error)
}

// Google reads busy intervals from a Google Calendar via the freebusy API.
// The calendar is the single source of truth for availability; bookings made
// outside this system still block slots here.
type Google struct {
	querier    freeBusyQuerier
	calendarID string
}

var _ booking.AvailabilitySource = (*Google)(nil)

// NewGoogle creates the source over a Calendar service.
func NewGoogle(svc *gcal.Service, calendarID string) *Google {
	if svc == nil {
		panic("calendar: calendar service cannot be nil")
	}
	if calendarID == "" {
		panic("calendar: calendar ID cannot be empty")
	}
	return newGoogle(&liveQuerier{svc: svc}, calendarID)
}

func newGoogle(querier freeBusyQuerier, calendarID string) *Google {
	return &Google{querier: querier, calendarID: calendarID}
}

// QueryBusy returns the merged busy intervals overlapping the window. Any
// transport or API failure surfaces as ErrSourceUnavailable: the caller must
// treat unknown availability as unavailable, never as free.
func (g *Google) QueryBusy(ctx context.Context, window interval.TimeRange) ([]interval.TimeRange, error) {
	res, err := g.querier.Query(ctx, &gcal.FreeBusyRequest{
		TimeMin: window.Start.UTC().Format(time.RFC3339),
		TimeMax: window.End.UTC().Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: g.calendarID}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: freebusy query: %v", booking.ErrSourceUnavailable, err)
	}

	cal, ok := res.Calendars[g.calendarID]
	if !ok {
		return nil, fmt.Errorf("%w: calendar %s missing from freebusy response", booking.ErrSourceUnavailable, g.calendarID)
	}
	for _, calErr := range cal.Errors {
		return nil, fmt.Errorf("%w: freebusy error for %s: %s", booking.ErrSourceUnavailable, g.calendarID, calErr.Reason)
	}

	busy := make([]interval.TimeRange, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		r, err := parsePeriod(period)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", booking.ErrSourceUnavailable, err)
		}
		busy = append(busy, r)
	}
	return interval.Merge(busy), nil
}

func parsePeriod(p *gcal.TimePeriod) (interval.TimeRange, error) {
	start, err := time.Parse(time.RFC3339, p.Start)
	if err != nil {
		return interval.TimeRange{}, fmt.Errorf("parse busy start %q: %v", p.Start, err)
	}
	end, err := time.Parse(time.RFC3339, p.End)
	if err != nil {
		return interval.TimeRange{}, fmt.Errorf("parse busy end %q: %v", p.End, err)
	}
	return interval.NewTimeRange(start, end)
}

type liveQuerier struct {
	svc *gcal.Service
}

func (q *liveQuerier) Query(ctx context.Context, req *gcal.FreeBusyRequest) (*gcal.FreeBusyResponse, error) {
	return q.svc.Freebusy.Query(req).Context(ctx).Do()
}
