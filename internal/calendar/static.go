package calendar

import (
	"context"
	"sync"

	"github.com/Anushkasethi/pharmacy-booking/internal/booking"
	"github.com/Anushkasethi/pharmacy-booking/internal/interval"
)

// Static serves a fixed set of busy intervals. Used when no calendar is
// configured, so the service can run locally end to end.
type Static struct {
	mu   sync.RWMutex
	busy []interval.TimeRange
}

var _ booking.AvailabilitySource = (*Static)(nil)

// NewStatic creates a source over the given busy intervals.
func NewStatic(busy ...interval.TimeRange) *Static {
	return &Static{busy: interval.Merge(busy)}
}

// QueryBusy returns the configured busy intervals overlapping the window.
func (s *Static) QueryBusy(_ context.Context, window interval.TimeRange) ([]interval.TimeRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []interval.TimeRange
	for _, b := range s.busy {
		if interval.Overlaps(window, b) {
			out = append(out, b)
		}
	}
	return out, nil
}

// SetBusy replaces the busy set.
func (s *Static) SetBusy(busy ...interval.TimeRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = interval.Merge(busy)
}
