// Package eventstore provides the authoritative booking store behind the
// coordinator: a Postgres implementation for production and an in-memory one
// for development and tests. Both enforce the same contract: unique
// references, no overlapping active ranges, optimistic concurrency by
// version.
package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Anushkasethi/pharmacy-booking/internal/booking"
	"github.com/Anushkasethi/pharmacy-booking/internal/bookingref"
	"github.com/Anushkasethi/pharmacy-booking/internal/interval"
)

// Memory is an in-memory EventStore.
type Memory struct {
	mu    sync.RWMutex
	items map[bookingref.Reference]*booking.Booking
	now   func() time.Time
}

var _ booking.EventStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[bookingref.Reference]*booking.Booking),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the booking stored under ref.
func (m *Memory) Get(_ context.Context, ref bookingref.Reference) (*booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.items[ref]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return clone(b), nil
}

// FindByPatient returns every booking matching the identity tuple, oldest
// first.
func (m *Memory) FindByPatient(_ context.Context, patient booking.Patient) ([]*booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []*booking.Booking
	for _, b := range m.items {
		if b.Patient.Matches(patient) {
			matches = append(matches, clone(b))
		}
	}
	sortByCreatedAt(matches)
	return matches, nil
}

// Insert stores a new booking. Fails with ErrReferenceExists when the
// reference is taken and ErrRangeConflict when the range overlaps another
// active booking.
func (m *Memory) Insert(_ context.Context, b *booking.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[b.Reference]; exists {
		return booking.ErrReferenceExists
	}
	if m.overlapsActiveLocked(b.Range, b.Reference) {
		return booking.ErrRangeConflict
	}
	m.items[b.Reference] = clone(b)
	return nil
}

// Update applies fields under optimistic concurrency.
func (m *Memory) Update(_ context.Context, ref bookingref.Reference, fields booking.UpdateFields, expectedVersion int) (*booking.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.items[ref]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	if b.Version != expectedVersion {
		return nil, booking.ErrVersionMismatch
	}
	if fields.Status != booking.StatusCancelled && m.overlapsActiveLocked(fields.Range, ref) {
		return nil, booking.ErrRangeConflict
	}

	b.Range = fields.Range
	b.Status = fields.Status
	if fields.Notes != "" {
		b.Notes = fields.Notes
	}
	b.Version++
	b.UpdatedAt = m.now()
	return clone(b), nil
}

func (m *Memory) overlapsActiveLocked(r interval.TimeRange, except bookingref.Reference) bool {
	for ref, b := range m.items {
		if ref == except || b.Status == booking.StatusCancelled {
			continue
		}
		if interval.Overlaps(r, b.Range) {
			return true
		}
	}
	return false
}

func clone(b *booking.Booking) *booking.Booking {
	c := *b
	return &c
}

func sortByCreatedAt(bs []*booking.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		return bs[i].CreatedAt.Before(bs[j].CreatedAt)
	})
}
