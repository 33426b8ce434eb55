package booking

import (
	"context"

	"github.com/Anushkasethi/pharmacy-booking/internal/bookingref"
	"github.com/Anushkasethi/pharmacy-booking/internal/interval"
)

// AvailabilitySource exposes the externally owned calendar as a set of busy
// intervals. Implementations translate transport failures into
// ErrSourceUnavailable.
type AvailabilitySource interface {
	QueryBusy(ctx context.Context, window interval.TimeRange) ([]interval.TimeRange, error)
}

// UpdateFields carries the writable fields of a state-changing transition.
type UpdateFields struct {
	Range  interval.TimeRange
	Status Status
	Notes  string
}

// EventStore is the authoritative store for booking existence and range.
// Implementations return the sentinel errors from errors.go:
// Get/Update return ErrBookingNotFound; Insert returns ErrReferenceExists or
// ErrRangeConflict; Update enforces optimistic concurrency via
// expectedVersion and returns ErrVersionMismatch or ErrRangeConflict.
type EventStore interface {
	Get(ctx context.Context, ref bookingref.Reference) (*Booking, error)
	FindByPatient(ctx context.Context, patient Patient) ([]*Booking, error)
	Insert(ctx context.Context, b *Booking) error
	Update(ctx context.Context, ref bookingref.Reference, fields UpdateFields, expectedVersion int) (*Booking, error)
}

// Ledger appends audit rows. Append failures degrade the audit trail but
// never block the booking outcome; implementations may spool failed rows
// for later reconciliation and signal that with ErrLedgerWriteDegraded.
type Ledger interface {
	Append(ctx context.Context, row LedgerRow) error
}

// IdentityVerifier is a caller-supplied predicate deciding whether the
// supplied identity may act on the stored booking. Nil means no verification.
type IdentityVerifier func(supplied, stored Patient) bool
