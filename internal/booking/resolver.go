package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/Anushkasethi/pharmacy-booking/internal/bookingref"
)

// ReferenceResolver finds the booking a caller means. Stage one is an exact
// lookup by normalized reference; stage two falls back to the patient
// identity tuple. Multiple identity matches are a distinct Ambiguous outcome,
// never silently resolved to the first hit.
type ReferenceResolver struct {
	store EventStore
}

// NewReferenceResolver builds a resolver over the given store.
func NewReferenceResolver(store EventStore) *ReferenceResolver {
	if store == nil {
		panic("booking: event store required")
	}
	return &ReferenceResolver{store: store}
}

// Resolve returns the booking for a raw reference and/or patient identity.
// Returns ErrBookingNotFound when both stages miss and ErrBookingAmbiguous
// when the identity stage matches more than one booking.
func (r *ReferenceResolver) Resolve(ctx context.Context, rawRef string, patient Patient) (*Booking, error) {
	if rawRef != "" {
		ref := bookingref.Normalize(rawRef)
		b, err := r.store.Get(ctx, ref)
		switch {
		case err == nil:
			return b, nil
		case !errors.Is(err, ErrBookingNotFound):
			return nil, fmt.Errorf("booking: resolve by reference: %w", err)
		}
	}

	if patient.Name == "" || patient.Contact == "" {
		return nil, ErrBookingNotFound
	}

	matches, err := r.store.FindByPatient(ctx, patient)
	if err != nil {
		return nil, fmt.Errorf("booking: resolve by identity: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, ErrBookingNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %d matches for %q", ErrBookingAmbiguous, len(matches), patient.Name)
	}
}
