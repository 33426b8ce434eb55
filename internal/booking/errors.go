package booking

import "errors"

// Error taxonomy for coordinator operations. Validation and state errors are
// returned immediately; collaborator failures are translated at each adapter
// boundary and never leaked as raw transport errors. Nothing here retries:
// retry is the caller's decision, made safe by the idempotency guarantees.
var (
	// ErrSlotNoLongerAvailable means the requested range conflicts with a
	// busy interval or lost the insert race. The caller should re-offer slots.
	ErrSlotNoLongerAvailable = errors.New("booking: slot no longer available")

	// ErrIdempotencyConflict means a create carried an idempotency key that
	// already produced a booking with a different payload. Never auto-resolved.
	ErrIdempotencyConflict = errors.New("booking: idempotency key reused with different payload")

	// ErrBookingNotFound means neither the reference nor the patient identity
	// resolved to a known booking.
	ErrBookingNotFound = errors.New("booking: not found")

	// ErrBookingAmbiguous means the identity fallback matched more than one
	// booking. Surfaced as its own outcome, never resolved to the first match.
	ErrBookingAmbiguous = errors.New("booking: identity matches multiple bookings")

	// ErrIdentityMismatch means a caller-supplied verification predicate
	// rejected the supplied patient identity.
	ErrIdentityMismatch = errors.New("booking: identity verification failed")

	// ErrAlreadyCancelled means a state-changing transition was attempted on
	// a cancelled booking. Cancelled is terminal.
	ErrAlreadyCancelled = errors.New("booking: already cancelled")

	// ErrSourceUnavailable means the availability source failed. Not retried
	// within a single call.
	ErrSourceUnavailable = errors.New("booking: availability source unavailable")

	// ErrLedgerWriteDegraded means the booking outcome committed but the
	// audit row did not. Surfaced as a warning, never as an operation failure.
	ErrLedgerWriteDegraded = errors.New("booking: ledger write degraded")
)

// Event-store outcome errors. Implementations translate their native
// failures into these so every call site handles the same branches.
var (
	// ErrReferenceExists is returned by Insert when the reference is taken.
	ErrReferenceExists = errors.New("booking: reference already exists")

	// ErrRangeConflict is returned by Insert or Update when the store's own
	// conflict detection rejects an overlapping active range.
	ErrRangeConflict = errors.New("booking: range conflicts with an existing booking")

	// ErrVersionMismatch is returned by Update when expectedVersion is stale.
	ErrVersionMismatch = errors.New("booking: version mismatch")
)
