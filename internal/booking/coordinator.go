package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Anushkasethi/pharmacy-booking/internal/bookingref"
	"github.com/Anushkasethi/pharmacy-booking/internal/interval"
	"github.com/Anushkasethi/pharmacy-booking/internal/observability/metrics"
	"github.com/Anushkasethi/pharmacy-booking/pkg/logging"
)

var coordinatorTracer = otel.Tracer("pharmacy.internal.booking")

// Coordinator drives the booking state machine:
//
//	Confirmed -> Rescheduled -> Rescheduled | Cancelled
//	Confirmed -> Cancelled
//
// It is the only writer of booking status and range. Safe to run as multiple
// stateless concurrent instances: consistency comes from idempotent
// references and the event store's own conflict detection, not from locks.
type Coordinator struct {
	store    EventStore
	source   AvailabilitySource
	ledger   Ledger
	resolver *ReferenceResolver
	loc      *time.Location
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
	now      func() time.Time
}

// NewCoordinator wires the coordinator. All collaborators are required
// except metrics, which may be nil.
func NewCoordinator(store EventStore, source AvailabilitySource, ledger Ledger, loc *time.Location, logger *logging.Logger, m *metrics.BookingMetrics) *Coordinator {
	if store == nil {
		panic("booking: event store required")
	}
	if source == nil {
		panic("booking: availability source required")
	}
	if ledger == nil {
		panic("booking: ledger required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		store:    store,
		source:   source,
		ledger:   ledger,
		resolver: NewReferenceResolver(store),
		loc:      loc,
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest carries one booking submission. IdempotencyKey is the
// caller's retry token; an empty key still yields a deterministic reference
// derived from the booking tuple.
type CreateRequest struct {
	AppointmentType string
	Patient         Patient
	Range           interval.TimeRange
	IdempotencyKey  string
	Notes           string
	Channel         string
}

// CreateResult reports the committed booking. AlreadyExisted is true when
// the request collapsed onto a prior identical submission. LedgerDegraded is
// true when the booking committed but the audit row did not.
type CreateResult struct {
	Booking        *Booking
	AlreadyExisted bool
	LedgerDegraded bool
}

// Create books an appointment exactly once. A retry carrying the same
// idempotency key resolves to the same reference before any store write, so
// duplicate submissions return the original booking instead of a second one.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	ctx, span := coordinatorTracer.Start(ctx, "booking.create")
	defer span.End()

	ref := bookingref.Generate(req.AppointmentType, req.Patient.Name, req.Patient.Contact, req.Range, req.IdempotencyKey)
	span.SetAttributes(attribute.String("pharmacy.booking_ref", string(ref)))

	existing, err := c.store.Get(ctx, ref)
	switch {
	case err == nil:
		return c.collapseDuplicateCreate(existing, req)
	case !errors.Is(err, ErrBookingNotFound):
		span.RecordError(err)
		return nil, fmt.Errorf("booking: create lookup: %w", err)
	}

	if err := c.checkAvailable(ctx, req.Range, nil); err != nil {
		c.metrics.ObserveTransition(string(TransitionCreated), "unavailable")
		return nil, err
	}

	now := c.now()
	b := &Booking{
		Reference:       ref,
		AppointmentType: req.AppointmentType,
		Patient:         req.Patient,
		Range:           req.Range,
		Status:          StatusConfirmed,
		Version:         1,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	switch err := c.store.Insert(ctx, b); {
	case err == nil:
	case errors.Is(err, ErrRangeConflict):
		// Lost the read-then-act race to a concurrent create; the store's
		// conflict detection rejects the loser.
		c.metrics.ObserveTransition(string(TransitionCreated), "lost_race")
		return nil, fmt.Errorf("%w: %v", ErrSlotNoLongerAvailable, err)
	case errors.Is(err, ErrReferenceExists):
		// A concurrent retry with the same key inserted first. Re-read and
		// collapse onto it.
		stored, getErr := c.store.Get(ctx, ref)
		if getErr != nil {
			span.RecordError(getErr)
			return nil, fmt.Errorf("booking: create re-read after conflict: %w", getErr)
		}
		return c.collapseDuplicateCreate(stored, req)
	default:
		span.RecordError(err)
		return nil, fmt.Errorf("booking: create insert: %w", err)
	}

	result := &CreateResult{Booking: b}
	result.LedgerDegraded = c.appendLedger(ctx, *b, TransitionCreated, nil, req.Channel)

	c.metrics.ObserveTransition(string(TransitionCreated), "ok")
	c.logger.Info("booking created",
		"reference", ref,
		"appointment_type", b.AppointmentType,
		"start", b.Range.Start,
		"ledger_degraded", result.LedgerDegraded,
	)
	return result, nil
}

// collapseDuplicateCreate decides whether an existing booking under the same
// reference is the same intent (idempotent replay) or a key reuse with a
// different payload (hard conflict, never silently overwritten).
func (c *Coordinator) collapseDuplicateCreate(existing *Booking, req CreateRequest) (*CreateResult, error) {
	if existing.AppointmentType == req.AppointmentType &&
		existing.Patient.Matches(req.Patient) &&
		existing.Range.Equal(req.Range) {
		c.metrics.ObserveIdempotentReplay()
		c.logger.Info("create collapsed onto existing booking", "reference", existing.Reference)
		return &CreateResult{Booking: existing, AlreadyExisted: true}, nil
	}
	c.metrics.ObserveTransition(string(TransitionCreated), "idempotency_conflict")
	return nil, fmt.Errorf("%w: reference %s", ErrIdempotencyConflict, existing.Reference)
}

// RescheduleRequest moves an existing booking to a new range, preserving its
// reference. RawReference may be imperfectly transcribed; Patient enables
// the identity fallback when the reference misses.
type RescheduleRequest struct {
	RawReference string
	Patient      Patient
	NewRange     interval.TimeRange
	Notes        string
	Channel      string
}

// RescheduleResult reports the moved booking alongside the prior range.
type RescheduleResult struct {
	Booking        *Booking
	PriorRange     interval.TimeRange
	LedgerDegraded bool
}

// Reschedule moves a booking to NewRange under the same reference.
func (c *Coordinator) Reschedule(ctx context.Context, req RescheduleRequest) (*RescheduleResult, error) {
	ctx, span := coordinatorTracer.Start(ctx, "booking.reschedule")
	defer span.End()

	b, err := c.resolver.Resolve(ctx, req.RawReference, req.Patient)
	if err != nil {
		c.metrics.ObserveTransition(string(TransitionRescheduled), "not_resolved")
		return nil, err
	}
	span.SetAttributes(attribute.String("pharmacy.booking_ref", string(b.Reference)))

	if b.Status == StatusCancelled {
		c.metrics.ObserveTransition(string(TransitionRescheduled), "already_cancelled")
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCancelled, b.Reference)
	}

	// The booking's own calendar slot must not block its own move.
	own := b.Range
	if err := c.checkAvailable(ctx, req.NewRange, &own); err != nil {
		c.metrics.ObserveTransition(string(TransitionRescheduled), "unavailable")
		return nil, err
	}

	prior := b.Range
	updated, err := c.store.Update(ctx, b.Reference, UpdateFields{
		Range:  req.NewRange,
		Status: StatusRescheduled,
		Notes:  req.Notes,
	}, b.Version)
	switch {
	case err == nil:
	case errors.Is(err, ErrRangeConflict):
		c.metrics.ObserveTransition(string(TransitionRescheduled), "lost_race")
		return nil, fmt.Errorf("%w: %v", ErrSlotNoLongerAvailable, err)
	case errors.Is(err, ErrVersionMismatch):
		// A concurrent transition won. If it was the same move, collapse the
		// duplicate; anything else surfaces as a mismatch for the caller to
		// re-read and retry.
		stored, getErr := c.store.Get(ctx, b.Reference)
		if getErr == nil && stored.Status == StatusRescheduled && stored.Range.Equal(req.NewRange) {
			c.logger.Info("reschedule collapsed onto concurrent duplicate", "reference", b.Reference)
			return &RescheduleResult{Booking: stored, PriorRange: prior}, nil
		}
		c.metrics.ObserveTransition(string(TransitionRescheduled), "version_mismatch")
		return nil, fmt.Errorf("booking: reschedule %s: %w", b.Reference, ErrVersionMismatch)
	default:
		span.RecordError(err)
		return nil, fmt.Errorf("booking: reschedule update: %w", err)
	}

	result := &RescheduleResult{Booking: updated, PriorRange: prior}
	result.LedgerDegraded = c.appendLedger(ctx, *updated, TransitionRescheduled, &prior, req.Channel)

	c.metrics.ObserveTransition(string(TransitionRescheduled), "ok")
	c.logger.Info("booking rescheduled",
		"reference", b.Reference,
		"from", prior.Start,
		"to", updated.Range.Start,
		"version", updated.Version,
	)
	return result, nil
}

// CancelRequest cancels a booking. Verify, when non-nil, must accept the
// supplied identity against the stored one before the transition runs.
type CancelRequest struct {
	RawReference string
	Patient      Patient
	Verify       IdentityVerifier
	Reason       string
	Channel      string
}

// CancelResult reports the terminal booking. AlreadyCancelled is true when
// the booking was cancelled before this call; that is a success for the
// caller and appends no new ledger row.
type CancelResult struct {
	Booking          *Booking
	AlreadyCancelled bool
	LedgerDegraded   bool
}

// Cancel marks a booking cancelled. Cancelling twice is not an error.
func (c *Coordinator) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	ctx, span := coordinatorTracer.Start(ctx, "booking.cancel")
	defer span.End()

	b, err := c.resolver.Resolve(ctx, req.RawReference, req.Patient)
	if err != nil {
		c.metrics.ObserveTransition(string(TransitionCancelled), "not_resolved")
		return nil, err
	}
	span.SetAttributes(attribute.String("pharmacy.booking_ref", string(b.Reference)))

	if req.Verify != nil && !req.Verify(req.Patient, b.Patient) {
		c.metrics.ObserveTransition(string(TransitionCancelled), "identity_mismatch")
		return nil, fmt.Errorf("%w: %s", ErrIdentityMismatch, b.Reference)
	}

	if b.Status == StatusCancelled {
		c.metrics.ObserveTransition(string(TransitionCancelled), "already_cancelled")
		return &CancelResult{Booking: b, AlreadyCancelled: true}, nil
	}

	updated, err := c.store.Update(ctx, b.Reference, UpdateFields{
		Range:  b.Range,
		Status: StatusCancelled,
		Notes:  req.Reason,
	}, b.Version)
	switch {
	case err == nil:
	case errors.Is(err, ErrVersionMismatch):
		stored, getErr := c.store.Get(ctx, b.Reference)
		if getErr == nil && stored.Status == StatusCancelled {
			return &CancelResult{Booking: stored, AlreadyCancelled: true}, nil
		}
		c.metrics.ObserveTransition(string(TransitionCancelled), "version_mismatch")
		return nil, fmt.Errorf("booking: cancel %s: %w", b.Reference, ErrVersionMismatch)
	default:
		span.RecordError(err)
		return nil, fmt.Errorf("booking: cancel update: %w", err)
	}

	result := &CancelResult{Booking: updated}
	result.LedgerDegraded = c.appendLedger(ctx, *updated, TransitionCancelled, nil, req.Channel)

	c.metrics.ObserveTransition(string(TransitionCancelled), "ok")
	c.logger.Info("booking cancelled", "reference", b.Reference, "version", updated.Version)
	return result, nil
}

// checkAvailable queries the calendar for the requested range and fails with
// ErrSlotNoLongerAvailable on conflict. excludeOwn, when non-nil, carves the
// booking's own interval out of the busy set so a reschedule is not blocked
// by the slot it is leaving.
func (c *Coordinator) checkAvailable(ctx context.Context, r interval.TimeRange, excludeOwn *interval.TimeRange) error {
	started := time.Now()
	busy, err := c.source.QueryBusy(ctx, r)
	c.metrics.ObserveBusyFetch(time.Since(started).Seconds())
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	if excludeOwn != nil {
		var carved []interval.TimeRange
		for _, b := range busy {
			carved = append(carved, interval.Subtract(b, []interval.TimeRange{*excludeOwn})...)
		}
		busy = carved
	}

	for _, b := range busy {
		if interval.Overlaps(r, b) {
			return fmt.Errorf("%w: busy %s", ErrSlotNoLongerAvailable, SpeakableRange(b, c.loc))
		}
	}
	return nil
}

// appendLedger projects and appends the audit row for a transition. A failed
// append degrades the audit trail but never rolls back the booking: an
// inconsistent audit row is recoverable by reconciliation, a lost booking is
// not. Returns true when the write degraded.
func (c *Coordinator) appendLedger(ctx context.Context, b Booking, kind TransitionKind, prior *interval.TimeRange, channel string) bool {
	row := ProjectLedgerRow(b, kind, prior, channel, c.now(), c.loc)
	if err := c.ledger.Append(ctx, row); err != nil {
		c.metrics.ObserveLedgerDegraded()
		c.logger.Warn("ledger write degraded",
			"reference", b.Reference,
			"action", kind,
			"error", err,
		)
		return true
	}
	return false
}
