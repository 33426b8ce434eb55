// Package handlers exposes the booking coordinator over JSON HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Anushkasethi/pharmacy-booking/internal/availability"
	"github.com/Anushkasethi/pharmacy-booking/internal/booking"
	"github.com/Anushkasethi/pharmacy-booking/internal/interval"
	"github.com/Anushkasethi/pharmacy-booking/internal/observability/metrics"
	"github.com/Anushkasethi/pharmacy-booking/pkg/logging"
)

// SchedulingHandler handles slot search and booking lifecycle requests.
type SchedulingHandler struct {
	coordinator *booking.Coordinator
	slots       *availability.Resolver
	source      booking.AvailabilitySource
	resolver    *booking.ReferenceResolver
	loc         *time.Location
	logger      *logging.Logger
	metrics     *metrics.BookingMetrics
}

// NewSchedulingHandler creates the handler. metrics may be nil.
func NewSchedulingHandler(
	coordinator *booking.Coordinator,
	slots *availability.Resolver,
	source booking.AvailabilitySource,
	store booking.EventStore,
	loc *time.Location,
	logger *logging.Logger,
	m *metrics.BookingMetrics,
) *SchedulingHandler {
	if coordinator == nil {
		panic("handlers: coordinator cannot be nil")
	}
	if slots == nil {
		panic("handlers: slot resolver cannot be nil")
	}
	if source == nil {
		panic("handlers: availability source cannot be nil")
	}
	if store == nil {
		panic("handlers: event store cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SchedulingHandler{
		coordinator: coordinator,
		slots:       slots,
		source:      source,
		resolver:    booking.NewReferenceResolver(store),
		loc:         loc,
		logger:      logger,
		metrics:     m,
	}
}

// HealthCheck handles GET /health.
func (h *SchedulingHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// FindSlotsRequest is the body for POST /slots/search.
type FindSlotsRequest struct {
	AppointmentType string     `json:"appointment_type"`
	WindowStart     time.Time  `json:"window_start"`
	WindowEnd       time.Time  `json:"window_end"`
	Preferred       *time.Time `json:"preferred,omitempty"`
}

// SlotResponse is one candidate slot in a search response.
type SlotResponse struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Rank      int       `json:"rank"`
	Speakable string    `json:"speakable"`
}

// FindSlotsResponse is the response for POST /slots/search.
type FindSlotsResponse struct {
	Slots           []SlotResponse `json:"slots"`
	Reason          string         `json:"reason"`
	TotalCandidates int            `json:"total_candidates"`
}

// FindSlots handles POST /slots/search.
func (h *SchedulingHandler) FindSlots(w http.ResponseWriter, r *http.Request) {
	var req FindSlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AppointmentType == "" {
		http.Error(w, "appointment_type is required", http.StatusBadRequest)
		return
	}

	window, err := interval.NewTimeRange(req.WindowStart, req.WindowEnd)
	if err != nil {
		http.Error(w, "window_start must be before window_end", http.StatusBadRequest)
		return
	}

	busy, err := h.source.QueryBusy(r.Context(), window)
	if err != nil {
		h.logger.Error("availability source query failed", "error", err)
		h.writeBookingError(w, err)
		return
	}

	result, err := h.slots.Resolve(availability.Request{
		AppointmentType: req.AppointmentType,
		Window:          window,
		Preferred:       req.Preferred,
		Busy:            busy,
	})
	if err != nil {
		switch {
		case errors.Is(err, availability.ErrUnsupportedAppointmentType):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, availability.ErrInvalidWindow):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("slot resolution failed", "error", err)
			http.Error(w, "slot resolution failed", http.StatusInternalServerError)
		}
		return
	}
	h.metrics.ObserveSlotQuery(string(result.Reason))

	resp := FindSlotsResponse{
		Slots:           make([]SlotResponse, 0, len(result.Slots)),
		Reason:          string(result.Reason),
		TotalCandidates: result.TotalCandidates,
	}
	for _, slot := range result.Slots {
		resp.Slots = append(resp.Slots, SlotResponse{
			Start:     slot.Range.Start,
			End:       slot.Range.End,
			Rank:      slot.Rank,
			Speakable: booking.SpeakableRange(slot.Range, h.loc),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateBookingRequest is the body for POST /bookings.
type CreateBookingRequest struct {
	AppointmentType string    `json:"appointment_type"`
	PatientName     string    `json:"patient_name"`
	PatientContact  string    `json:"patient_contact"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	IdempotencyKey  string    `json:"idempotency_key,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	Channel         string    `json:"channel,omitempty"`
}

// BookingResponse is the wire shape of a booking.
type BookingResponse struct {
	Reference       string    `json:"reference"`
	AppointmentType string    `json:"appointment_type"`
	PatientName     string    `json:"patient_name"`
	PatientContact  string    `json:"patient_contact"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Status          string    `json:"status"`
	Version         int       `json:"version"`
	Notes           string    `json:"notes,omitempty"`
	Speakable       string    `json:"speakable"`
}

// CreateBookingResponse is the response for POST /bookings.
type CreateBookingResponse struct {
	Booking        BookingResponse `json:"booking"`
	AlreadyExisted bool            `json:"already_existed"`
	LedgerDegraded bool            `json:"ledger_degraded,omitempty"`
}

// CreateBooking handles POST /bookings.
func (h *SchedulingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AppointmentType == "" || req.PatientName == "" || req.PatientContact == "" {
		http.Error(w, "appointment_type, patient_name and patient_contact are required", http.StatusBadRequest)
		return
	}
	rng, err := interval.NewTimeRange(req.Start, req.End)
	if err != nil {
		http.Error(w, "start must be before end", http.StatusBadRequest)
		return
	}

	res, err := h.coordinator.Create(r.Context(), booking.CreateRequest{
		AppointmentType: req.AppointmentType,
		Patient:         booking.Patient{Name: req.PatientName, Contact: req.PatientContact},
		Range:           rng,
		IdempotencyKey:  req.IdempotencyKey,
		Notes:           req.Notes,
		Channel:         channelOrDefault(req.Channel),
	})
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	status := http.StatusCreated
	if res.AlreadyExisted {
		status = http.StatusOK
	}
	writeJSON(w, status, CreateBookingResponse{
		Booking:        h.bookingResponse(res.Booking),
		AlreadyExisted: res.AlreadyExisted,
		LedgerDegraded: res.LedgerDegraded,
	})
}

// GetBooking handles GET /bookings/{reference}.
func (h *SchedulingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "reference")
	b, err := h.resolver.Resolve(r.Context(), raw, booking.Patient{
		Name:    r.URL.Query().Get("patient_name"),
		Contact: r.URL.Query().Get("patient_contact"),
	})
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.bookingResponse(b))
}

// RescheduleBookingRequest is the body for POST /bookings/reschedule.
type RescheduleBookingRequest struct {
	Reference      string    `json:"reference"`
	PatientName    string    `json:"patient_name,omitempty"`
	PatientContact string    `json:"patient_contact,omitempty"`
	NewStart       time.Time `json:"new_start"`
	NewEnd         time.Time `json:"new_end"`
	Notes          string    `json:"notes,omitempty"`
	Channel        string    `json:"channel,omitempty"`
}

// RescheduleBookingResponse is the response for POST /bookings/reschedule.
type RescheduleBookingResponse struct {
	Booking        BookingResponse `json:"booking"`
	PriorStart     time.Time       `json:"prior_start"`
	PriorEnd       time.Time       `json:"prior_end"`
	LedgerDegraded bool            `json:"ledger_degraded,omitempty"`
}

// RescheduleBooking handles POST /bookings/reschedule.
func (h *SchedulingHandler) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	var req RescheduleBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reference == "" && (req.PatientName == "" || req.PatientContact == "") {
		http.Error(w, "reference or patient identity is required", http.StatusBadRequest)
		return
	}
	newRange, err := interval.NewTimeRange(req.NewStart, req.NewEnd)
	if err != nil {
		http.Error(w, "new_start must be before new_end", http.StatusBadRequest)
		return
	}

	res, err := h.coordinator.Reschedule(r.Context(), booking.RescheduleRequest{
		RawReference: req.Reference,
		Patient:      booking.Patient{Name: req.PatientName, Contact: req.PatientContact},
		NewRange:     newRange,
		Notes:        req.Notes,
		Channel:      channelOrDefault(req.Channel),
	})
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RescheduleBookingResponse{
		Booking:        h.bookingResponse(res.Booking),
		PriorStart:     res.PriorRange.Start,
		PriorEnd:       res.PriorRange.End,
		LedgerDegraded: res.LedgerDegraded,
	})
}

// CancelBookingRequest is the body for POST /bookings/cancel.
type CancelBookingRequest struct {
	Reference      string `json:"reference"`
	PatientName    string `json:"patient_name,omitempty"`
	PatientContact string `json:"patient_contact,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Channel        string `json:"channel,omitempty"`
}

// CancelBookingResponse is the response for POST /bookings/cancel.
type CancelBookingResponse struct {
	Booking          BookingResponse `json:"booking"`
	AlreadyCancelled bool            `json:"already_cancelled"`
	LedgerDegraded   bool            `json:"ledger_degraded,omitempty"`
}

// CancelBooking handles POST /bookings/cancel. When the caller supplies a
// patient identity it must match the stored one before the cancel runs.
func (h *SchedulingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req CancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reference == "" && (req.PatientName == "" || req.PatientContact == "") {
		http.Error(w, "reference or patient identity is required", http.StatusBadRequest)
		return
	}

	var verify booking.IdentityVerifier
	if req.PatientName != "" || req.PatientContact != "" {
		verify = func(supplied, stored booking.Patient) bool {
			return supplied.Matches(stored)
		}
	}

	res, err := h.coordinator.Cancel(r.Context(), booking.CancelRequest{
		RawReference: req.Reference,
		Patient:      booking.Patient{Name: req.PatientName, Contact: req.PatientContact},
		Verify:       verify,
		Reason:       req.Reason,
		Channel:      channelOrDefault(req.Channel),
	})
	if err != nil {
		h.writeBookingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CancelBookingResponse{
		Booking:          h.bookingResponse(res.Booking),
		AlreadyCancelled: res.AlreadyCancelled,
		LedgerDegraded:   res.LedgerDegraded,
	})
}

func (h *SchedulingHandler) bookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		Reference:       string(b.Reference),
		AppointmentType: b.AppointmentType,
		PatientName:     b.Patient.Name,
		PatientContact:  b.Patient.Contact,
		Start:           b.Range.Start,
		End:             b.Range.End,
		Status:          string(b.Status),
		Version:         b.Version,
		Notes:           b.Notes,
		Speakable:       booking.SpeakableRange(b.Range, h.loc),
	}
}

// writeBookingError maps the coordinator's error taxonomy onto HTTP statuses.
func (h *SchedulingHandler) writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrBookingNotFound):
		http.Error(w, "booking not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrBookingAmbiguous):
		http.Error(w, "multiple bookings match; supply the booking reference", http.StatusConflict)
	case errors.Is(err, booking.ErrSlotNoLongerAvailable):
		http.Error(w, "slot no longer available", http.StatusConflict)
	case errors.Is(err, booking.ErrIdempotencyConflict):
		http.Error(w, "idempotency key already used for a different booking", http.StatusConflict)
	case errors.Is(err, booking.ErrVersionMismatch):
		http.Error(w, "booking changed concurrently; re-read and retry", http.StatusConflict)
	case errors.Is(err, booking.ErrAlreadyCancelled):
		http.Error(w, "booking is cancelled", http.StatusGone)
	case errors.Is(err, booking.ErrIdentityMismatch):
		http.Error(w, "patient identity does not match the booking", http.StatusForbidden)
	case errors.Is(err, booking.ErrSourceUnavailable):
		http.Error(w, "availability source unavailable; try again shortly", http.StatusServiceUnavailable)
	default:
		h.logger.Error("booking request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func channelOrDefault(channel string) string {
	if channel == "" {
		return "api"
	}
	return channel
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
