package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Anushkasethi/pharmacy-booking/internal/availability"
	"github.com/Anushkasethi/pharmacy-booking/internal/booking"
	"github.com/Anushkasethi/pharmacy-booking/internal/calendar"
	"github.com/Anushkasethi/pharmacy-booking/internal/eventstore"
	"github.com/Anushkasethi/pharmacy-booking/internal/interval"
	"github.com/Anushkasethi/pharmacy-booking/internal/ledger"
)

// Monday 2026-09-07, inside business hours.
var testBase = time.Date(2026, time.September, 7, 14, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T, source booking.AvailabilitySource) *SchedulingHandler {
	t.Helper()
	store := eventstore.NewMemory()
	coord := booking.NewCoordinator(store, source, ledger.NewMemory(), time.UTC, nil, nil)
	slots := availability.NewResolver(map[string]time.Duration{
		"consultation": 30 * time.Minute,
		"flu-shot":     15 * time.Minute,
	}, 15*time.Minute, 3, availability.BusinessHours{})
	return NewSchedulingHandler(coord, slots, source, store, time.UTC, nil, nil)
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func createBody(key string) CreateBookingRequest {
	return CreateBookingRequest{
		AppointmentType: "consultation",
		PatientName:     "Maria Santos",
		PatientContact:  "+14165550101",
		Start:           testBase,
		End:             testBase.Add(30 * time.Minute),
		IdempotencyKey:  key,
		Channel:         "phone",
	}
}

func TestFindSlotsRanksAroundPreferred(t *testing.T) {
	source := calendar.NewStatic(
		interval.TimeRange{Start: testBase.Add(time.Hour), End: testBase.Add(2 * time.Hour)},
	)
	h := newTestHandler(t, source)

	preferred := testBase.Add(30 * time.Minute)
	rec := doJSON(t, h.FindSlots, http.MethodPost, "/slots/search", FindSlotsRequest{
		AppointmentType: "consultation",
		WindowStart:     testBase,
		WindowEnd:       testBase.Add(4 * time.Hour),
		Preferred:       &preferred,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	resp := decodeBody[FindSlotsResponse](t, rec)
	if resp.Reason != "ok" || len(resp.Slots) != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !resp.Slots[0].Start.Equal(preferred) {
		t.Errorf("top slot = %v, want preferred %v", resp.Slots[0].Start, preferred)
	}
	if resp.Slots[0].Speakable == "" {
		t.Error("speakable rendering missing")
	}
}

func TestFindSlotsUnsupportedType(t *testing.T) {
	h := newTestHandler(t, calendar.NewStatic())

	rec := doJSON(t, h.FindSlots, http.MethodPost, "/slots/search", FindSlotsRequest{
		AppointmentType: "tattoo",
		WindowStart:     testBase,
		WindowEnd:       testBase.Add(time.Hour),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestCreateBookingThenReplay(t *testing.T) {
	h := newTestHandler(t, calendar.NewStatic())

	first := doJSON(t, h.CreateBooking, http.MethodPost, "/bookings", createBody("call-001"))
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d, body %s", first.Code, first.Body.String())
	}
	firstResp := decodeBody[CreateBookingResponse](t, first)
	if firstResp.Booking.Reference == "" || firstResp.AlreadyExisted {
		t.Fatalf("unexpected first response: %+v", firstResp)
	}

	second := doJSON(t, h.CreateBooking, http.MethodPost, "/bookings", createBody("call-001"))
	if second.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", second.Code)
	}
	secondResp := decodeBody[CreateBookingResponse](t, second)
	if !secondResp.AlreadyExisted || secondResp.Booking.Reference != firstResp.Booking.Reference {
		t.Errorf("replay did not collapse: %+v", secondResp)
	}
}

func TestCreateBookingConflictStatuses(t *testing.T) {
	h := newTestHandler(t, calendar.NewStatic())

	if rec := doJSON(t, h.CreateBooking, http.MethodPost, "/bookings", createBody("call-001")); rec.Code != http.StatusCreated {
		t.Fatalf("seed create: %d", rec.Code)
	}

	// Same key, different slot.
	conflicting := createBody("call-001")
	conflicting.Start = testBase.Add(2 * time.Hour)
	conflicting.End = testBase.Add(2*time.Hour + 30*time.Minute)
	if rec := doJSON(t, h.CreateBooking, http.MethodPost, "/bookings", conflicting); rec.Code != http.StatusConflict {
		t.Errorf("idempotency conflict status = %d, want 409", rec.Code)
	}

	// Different patient, overlapping slot.
	overlapping := createBody("call-002")
	overlapping.PatientName = "Dev Patel"
	overlapping.PatientContact = "+14165550202"
	overlapping.Start = testBase.Add(15 * time.Minute)
	overlapping.End = testBase.Add(45 * time.Minute)
	if rec := doJSON(t, h.CreateBooking, http.MethodPost, "/bookings", overlapping); rec.Code != http.StatusConflict {
		t.Errorf("slot conflict status = %d, want 409", rec.Code)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	h := newTestHandler(t, calendar.NewStatic())

	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.CreateBooking(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}

	missing := createBody("call-001")
	missing.PatientContact = ""
	if rec := doJSON(t, h.CreateBooking, http.MethodPost, "/bookings", missing); rec.Code != http.StatusBadRequest {
		t.Errorf("missing contact status = %d, want 400", rec.Code)
	}

	inverted := createBody("call-001")
	inverted.Start, inverted.End = inverted.End, inverted.Start
	if rec := doJSON(t, h.CreateBooking, http.MethodPost, "/bookings", inverted); rec.Code != http.StatusBadRequest {
		t.Errorf("inverted range status = %d, want 400", rec.Code)
	}
}

func TestGetBookingSloppyReference(t *testing.T) {
	h := newTestHandler(t, calendar.NewStatic())

	created := decodeBody[CreateBookingResponse](t,
		doJSON(t, h.CreateBooking, http.MethodPost, "/bookings", createBody("call-001")))

	raw := strings.ToLower(strings.ReplaceAll(created.Booking.Reference, "-", "--"))
	r := chi.NewRouter()
	r.Get("/bookings/{reference}", h.GetBooking)
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/bookings/%s", raw), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[BookingResponse](t, rec)
	if got.Reference != created.Booking.Reference {
		t.Errorf("resolved %s, want %s", got.Reference, created.Booking.Reference)
	}
}

func TestRescheduleBooking(t *testing.T) {
	h := newTestHandler(t, calendar.NewStatic())

	created := decodeBody[CreateBookingResponse](t,
		doJSON(t, h.CreateBooking, http.MethodPost, "/bookings", createBody("call-001")))

	rec := doJSON(t, h.RescheduleBooking, http.MethodPost, "/bookings/reschedule", RescheduleBookingRequest{
		Reference: created.Booking.Reference,
		NewStart:  testBase.Add(2 * time.Hour),
		NewEnd:    testBase.Add(2*time.Hour + 30*time.Minute),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[RescheduleBookingResponse](t, rec)
	if resp.Booking.Status != "rescheduled" || resp.Booking.Version != 2 {
		t.Errorf("unexpected booking: %+v", resp.Booking)
	}
	if !resp.PriorStart.Equal(testBase) {
		t.Errorf("prior start = %v, want %v", resp.PriorStart, testBase)
	}
}

func TestCancelBookingTwice(t *testing.T) {
	h := newTestHandler(t, calendar.NewStatic())

	created := decodeBody[CreateBookingResponse](t,
		doJSON(t, h.CreateBooking, http.MethodPost, "/bookings", createBody("call-001")))

	first := doJSON(t, h.CancelBooking, http.MethodPost, "/bookings/cancel", CancelBookingRequest{
		Reference: created.Booking.Reference,
		Reason:    "patient request",
	})
	if first.Code != http.StatusOK {
		t.Fatalf("first cancel status = %d", first.Code)
	}
	if resp := decodeBody[CancelBookingResponse](t, first); resp.AlreadyCancelled {
		t.Error("first cancel reported already_cancelled")
	}

	second := doJSON(t, h.CancelBooking, http.MethodPost, "/bookings/cancel", CancelBookingRequest{
		Reference: created.Booking.Reference,
	})
	if second.Code != http.StatusOK {
		t.Fatalf("second cancel status = %d", second.Code)
	}
	if resp := decodeBody[CancelBookingResponse](t, second); !resp.AlreadyCancelled {
		t.Error("second cancel did not report already_cancelled")
	}
}

func TestCancelBookingIdentityMismatch(t *testing.T) {
	h := newTestHandler(t, calendar.NewStatic())

	created := decodeBody[CreateBookingResponse](t,
		doJSON(t, h.CreateBooking, http.MethodPost, "/bookings", createBody("call-001")))

	rec := doJSON(t, h.CancelBooking, http.MethodPost, "/bookings/cancel", CancelBookingRequest{
		Reference:      created.Booking.Reference,
		PatientName:    "Someone Else",
		PatientContact: "+14165550999",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestCancelUnknownBooking(t *testing.T) {
	h := newTestHandler(t, calendar.NewStatic())

	rec := doJSON(t, h.CancelBooking, http.MethodPost, "/bookings/cancel", CancelBookingRequest{
		Reference: "XX0-000",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
