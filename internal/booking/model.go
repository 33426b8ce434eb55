// Package booking coordinates the appointment lifecycle (create, reschedule,
// cancel) against an authoritative event store and an append-only ledger,
// enforcing idempotency under retried submissions. Collaborators are injected
// as capability interfaces; the package holds no global state.
package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/Anushkasethi/pharmacy-booking/internal/bookingref"
	"github.com/Anushkasethi/pharmacy-booking/internal/interval"
)

// Status is the lifecycle state of a booking. Cancelled is terminal.
type Status string

const (
	StatusConfirmed   Status = "confirmed"
	StatusRescheduled Status = "rescheduled"
	StatusCancelled   Status = "cancelled"
)

// Patient identifies who the appointment is for. Name plus contact doubles
// as the secondary lookup key when a caller cannot produce their reference.
type Patient struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// Matches compares identities ignoring case and surrounding whitespace, the
// way they come back over a voice channel.
func (p Patient) Matches(other Patient) bool {
	return strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(other.Name)) &&
		strings.TrimSpace(p.Contact) == strings.TrimSpace(other.Contact)
}

// Booking is the event-store record for one appointment. The range and
// existence live in the event store; status history lives in the ledger.
// A booking is never deleted: cancellation is a terminal status.
type Booking struct {
	Reference       bookingref.Reference
	AppointmentType string
	Patient         Patient
	Range           interval.TimeRange
	Status          Status
	Version         int
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TransitionKind names a state-changing coordinator transition.
type TransitionKind string

const (
	TransitionCreated     TransitionKind = "book"
	TransitionRescheduled TransitionKind = "reschedule"
	TransitionCancelled   TransitionKind = "cancel"
)

// SpeakableRange renders a range the way it is read to a caller:
// "Mon Sep 07, 10:30 AM – 11:00 AM" in the pharmacy's local time.
func SpeakableRange(r interval.TimeRange, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	start := r.Start.In(loc)
	end := r.End.In(loc)
	left := strings.ReplaceAll(start.Format("Mon Jan 02, 3:04 PM"), " 0", " ")
	right := strings.ReplaceAll(end.Format("3:04 PM"), " 0", " ")
	return fmt.Sprintf("%s – %s", left, right)
}
