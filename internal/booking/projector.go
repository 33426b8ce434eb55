package booking

import (
	"fmt"
	"time"

	"github.com/Anushkasethi/pharmacy-booking/internal/bookingref"
	"github.com/Anushkasethi/pharmacy-booking/internal/interval"
)

// LedgerRow is the human-auditable record of one lifecycle transition,
// shaped for an append-only spreadsheet: one row per transition, local
// times spelled out, free-text notes preserved.
type LedgerRow struct {
	LoggedAt        time.Time            `json:"logged_at"`
	Reference       bookingref.Reference `json:"reference"`
	Action          TransitionKind       `json:"action"`
	AppointmentType string               `json:"appointment_type"`
	Start           time.Time            `json:"start"`
	End             time.Time            `json:"end"`
	PatientDisplay  string               `json:"patient_display"`
	Contact         string               `json:"contact"`
	Channel         string               `json:"channel"`
	Notes           string               `json:"notes"`
	Status          Status               `json:"status"`
	RangeDisplay    string               `json:"range_display"`
}

// ProjectLedgerRow shapes the audit row for a coordinator transition. Pure:
// it only derives data, the coordinator owns the actual append. priorRange
// is non-nil for reschedules so the row records where the booking moved from.
func ProjectLedgerRow(b Booking, kind TransitionKind, priorRange *interval.TimeRange, channel string, now time.Time, loc *time.Location) LedgerRow {
	notes := b.Notes
	switch kind {
	case TransitionRescheduled:
		if priorRange != nil {
			moved := fmt.Sprintf("rescheduled from %s", SpeakableRange(*priorRange, loc))
			if notes != "" {
				notes = moved + ". " + notes
			} else {
				notes = moved
			}
		}
	case TransitionCancelled:
		if notes != "" {
			notes = "cancelled: " + notes
		}
	}

	return LedgerRow{
		LoggedAt:        now.UTC(),
		Reference:       b.Reference,
		Action:          kind,
		AppointmentType: b.AppointmentType,
		Start:           b.Range.Start,
		End:             b.Range.End,
		PatientDisplay:  b.Patient.Name,
		Contact:         b.Patient.Contact,
		Channel:         channel,
		Notes:           notes,
		Status:          b.Status,
		RangeDisplay:    SpeakableRange(b.Range, loc),
	}
}
