// Package ledger provides the append-only audit trail behind the booking
// coordinator: a Google Sheets adapter for production, an in-memory ledger for
// development and tests, an SQS spool that captures rows the sheet rejected,
// and a reconciler that replays the spool. Ledger writes degrade, they never
// fail a booking.
package ledger

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/sheets/v4"

	"github.com/Anushkasethi/pharmacy-booking/internal/booking"
)

// sheetsValuesAppender is the slice of the Sheets API the adapter calls;
// narrow so tests can fake it without credentials.
type sheetsValuesAppender interface {
	Append(ctx context.Context, spreadsheetID, writeRange string, vr *sheets.ValueRange) error
}

// Sheets appends one spreadsheet row per lifecycle transition. Rows are only
// ever appended, matching how the pharmacy staff audit the sheet by hand.
type Sheets struct {
	appender      sheetsValuesAppender
	spreadsheetID string
	writeRange    string
	loc           *time.Location
}

var _ booking.Ledger = (*Sheets)(nil)

// NewSheets creates the adapter over a Sheets service.
func NewSheets(svc *sheets.Service, spreadsheetID, writeRange string, loc *time.Location) *Sheets {
	if svc == nil {
		panic("ledger: sheets service cannot be nil")
	}
	if spreadsheetID == "" {
		panic("ledger: spreadsheet ID cannot be empty")
	}
	return newSheets(&liveAppender{svc: svc}, spreadsheetID, writeRange, loc)
}

func newSheets(appender sheetsValuesAppender, spreadsheetID, writeRange string, loc *time.Location) *Sheets {
	if writeRange == "" {
		writeRange = "Bookings!A2:K"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Sheets{
		appender:      appender,
		spreadsheetID: spreadsheetID,
		writeRange:    writeRange,
		loc:           loc,
	}
}

// Append writes one row to the sheet.
func (s *Sheets) Append(ctx context.Context, row booking.LedgerRow) error {
	vr := &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(row)},
	}
	if err := s.appender.Append(ctx, s.spreadsheetID, s.writeRange, vr); err != nil {
		return fmt.Errorf("ledger: sheets append: %w", err)
	}
	return nil
}

// rowValues lays the row out in the sheet's column order, columns A through K.
func (s *Sheets) rowValues(row booking.LedgerRow) []interface{} {
	return []interface{}{
		row.LoggedAt.In(s.loc).Format(time.RFC3339),
		string(row.Reference),
		string(row.Action),
		row.AppointmentType,
		row.Start.In(s.loc).Format("2006-01-02 15:04"),
		row.End.In(s.loc).Format("2006-01-02 15:04"),
		row.PatientDisplay,
		row.Contact,
		row.Channel,
		row.Notes,
		string(row.Status),
	}
}

type liveAppender struct {
	svc *sheets.Service
}

func (a *liveAppender) Append(ctx context.Context, spreadsheetID, writeRange string, vr *sheets.ValueRange) error {
	_, err := a.svc.Spreadsheets.Values.Append(spreadsheetID, writeRange, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}
