package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/api/sheets/v4"

	"github.com/Anushkasethi/pharmacy-booking/internal/booking"
	"github.com/Anushkasethi/pharmacy-booking/internal/interval"
)

func sampleRow() booking.LedgerRow {
	start := time.Date(2026, time.September, 7, 14, 30, 0, 0, time.UTC)
	return booking.ProjectLedgerRow(booking.Booking{
		Reference:       "4F2-A9C",
		AppointmentType: "consultation",
		Patient:         booking.Patient{Name: "Maria Santos", Contact: "+14165550101"},
		Range:           interval.TimeRange{Start: start, End: start.Add(30 * time.Minute)},
		Status:          booking.StatusConfirmed,
	}, booking.TransitionCreated, nil, "phone", start, time.UTC)
}

// failingLedger always rejects appends.
type failingLedger struct {
	err error
}

func (l *failingLedger) Append(_ context.Context, _ booking.LedgerRow) error { return l.err }

// fakeSpool is an in-memory Spool for recorder and reconciler tests.
type fakeSpool struct {
	queue      []SpooledRow
	enqueueErr error
	acked      []string
	seq        int
}

func (s *fakeSpool) Enqueue(_ context.Context, row booking.LedgerRow) error {
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.seq++
	s.queue = append(s.queue, SpooledRow{Row: row, Receipt: fmt.Sprintf("receipt-%d", s.seq)})
	return nil
}

func (s *fakeSpool) Dequeue(_ context.Context, max int) ([]SpooledRow, error) {
	n := len(s.queue)
	if n > max {
		n = max
	}
	batch := make([]SpooledRow, n)
	copy(batch, s.queue[:n])
	return batch, nil
}

func (s *fakeSpool) Ack(_ context.Context, receipt string) error {
	s.acked = append(s.acked, receipt)
	for i, r := range s.queue {
		if r.Receipt == receipt {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	return nil
}

func TestRecorderPassesThroughOnSuccess(t *testing.T) {
	primary := NewMemory()
	spool := &fakeSpool{}
	rec := NewRecorder(primary, spool, nil)

	if err := rec.Append(context.Background(), sampleRow()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(primary.Rows()) != 1 {
		t.Errorf("primary rows = %d, want 1", len(primary.Rows()))
	}
	if len(spool.queue) != 0 {
		t.Errorf("row spooled despite primary success")
	}
}

func TestRecorderSpoolsOnPrimaryFailure(t *testing.T) {
	spool := &fakeSpool{}
	rec := NewRecorder(&failingLedger{err: errors.New("sheets: quota exceeded")}, spool, nil)

	err := rec.Append(context.Background(), sampleRow())
	if !errors.Is(err, booking.ErrLedgerWriteDegraded) {
		t.Fatalf("expected ErrLedgerWriteDegraded, got %v", err)
	}
	if len(spool.queue) != 1 {
		t.Fatalf("spooled rows = %d, want 1", len(spool.queue))
	}
	if spool.queue[0].Row.Reference != "4F2-A9C" {
		t.Errorf("spooled row: %+v", spool.queue[0].Row)
	}
}

func TestRecorderDegradesWhenSpoolAlsoFails(t *testing.T) {
	spool := &fakeSpool{enqueueErr: errors.New("sqs: unreachable")}
	rec := NewRecorder(&failingLedger{err: errors.New("sheets: 503")}, spool, nil)

	err := rec.Append(context.Background(), sampleRow())
	if !errors.Is(err, booking.ErrLedgerWriteDegraded) {
		t.Fatalf("expected ErrLedgerWriteDegraded, got %v", err)
	}
}

func TestReconcilerReplaysSpool(t *testing.T) {
	primary := NewMemory()
	spool := &fakeSpool{}
	for i := 0; i < 3; i++ {
		if err := spool.Enqueue(context.Background(), sampleRow()); err != nil {
			t.Fatalf("seed spool: %v", err)
		}
	}

	rec := NewReconciler(primary, spool, nil)
	replayed, err := rec.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if replayed != 3 {
		t.Errorf("replayed = %d, want 3", replayed)
	}
	if len(primary.Rows()) != 3 {
		t.Errorf("primary rows = %d, want 3", len(primary.Rows()))
	}
	if len(spool.queue) != 0 {
		t.Errorf("spool not drained: %d rows left", len(spool.queue))
	}
}

func TestReconcilerStopsWhenPrimaryStillDown(t *testing.T) {
	spool := &fakeSpool{}
	if err := spool.Enqueue(context.Background(), sampleRow()); err != nil {
		t.Fatalf("seed spool: %v", err)
	}

	rec := NewReconciler(&failingLedger{err: errors.New("sheets: still down")}, spool, nil)
	replayed, err := rec.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected replay error")
	}
	if replayed != 0 {
		t.Errorf("replayed = %d, want 0", replayed)
	}
	if len(spool.queue) != 1 {
		t.Errorf("row lost from spool: %d rows left", len(spool.queue))
	}
}

// capturingAppender records what the Sheets adapter would send.
type capturingAppender struct {
	spreadsheetID string
	writeRange    string
	values        [][]interface{}
	err           error
}

func (a *capturingAppender) Append(_ context.Context, spreadsheetID, writeRange string, vr *sheets.ValueRange) error {
	if a.err != nil {
		return a.err
	}
	a.spreadsheetID = spreadsheetID
	a.writeRange = writeRange
	a.values = vr.Values
	return nil
}

func TestSheetsRowLayout(t *testing.T) {
	appender := &capturingAppender{}
	s := newSheets(appender, "sheet-123", "", time.UTC)

	if err := s.Append(context.Background(), sampleRow()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if appender.spreadsheetID != "sheet-123" || appender.writeRange != "Bookings!A2:K" {
		t.Errorf("append target: %s %s", appender.spreadsheetID, appender.writeRange)
	}
	if len(appender.values) != 1 {
		t.Fatalf("values = %d rows, want 1", len(appender.values))
	}
	row := appender.values[0]
	if len(row) != 11 {
		t.Fatalf("row has %d columns, want 11", len(row))
	}
	if row[1] != "4F2-A9C" || row[2] != "book" || row[10] != "confirmed" {
		t.Errorf("row layout: %v", row)
	}
	if row[4] != "2026-09-07 14:30" {
		t.Errorf("start column: %v", row[4])
	}
}

func TestSheetsAppendErrorWrapped(t *testing.T) {
	appender := &capturingAppender{err: errors.New("googleapi: 429")}
	s := newSheets(appender, "sheet-123", "", time.UTC)

	if err := s.Append(context.Background(), sampleRow()); err == nil {
		t.Fatal("expected append error")
	}
}
