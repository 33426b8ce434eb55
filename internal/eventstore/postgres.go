package eventstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Anushkasethi/pharmacy-booking/internal/booking"
	"github.com/Anushkasethi/pharmacy-booking/internal/bookingref"
)

// Postgres error codes the store contract depends on.
const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

// PgxIface is the subset of pgxpool.Pool the store uses; pgxmock satisfies
// it in tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores bookings in the bookings table. The table's exclusion
// constraint on the active time range is what rejects the loser of the
// create race, so no in-process locking is needed anywhere above this.
type Postgres struct {
	db PgxIface
}

var _ booking.EventStore = (*Postgres)(nil)

// NewPostgres creates a store backed by a pgx pool (or mock).
func NewPostgres(db PgxIface) *Postgres {
	if db == nil {
		panic("eventstore: pgx pool required")
	}
	return &Postgres{db: db}
}

const bookingColumns = `reference, appointment_type, patient_name, patient_contact,
	start_at, end_at, status, version, notes, created_at, updated_at`

// Get fetches a booking by canonical reference.
func (s *Postgres) Get(ctx context.Context, ref bookingref.Reference) (*booking.Booking, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE reference = $1
	`, string(ref))

	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("eventstore: get: %w", err)
	}
	return b, nil
}

// FindByPatient returns bookings matching the identity tuple, oldest first.
func (s *Postgres) FindByPatient(ctx context.Context, patient booking.Patient) ([]*booking.Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE lower(patient_name) = lower(trim($1)) AND patient_contact = trim($2)
		ORDER BY created_at
	`, patient.Name, patient.Contact)
	if err != nil {
		return nil, fmt.Errorf("eventstore: find by patient: %w", err)
	}
	defer rows.Close()

	var matches []*booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("eventstore: find by patient scan: %w", err)
		}
		matches = append(matches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: find by patient rows: %w", err)
	}
	return matches, nil
}

// Insert writes a new booking row. The primary key rejects duplicate
// references; the range exclusion constraint rejects overlapping active
// bookings.
func (s *Postgres) Insert(ctx context.Context, b *booking.Booking) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO bookings (reference, appointment_type, patient_name, patient_contact,
			start_at, end_at, status, version, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		string(b.Reference), b.AppointmentType, b.Patient.Name, b.Patient.Contact,
		b.Range.Start, b.Range.End, string(b.Status), b.Version, b.Notes,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		switch pgErrCode(err) {
		case pgUniqueViolation:
			return booking.ErrReferenceExists
		case pgExclusionViolation:
			return booking.ErrRangeConflict
		}
		return fmt.Errorf("eventstore: insert: %w", err)
	}
	return nil
}

// Update applies a transition guarded by the expected version.
func (s *Postgres) Update(ctx context.Context, ref bookingref.Reference, fields booking.UpdateFields, expectedVersion int) (*booking.Booking, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE bookings
		SET start_at = $2,
			end_at = $3,
			status = $4,
			notes = CASE WHEN $5 <> '' THEN $5 ELSE notes END,
			version = version + 1,
			updated_at = now()
		WHERE reference = $1 AND version = $6
		RETURNING `+bookingColumns+`
	`, string(ref), fields.Range.Start, fields.Range.End, string(fields.Status), fields.Notes, expectedVersion)

	b, err := scanBooking(row)
	if err == nil {
		return b, nil
	}
	if code := pgErrCode(err); code == pgExclusionViolation {
		return nil, booking.ErrRangeConflict
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("eventstore: update: %w", err)
	}

	// No row matched: distinguish a missing booking from a stale version.
	var current int
	if err := s.db.QueryRow(ctx, `SELECT version FROM bookings WHERE reference = $1`, string(ref)).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("eventstore: update version check: %w", err)
	}
	return nil, fmt.Errorf("%w: have %d, expected %d", booking.ErrVersionMismatch, current, expectedVersion)
}

func scanBooking(row pgx.Row) (*booking.Booking, error) {
	var (
		b      booking.Booking
		ref    string
		status string
	)
	err := row.Scan(
		&ref, &b.AppointmentType, &b.Patient.Name, &b.Patient.Contact,
		&b.Range.Start, &b.Range.End, &status, &b.Version, &b.Notes,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Reference = bookingref.Reference(ref)
	b.Status = booking.Status(status)
	return &b, nil
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
