package ledger

import (
	"context"
	"sync"

	"github.com/Anushkasethi/pharmacy-booking/internal/booking"
)

// Memory is an in-memory ledger for development and tests.
type Memory struct {
	mu   sync.Mutex
	rows []booking.LedgerRow
}

var _ booking.Ledger = (*Memory)(nil)

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{}
}

// Append records the row.
func (m *Memory) Append(_ context.Context, row booking.LedgerRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	return nil
}

// Rows returns a copy of everything appended so far, in append order.
func (m *Memory) Rows() []booking.LedgerRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]booking.LedgerRow, len(m.rows))
	copy(out, m.rows)
	return out
}
