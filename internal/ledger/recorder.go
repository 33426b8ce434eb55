package ledger

import (
	"context"
	"fmt"

	"github.com/Anushkasethi/pharmacy-booking/internal/booking"
	"github.com/Anushkasethi/pharmacy-booking/pkg/logging"
)

// Recorder fronts the primary ledger with a spool. A failed append parks the
// row on the spool and reports the degradation; the booking transition that
// produced the row has already committed and is never rolled back.
type Recorder struct {
	primary booking.Ledger
	spool   Spool
	logger  *logging.Logger
}

var _ booking.Ledger = (*Recorder)(nil)

// NewRecorder wires the recorder. spool may be nil, in which case a failed
// append only reports the degradation.
func NewRecorder(primary booking.Ledger, spool Spool, logger *logging.Logger) *Recorder {
	if primary == nil {
		panic("ledger: primary ledger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{
		primary: primary,
		spool:   spool,
		logger:  logger,
	}
}

// Append writes the row to the primary ledger, spooling it on failure. The
// returned error always wraps ErrLedgerWriteDegraded when the primary write
// failed, whether or not the spool captured the row.
func (r *Recorder) Append(ctx context.Context, row booking.LedgerRow) error {
	primaryErr := r.primary.Append(ctx, row)
	if primaryErr == nil {
		return nil
	}

	if r.spool == nil {
		return fmt.Errorf("%w: %v", booking.ErrLedgerWriteDegraded, primaryErr)
	}

	if spoolErr := r.spool.Enqueue(ctx, row); spoolErr != nil {
		r.logger.Error("ledger row lost: primary and spool both failed",
			"reference", row.Reference,
			"action", row.Action,
			"primary_error", primaryErr,
			"spool_error", spoolErr,
		)
		return fmt.Errorf("%w: primary: %v; spool: %v", booking.ErrLedgerWriteDegraded, primaryErr, spoolErr)
	}

	r.logger.Warn("ledger row spooled for reconciliation",
		"reference", row.Reference,
		"action", row.Action,
		"primary_error", primaryErr,
	)
	return fmt.Errorf("%w: row spooled: %v", booking.ErrLedgerWriteDegraded, primaryErr)
}
