package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/Anushkasethi/pharmacy-booking/internal/booking"
	"github.com/Anushkasethi/pharmacy-booking/pkg/logging"
)

// Reconciler drains the spool back into the primary ledger. Rows that fail to
// replay stay on the spool for the next pass, so the audit trail converges
// once the primary recovers.
type Reconciler struct {
	primary   booking.Ledger
	spool     Spool
	logger    *logging.Logger
	batchSize int
}

// NewReconciler wires the reconciler.
func NewReconciler(primary booking.Ledger, spool Spool, logger *logging.Logger) *Reconciler {
	if primary == nil {
		panic("ledger: primary ledger cannot be nil")
	}
	if spool == nil {
		panic("ledger: spool cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		primary:   primary,
		spool:     spool,
		logger:    logger,
		batchSize: 10,
	}
}

// RunOnce replays one batch of spooled rows. Returns the number of rows that
// reached the primary ledger. A primary failure stops the batch: there is no
// point hammering a ledger that is still down.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	rows, err := r.spool.Dequeue(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("ledger: reconcile dequeue: %w", err)
	}

	replayed := 0
	for _, spooled := range rows {
		if err := r.primary.Append(ctx, spooled.Row); err != nil {
			return replayed, fmt.Errorf("ledger: reconcile replay %s: %w", spooled.Row.Reference, err)
		}
		if err := r.spool.Ack(ctx, spooled.Receipt); err != nil {
			// The row is on the sheet; an unacked duplicate replay is
			// tolerable, a lost row is not.
			r.logger.Warn("spooled row replayed but not acked", "reference", spooled.Row.Reference, "error", err)
		}
		replayed++
		r.logger.Info("spooled ledger row replayed",
			"reference", spooled.Row.Reference,
			"action", spooled.Row.Action,
		)
	}
	return replayed, nil
}

// Run replays batches until ctx is cancelled, sleeping between passes.
func (r *Reconciler) Run(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Warn("ledger reconcile pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
