package orchestrator

import (
	"context"
	"fmt"
	"time"

	"momopay/internal/domain"
)

// SweepOnce times out every transaction that has waited on its provider longer than
// MaxWait. Each transition is conditioned on PENDING_PROVIDER_ACK, so a transaction
// is timed out at most once however many sweeps overlap.
func (o *Orchestrator) SweepOnce(ctx context.Context) (int, error) {
	cutoff := o.now().Add(-o.cfg.MaxWait)
	stuck, err := o.ledger.ListPending(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, tx := range stuck {
		_, err := o.transition(ctx, tx, domain.StateTimedOut, domain.Change{
			Error:  fmt.Sprintf("%v: no provider answer within %s", domain.ErrTimeout, o.cfg.MaxWait),
			Source: "sweep",
		})
		if err != nil {
			if isConflict(err) {
				continue
			}
			o.log.Error("sweep: time out transaction", "transaction_id", tx.ID, "err", err.Error())
			continue
		}
		n++
	}
	if n > 0 {
		o.log.Warn("timed out stuck transactions", "count", n)
	}
	return n, nil
}

// RunSweeper calls SweepOnce every SweepInterval until ctx is done.
func (o *Orchestrator) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.SweepOnce(ctx); err != nil {
				o.log.Error("sweep failed", "err", err.Error())
			}
		}
	}
}
