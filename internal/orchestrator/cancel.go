package orchestrator

import (
	"context"
	"fmt"

	"momopay/internal/domain"
)

// Lookup returns the transaction if it belongs to clientID. Other clients' transactions
// are reported as not found.
func (o *Orchestrator) Lookup(ctx context.Context, clientID, id string) (*domain.Transaction, error) {
	tx, err := o.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Request.ClientID != clientID {
		return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return tx, nil
}

// History returns the audit trail of a transaction owned by clientID.
func (o *Orchestrator) History(ctx context.Context, clientID, id string) ([]domain.TransitionRecord, error) {
	if _, err := o.Lookup(ctx, clientID, id); err != nil {
		return nil, err
	}
	return o.ledger.History(ctx, id)
}

// Cancel stops a transaction that has not been dispatched yet. Once the provider
// has the request, the cancellation is only recorded as a wish and settlement
// follows whatever the provider reports.
func (o *Orchestrator) Cancel(ctx context.Context, clientID, id string) (*domain.Transaction, error) {
	if _, err := o.Lookup(ctx, clientID, id); err != nil {
		return nil, err
	}
	lockCtx, cancel := context.WithTimeout(ctx, o.cfg.LockTimeout)
	defer cancel()
	release, err := o.locker.Lock(lockCtx, txLockKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: transaction lock: %v", domain.ErrInfrastructure, err)
	}
	defer release()

	// validation and resolution do not take the lock, so retry a lost race
	for i := 0; i < 3; i++ {
		tx, err := o.ledger.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		var next *domain.Transaction
		switch {
		case tx.State.IsTerminal():
			return tx, fmt.Errorf("transaction %s is %s: %w", id, tx.State, domain.ErrNotCancellable)
		case tx.State.IsPreDispatch():
			next, err = o.transition(ctx, tx, domain.StateCancelled, domain.Change{Error: "cancelled by client", Source: "cancel"})
		default:
			if tx.CancelRequested {
				return tx, nil
			}
			next, err = o.transition(ctx, tx, tx.State, domain.Change{CancelRequested: true, Source: "cancel"})
		}
		if isConflict(err) {
			continue
		}
		return next, err
	}
	return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrConflict)
}
