package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"momopay/internal/domain"
	"momopay/pkg/payment"
)

// startPolling launches one poll loop for tx unless one is already running or the
// provider only reports by webhook. It reports whether a loop was started.
func (o *Orchestrator) startPolling(tx *domain.Transaction) bool {
	if p, err := o.providers.GetProvider(tx.ProviderID); err == nil && !p.SupportsPolling() {
		return false
	}
	if _, ok := o.adapters[tx.ProviderID]; !ok {
		return false
	}
	o.mu.Lock()
	if _, running := o.polling[tx.ID]; running {
		o.mu.Unlock()
		return false
	}
	o.polling[tx.ID] = struct{}{}
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.polling, tx.ID)
			o.mu.Unlock()
		}()
		o.poll(o.baseCtx, tx.ID)
	}()
	return true
}

func safeCheck(ctx context.Context, a payment.Adapter, ref string) (res *payment.StatusResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: %s: %v", errAdapterPanic, a.ID(), r)
		}
	}()
	return a.CheckStatus(ctx, ref)
}

// poll checks the provider every PollInterval until the transaction settles or
// MaxPollAttempts checks have been made.
func (o *Orchestrator) poll(ctx context.Context, id string) {
	log := o.log.With("transaction_id", id)
	timer := time.NewTimer(o.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		tx, err := o.ledger.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return
			}
			log.Error("poll: load transaction", "err", err.Error())
			timer.Reset(o.cfg.PollInterval)
			continue
		}
		if tx.State != domain.StatePendingProviderAck {
			return
		}
		if done := o.pollOnce(ctx, tx); done {
			return
		}
		timer.Reset(o.cfg.PollInterval)
	}
}

// pollOnce makes one status check and records it. It reports whether polling is over.
func (o *Orchestrator) pollOnce(ctx context.Context, tx *domain.Transaction) bool {
	log := o.log.With("transaction_id", tx.ID, "provider", tx.ProviderID)
	adapter := o.adapters[tx.ProviderID]

	res, err := payment.RetryStatus(ctx, o.cfg.StatusRetry, func(ctx context.Context) (*payment.StatusResult, error) {
		return safeCheck(ctx, adapter, tx.ProviderReference)
	})
	if ctx.Err() != nil {
		return true
	}

	var next *domain.Transaction
	switch {
	case errors.Is(err, errAdapterPanic) || (err != nil && !payment.IsInfrastructure(err)):
		log.Error("status check failed", "err", err.Error())
		next, err = o.transition(ctx, tx, domain.StateError, domain.Change{
			Error: err.Error(), IncrementAttempts: true, Source: "poll",
		})
	case err != nil:
		// transient; keep polling
		log.Warn("status check unavailable", "err", err.Error())
		next, err = o.transition(ctx, tx, domain.StatePendingProviderAck, domain.Change{
			Error: err.Error(), IncrementAttempts: true, Source: "poll",
		})
	default:
		next, err = o.settle(ctx, tx, res.Outcome, res.Reason, res.Raw, "poll", true)
	}
	if err != nil {
		if isConflict(err) {
			return true
		}
		log.Error("poll: record result", "err", err.Error())
		return false
	}
	if next.State.IsTerminal() {
		return true
	}
	if next.AttemptCount >= o.cfg.MaxPollAttempts {
		_, err := o.transition(ctx, next, domain.StateTimedOut, domain.Change{
			Error:  fmt.Sprintf("%v: no final status after %d checks", domain.ErrTimeout, next.AttemptCount),
			Source: "poll",
		})
		if err != nil && !isConflict(err) {
			log.Error("poll: record timeout", "err", err.Error())
			return false
		}
		return true
	}
	return false
}
