package orchestrator

import (
	"context"
	"fmt"

	"momopay/internal/domain"
	"momopay/pkg/payment"
)

// settle records a provider-reported outcome. Polls and webhooks both end here, so
// whichever arrives second sees a conflict and treats it as already handled.
func (o *Orchestrator) settle(ctx context.Context, tx *domain.Transaction, outcome payment.Outcome, reason, raw, source string, countAttempt bool) (*domain.Transaction, error) {
	change := domain.Change{RawResponse: raw, IncrementAttempts: countAttempt, Source: source}
	var to domain.State
	switch outcome {
	case payment.OutcomeSucceeded:
		to = domain.StateSucceeded
	case payment.OutcomeDeclined:
		to = domain.StateDeclined
		if reason == "" {
			reason = "declined by payer"
		}
		change.Error = fmt.Sprintf("%v: %s", domain.ErrProviderRejected, reason)
	case payment.OutcomePending:
		to = domain.StatePendingProviderAck
	default:
		return nil, fmt.Errorf("%w: outcome %q", payment.ErrUnknownStatus, outcome)
	}

	next, err := o.transition(ctx, tx, to, change)
	if isConflict(err) {
		o.log.Debug("outcome already recorded", "transaction_id", tx.ID, "source", source)
	}
	return next, err
}

// ApplyWebhook settles the transaction a verified provider callback refers to.
// Callbacks for already-settled transactions are acknowledged without change.
func (o *Orchestrator) ApplyWebhook(ctx context.Context, providerID string, ev *payment.WebhookEvent) (*domain.Transaction, error) {
	tx, err := o.ledger.FindByProviderReference(ctx, providerID, ev.Reference)
	if err != nil {
		return nil, err
	}
	if tx.State.IsTerminal() {
		if tx.State == domain.StateError && ev.Outcome != payment.OutcomePending {
			o.log.Warn("late provider outcome for errored transaction",
				"transaction_id", tx.ID, "provider", providerID, "provider_reference", ev.Reference,
				"outcome", string(ev.Outcome), "raw", ev.Raw)
		}
		return tx, nil
	}
	if tx.State != domain.StatePendingProviderAck {
		return nil, fmt.Errorf("transaction %s is %s: %w", tx.ID, tx.State, domain.ErrConflict)
	}
	next, err := o.settle(ctx, tx, ev.Outcome, ev.Reason, ev.Raw, "webhook", false)
	if err != nil {
		if isConflict(err) {
			return o.current(ctx, tx.ID)
		}
		return nil, err
	}
	return next, nil
}
