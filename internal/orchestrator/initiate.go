package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"momopay/internal/domain"
	"momopay/internal/resolver"
	"momopay/pkg/payment"
)

// ErrKeyReused is returned when an idempotency key comes back with a different request.
var ErrKeyReused = fmt.Errorf("%w: idempotency key reused with a different request", domain.ErrConflict)

// Initiate records req and carries it synchronously through validation, provider
// resolution and dispatch. The returned transaction is in PENDING_PROVIDER_ACK or a
// terminal state. Rejections are not errors: they come back as REJECTED or FAILED
// transactions. A repeat with the same (client, key) returns the recorded transaction,
// except that an ERROR outcome the provider never acknowledged may be re-attempted up
// to MaxInitiateRetries times.
func (o *Orchestrator) Initiate(ctx context.Context, req domain.PaymentRequest) (*domain.Transaction, error) {
	if req.ClientID == "" {
		return nil, fmt.Errorf("%w: client id is required", domain.ErrInvalidInput)
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.ProviderHint = strings.ToLower(strings.TrimSpace(req.ProviderHint))
	req.CountryHint = strings.ToUpper(strings.TrimSpace(req.CountryHint))

	id := o.newID()
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = id
	}

	lockCtx, cancel := context.WithTimeout(ctx, o.cfg.LockTimeout)
	defer cancel()
	release, err := o.locker.Lock(lockCtx, req.ClientID+"\x00"+req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("%w: idempotency lock: %v", domain.ErrInfrastructure, err)
	}
	defer release()

	attempt, retryOf := 0, ""
	existing, err := o.ledger.FindByIdempotencyKey(ctx, req.ClientID, req.IdempotencyKey)
	switch {
	case err == nil:
		if !sameRequest(existing.Request, req) {
			return existing, ErrKeyReused
		}
		if !retryable(existing, o.cfg.MaxInitiateRetries) {
			return existing, nil
		}
		attempt, retryOf = existing.KeyAttempt+1, existing.ID
		o.log.Info("re-initiating after infrastructure error",
			"transaction_id", id, "retry_of", retryOf, "attempt", attempt)
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, err
	}

	now := o.timestamp()
	tx := &domain.Transaction{
		ID:         id,
		Request:    req,
		State:      domain.StateCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
		KeyAttempt: attempt,
		RetryOf:    retryOf,
	}
	if err := o.ledger.Create(ctx, tx); err != nil {
		return nil, err
	}
	o.events.Publish(domain.NewEvent(tx, ""))

	// from here on the outcome is recorded even if the caller goes away
	return o.advance(context.WithoutCancel(ctx), tx)
}

// retryable reports whether a repeat of tx's key may dispatch again. Once a
// provider reference is recorded the provider holds the first charge and may still
// settle it, so only errors raised before acceptance qualify.
func retryable(tx *domain.Transaction, maxRetries int) bool {
	return tx.State == domain.StateError && tx.ProviderReference == "" && tx.KeyAttempt < maxRetries
}

func sameRequest(a, b domain.PaymentRequest) bool {
	return a.Amount.Equal(b.Amount) &&
		a.Currency == b.Currency &&
		a.Phone == b.Phone &&
		a.ProviderHint == b.ProviderHint
}

// advance runs the synchronous part of the state machine. A conflict means the
// transaction was cancelled concurrently; the current record is returned.
func (o *Orchestrator) advance(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	next, err := o.validate(ctx, tx)
	if err != nil || next.State != domain.StateValidated {
		return o.settled(ctx, tx.ID, next, err)
	}
	next, err = o.resolve(ctx, next)
	if err != nil || next.State != domain.StateResolved {
		return o.settled(ctx, tx.ID, next, err)
	}
	next, err = o.dispatch(ctx, next)
	return o.settled(ctx, tx.ID, next, err)
}

func (o *Orchestrator) settled(ctx context.Context, id string, tx *domain.Transaction, err error) (*domain.Transaction, error) {
	if isConflict(err) {
		return o.current(ctx, id)
	}
	return tx, err
}

func (o *Orchestrator) reject(ctx context.Context, tx *domain.Transaction, cause error) (*domain.Transaction, error) {
	o.log.Info("payment request rejected", "transaction_id", tx.ID, "err", cause.Error())
	return o.transition(ctx, tx, domain.StateRejected, domain.Change{Error: cause.Error(), Source: "initiate"})
}

// validate checks amount, currency and phone format. Nothing leaves the process.
func (o *Orchestrator) validate(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	req := tx.Request
	if err := domain.ValidateAmount(req.Amount, req.Currency); err != nil {
		return o.reject(ctx, tx, err)
	}
	normalized, err := o.resolver.Normalize(req.Phone, req.CountryHint)
	if err != nil {
		return o.reject(ctx, tx, err)
	}
	if req.ProviderHint != "" {
		if _, err := o.providers.GetProvider(req.ProviderHint); err != nil {
			return o.reject(ctx, tx, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		}
	}
	return o.transition(ctx, tx, domain.StateValidated, domain.Change{NormalizedPhone: normalized, Source: "initiate"})
}

func (o *Orchestrator) resolve(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	res, err := o.resolver.Resolve(tx.NormalizedPhone, tx.Request.CountryHint)
	if err != nil {
		return o.reject(ctx, tx, err)
	}
	provider, err := o.choose(res, tx.Request.ProviderHint)
	if err != nil {
		return o.reject(ctx, tx, err)
	}
	return o.transition(ctx, tx, domain.StateResolved, domain.Change{
		ProviderID:      provider.ID,
		NormalizedPhone: res.NormalizedPhone,
		Source:          "initiate",
	})
}

// choose picks the provider: the caller's hint, the only candidate, the configured
// priority order, then catalog order.
func (o *Orchestrator) choose(res resolver.Resolution, hint string) (domain.ProviderDescriptor, error) {
	var candidates []domain.ProviderDescriptor
	for _, p := range res.CandidateProviders {
		if _, ok := o.adapters[p.ID]; ok {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return domain.ProviderDescriptor{}, fmt.Errorf("%w: no configured provider covers %s",
			domain.ErrUnsupportedRegion, domain.MaskPhone(res.NormalizedPhone))
	}
	if hint != "" {
		for _, p := range candidates {
			if p.ID == hint {
				return p, nil
			}
		}
		return domain.ProviderDescriptor{}, fmt.Errorf("%w: provider %s does not cover %s",
			domain.ErrUnsupportedRegion, hint, domain.MaskPhone(res.NormalizedPhone))
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	for _, id := range o.cfg.ProviderPriority {
		for _, p := range candidates {
			if p.ID == strings.ToLower(id) {
				return p, nil
			}
		}
	}
	return candidates[0], nil
}

var errAdapterPanic = fmt.Errorf("%w: adapter panicked", domain.ErrInfrastructure)

func safeSend(ctx context.Context, a payment.Adapter, tx *domain.Transaction) (res *payment.SendResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: %s: %v", errAdapterPanic, a.ID(), r)
		}
	}()
	return a.Send(ctx, tx.Clone())
}

// dispatch hands the resolved transaction to its adapter. The per-transaction lock
// keeps a concurrent Cancel from landing between the final state check and Send.
// Send is never retried here; a retry needs a fresh Initiate with the same key.
func (o *Orchestrator) dispatch(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	lockCtx, cancel := context.WithTimeout(ctx, o.cfg.LockTimeout)
	defer cancel()
	release, err := o.locker.Lock(lockCtx, txLockKey(tx.ID))
	if err != nil {
		return o.transition(ctx, tx, domain.StateError, domain.Change{
			Error: fmt.Sprintf("%v: transaction lock: %v", domain.ErrInfrastructure, err), Source: "initiate",
		})
	}
	defer release()

	cur, err := o.current(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if cur.State != domain.StateResolved {
		return cur, nil
	}
	tx = cur

	adapter := o.adapters[tx.ProviderID]
	sendCtx, cancelSend := context.WithTimeout(ctx, o.cfg.DispatchTimeout)
	res, err := safeSend(sendCtx, adapter, tx)
	cancelSend()

	log := o.log.With("transaction_id", tx.ID, "provider", tx.ProviderID)
	switch {
	case err != nil && payment.IsInfrastructure(err):
		log.Error("dispatch failed", "err", err.Error())
		return o.transition(ctx, tx, domain.StateError, domain.Change{Error: err.Error(), Source: "initiate"})
	case err != nil:
		log.Warn("dispatch rejected", "err", err.Error())
		return o.transition(ctx, tx, domain.StateFailed, domain.Change{Error: err.Error(), Source: "initiate"})
	case !res.Accepted:
		msg := res.Message
		if msg == "" {
			msg = "provider did not accept the request"
		}
		log.Warn("dispatch not accepted", "err", msg)
		return o.transition(ctx, tx, domain.StateFailed, domain.Change{
			Error: fmt.Sprintf("%v: %s", domain.ErrProviderRejected, msg), RawResponse: res.Raw, Source: "initiate",
		})
	case res.Reference == "":
		return o.transition(ctx, tx, domain.StateError, domain.Change{
			Error: fmt.Sprintf("%v: provider accepted without a reference", domain.ErrInfrastructure), RawResponse: res.Raw, Source: "initiate",
		})
	}

	next, err := o.transition(ctx, tx, domain.StatePendingProviderAck, domain.Change{
		ProviderReference: res.Reference,
		RawResponse:       res.Raw,
		Source:            "initiate",
	})
	if err != nil {
		if isConflict(err) {
			return nil, err
		}
		return o.recordAcceptance(ctx, tx, res, err)
	}
	o.startPolling(next)
	return next, nil
}

const acceptanceWriteAttempts = 3

// recordAcceptance keeps the provider reference of an accepted request whose
// PENDING_PROVIDER_ACK write failed. The transaction moves to ERROR with the
// reference attached, so webhooks still find it and Cancel refuses it.
func (o *Orchestrator) recordAcceptance(ctx context.Context, tx *domain.Transaction, res *payment.SendResult, cause error) (*domain.Transaction, error) {
	log := o.log.With("transaction_id", tx.ID, "provider", tx.ProviderID, "provider_reference", res.Reference)
	log.Error("recording provider acceptance failed", "err", cause.Error())

	change := domain.Change{
		ProviderReference: res.Reference,
		RawResponse:       res.Raw,
		Error:             fmt.Sprintf("%v: recording provider acceptance: %v", domain.ErrInfrastructure, cause),
		Source:            "initiate",
	}
	err := cause
	for i := 0; i < acceptanceWriteAttempts; i++ {
		var next *domain.Transaction
		next, err = o.transition(ctx, tx, domain.StateError, change)
		if err == nil {
			return next, nil
		}
		if isConflict(err) {
			break
		}
	}
	log.Error("provider accepted but reference was not recorded; reconcile manually", "err", err.Error())
	return nil, fmt.Errorf("provider reference %s not recorded: %w", res.Reference, err)
}
