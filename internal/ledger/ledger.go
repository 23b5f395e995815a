// Package ledger defines the durable record of payment attempts. The orchestrator is its
// only writer; every transition is conditioned on the state the writer last observed.
package ledger

import (
	"context"
	"errors"
	"time"

	"momopay/internal/domain"
)

// ErrDuplicate is returned by Create when the id or the (client, key, attempt) triple exists.
var ErrDuplicate = errors.New("ledger: duplicate transaction")

type Ledger interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	// Transition moves id from -> to, applying change. It fails with domain.ErrConflict if
	// the stored state is no longer from, and with domain.ErrInvalidTransition if the state
	// machine forbids the move. The stored row is untouched on failure.
	Transition(ctx context.Context, id string, from, to domain.State, change domain.Change) (*domain.Transaction, error)
	Get(ctx context.Context, id string) (*domain.Transaction, error)
	// FindByIdempotencyKey returns the latest attempt recorded under (clientID, key).
	FindByIdempotencyKey(ctx context.Context, clientID, key string) (*domain.Transaction, error)
	FindByProviderReference(ctx context.Context, providerID, reference string) (*domain.Transaction, error)
	// ListPending returns PENDING_PROVIDER_ACK transactions created at or before olderThan.
	ListPending(ctx context.Context, olderThan time.Time) ([]*domain.Transaction, error)
	ListByState(ctx context.Context, states []domain.State, limit int) ([]*domain.Transaction, error)
	History(ctx context.Context, id string) ([]domain.TransitionRecord, error)
}

// CheckTransition validates the move before any store is touched.
func CheckTransition(from, to domain.State) error {
	if !domain.CanTransition(from, to) {
		return &TransitionError{From: from, To: to, Err: domain.ErrInvalidTransition}
	}
	return nil
}

// TransitionError describes a rejected transition.
type TransitionError struct {
	ID      string
	From    domain.State
	To      domain.State
	Current domain.State
	Err     error
}

func (e *TransitionError) Error() string {
	if e.Current != "" {
		return "ledger: " + e.ID + " " + string(e.From) + " -> " + string(e.To) + ": " + e.Err.Error() + " (current " + string(e.Current) + ")"
	}
	return "ledger: " + string(e.From) + " -> " + string(e.To) + ": " + e.Err.Error()
}

func (e *TransitionError) Unwrap() error { return e.Err }
