package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"momopay/internal/domain"
)

// Memory is a process-local Ledger. Transitions are serialized by a single mutex.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Transaction
	byKey   map[string]string
	byRef   map[string]string
	history map[string][]domain.TransitionRecord
}

func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]*domain.Transaction),
		byKey:   make(map[string]string),
		byRef:   make(map[string]string),
		history: make(map[string][]domain.TransitionRecord),
	}
}

func keyIndex(clientID, key string, attempt int) string {
	return fmt.Sprintf("%s\x00%s\x00%d", clientID, key, attempt)
}

func refIndex(providerID, ref string) string {
	return providerID + "\x00" + ref
}

func (m *Memory) Create(_ context.Context, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[tx.ID]; ok {
		return fmt.Errorf("%w: id %s", ErrDuplicate, tx.ID)
	}
	k := keyIndex(tx.Request.ClientID, tx.Request.IdempotencyKey, tx.KeyAttempt)
	if _, ok := m.byKey[k]; ok {
		return fmt.Errorf("%w: idempotency key %q attempt %d", ErrDuplicate, tx.Request.IdempotencyKey, tx.KeyAttempt)
	}
	stored := tx.Clone()
	m.byID[tx.ID] = stored
	m.byKey[k] = tx.ID
	if stored.ProviderReference != "" {
		m.byRef[refIndex(stored.ProviderID, stored.ProviderReference)] = tx.ID
	}
	m.history[tx.ID] = append(m.history[tx.ID], domain.TransitionRecord{
		TransactionID: tx.ID, To: stored.State, Source: "create", At: stored.CreatedAt,
	})
	return nil
}

func (m *Memory) Transition(_ context.Context, id string, from, to domain.State, change domain.Change) (*domain.Transaction, error) {
	if err := CheckTransition(from, to); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	if cur.State != from {
		return nil, &TransitionError{ID: id, From: from, To: to, Current: cur.State, Err: domain.ErrConflict}
	}
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}
	next := cur.Clone()
	change.Apply(next)
	next.State = to
	m.byID[id] = next
	if next.ProviderReference != "" {
		m.byRef[refIndex(next.ProviderID, next.ProviderReference)] = id
	}
	m.history[id] = append(m.history[id], domain.TransitionRecord{
		TransactionID: id, From: from, To: to, Source: change.Source,
		Error: change.Error, RawResponse: change.RawResponse, At: change.At,
	})
	return next.Clone(), nil
}

func (m *Memory) Get(_ context.Context, id string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return tx.Clone(), nil
}

func (m *Memory) FindByIdempotencyKey(_ context.Context, clientID, key string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.Transaction
	for attempt := 0; ; attempt++ {
		id, ok := m.byKey[keyIndex(clientID, key, attempt)]
		if !ok {
			break
		}
		latest = m.byID[id]
	}
	if latest == nil {
		return nil, fmt.Errorf("idempotency key %q: %w", key, domain.ErrNotFound)
	}
	return latest.Clone(), nil
}

func (m *Memory) FindByProviderReference(_ context.Context, providerID, reference string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byRef[refIndex(providerID, reference)]
	if !ok {
		return nil, fmt.Errorf("provider reference %s/%s: %w", providerID, reference, domain.ErrNotFound)
	}
	return m.byID[id].Clone(), nil
}

func (m *Memory) ListPending(_ context.Context, olderThan time.Time) ([]*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Transaction
	for _, tx := range m.byID {
		if tx.State == domain.StatePendingProviderAck && !tx.CreatedAt.After(olderThan) {
			out = append(out, tx.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

func (m *Memory) ListByState(_ context.Context, states []domain.State, limit int) ([]*domain.Transaction, error) {
	want := make(map[domain.State]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Transaction
	for _, tx := range m.byID {
		if want[tx.State] {
			out = append(out, tx.Clone())
		}
	}
	sortByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) History(_ context.Context, id string) ([]domain.TransitionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.history[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return append([]domain.TransitionRecord(nil), h...), nil
}

func sortByCreated(txs []*domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].ID < txs[j].ID
		}
		return txs[i].CreatedAt.Before(txs[j].CreatedAt)
	})
}
