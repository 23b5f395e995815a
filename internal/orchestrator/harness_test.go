package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"momopay/internal/domain"
	"momopay/internal/ledger"
	"momopay/internal/registry"
	"momopay/internal/resolver"
	"momopay/pkg/payment"
)

type fakeAdapter struct {
	id string

	mu     sync.Mutex
	sends  int
	checks int
	send   func(ctx context.Context, tx *domain.Transaction) (*payment.SendResult, error)
	check  func(ctx context.Context, ref string) (*payment.StatusResult, error)
}

func newFakeAdapter(id string) *fakeAdapter {
	return &fakeAdapter{
		id: id,
		send: func(ctx context.Context, tx *domain.Transaction) (*payment.SendResult, error) {
			return &payment.SendResult{Accepted: true, Reference: id + "-ref-" + tx.ID}, nil
		},
		check: func(ctx context.Context, ref string) (*payment.StatusResult, error) {
			return &payment.StatusResult{Outcome: payment.OutcomePending}, nil
		},
	}
}

func (f *fakeAdapter) ID() string { return f.id }

func (f *fakeAdapter) Send(ctx context.Context, tx *domain.Transaction) (*payment.SendResult, error) {
	f.mu.Lock()
	f.sends++
	fn := f.send
	f.mu.Unlock()
	return fn(ctx, tx)
}

func (f *fakeAdapter) CheckStatus(ctx context.Context, ref string) (*payment.StatusResult, error) {
	f.mu.Lock()
	f.checks++
	fn := f.check
	f.mu.Unlock()
	return fn(ctx, ref)
}

func (f *fakeAdapter) setSend(fn func(ctx context.Context, tx *domain.Transaction) (*payment.SendResult, error)) {
	f.mu.Lock()
	f.send = fn
	f.mu.Unlock()
}

func (f *fakeAdapter) setCheck(fn func(ctx context.Context, ref string) (*payment.StatusResult, error)) {
	f.mu.Lock()
	f.check = fn
	f.mu.Unlock()
}

func (f *fakeAdapter) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func (f *fakeAdapter) checkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(to domain.State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.To == to {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	o        *Orchestrator
	ledger   *ledger.Memory
	adapters map[string]*fakeAdapter
	events   *recorder
	clock    *fakeClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.MaxPollAttempts = 30
	cfg.StatusRetry = payment.RetryPolicy{Attempts: 1}
	cfg.LockTimeout = time.Second
	return cfg
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	return newHarnessWithLedger(t, mutate, nil)
}

// newHarnessWithLedger lets wrap sit between the orchestrator and the memory ledger.
func newHarnessWithLedger(t *testing.T, mutate func(*Config), wrap func(ledger.Ledger) ledger.Ledger) *harness {
	t.Helper()
	reg, err := registry.New(registry.DefaultCatalog())
	require.NoError(t, err)

	h := &harness{
		ledger:   ledger.NewMemory(),
		adapters: make(map[string]*fakeAdapter),
		events:   &recorder{},
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	var adapters []payment.Adapter
	for _, p := range reg.ListProviders() {
		a := newFakeAdapter(p.ID)
		h.adapters[p.ID] = a
		adapters = append(adapters, a)
	}
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	var l ledger.Ledger = h.ledger
	if wrap != nil {
		l = wrap(h.ledger)
	}
	h.o = New(l, reg, resolver.New(reg, "GH"), adapters,
		WithConfig(cfg),
		WithPublisher(h.events),
		WithClock(h.clock.Now),
	)
	t.Cleanup(h.o.Close)
	return h
}

func paymentRequest(amount, currency, phone, key string) domain.PaymentRequest {
	return domain.PaymentRequest{
		Amount:         decimal.RequireFromString(amount),
		Currency:       currency,
		Phone:          phone,
		Description:    "Invoice 1001",
		IdempotencyKey: key,
		ClientID:       "merchant-1",
	}
}

func (h *harness) waitForState(t *testing.T, id string, want domain.State) *domain.Transaction {
	t.Helper()
	var tx *domain.Transaction
	require.Eventually(t, func() bool {
		var err error
		tx, err = h.ledger.Get(context.Background(), id)
		return err == nil && tx.State == want
	}, 2*time.Second, 2*time.Millisecond, "transaction never reached %s", want)
	return tx
}
