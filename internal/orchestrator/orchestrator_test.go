package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"momopay/internal/domain"
	"momopay/internal/ledger"
	"momopay/pkg/payment"
)

func TestInitiateGhanaMTNSettlesByPolling(t *testing.T) {
	h := newHarness(t, nil)
	mtn := h.adapters["mtn"]
	mtn.setCheck(func(ctx context.Context, ref string) (*payment.StatusResult, error) {
		return &payment.StatusResult{Outcome: payment.OutcomeSucceeded, Raw: `{"status":"SUCCESSFUL"}`}, nil
	})

	tx, err := h.o.Initiate(context.Background(), paymentRequest("50", "USD", "+233241234567", "order-1"))
	require.NoError(t, err)
	require.Equal(t, domain.StatePendingProviderAck, tx.State)
	require.Equal(t, "mtn", tx.ProviderID)
	require.Equal(t, "+233241234567", tx.NormalizedPhone)
	require.NotEmpty(t, tx.ProviderReference)

	done := h.waitForState(t, tx.ID, domain.StateSucceeded)
	require.Equal(t, 1, done.AttemptCount)

	checks := mtn.checkCount()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, checks, mtn.checkCount(), "polling continued after settlement")
	require.Equal(t, 1, mtn.sendCount())
	require.Equal(t, 1, h.events.count(domain.StateSucceeded))
}

func TestInitiateRejectsInvalidAmountsWithoutDispatch(t *testing.T) {
	h := newHarness(t, nil)
	for i, amount := range []string{"0", "-5", "0.001", "-0.01"} {
		tx, err := h.o.Initiate(context.Background(), paymentRequest(amount, "USD", "+233241234567", "bad-"+string(rune('a'+i))))
		require.NoError(t, err)
		require.Equal(t, domain.StateRejected, tx.State, amount)
		require.Contains(t, tx.LastError, "invalid input")
	}
	for _, a := range h.adapters {
		require.Zero(t, a.sendCount())
	}
}

func TestInitiateRejectsBadPhoneAndRegion(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	tx, err := h.o.Initiate(ctx, paymentRequest("10", "GHS", "123", "short"))
	require.NoError(t, err)
	require.Equal(t, domain.StateRejected, tx.State)
	require.Contains(t, tx.LastError, "invalid phone format")

	tx, err = h.o.Initiate(ctx, paymentRequest("10", "USD", "+12025550123", "us"))
	require.NoError(t, err)
	require.Equal(t, domain.StateRejected, tx.State)
	require.Contains(t, tx.LastError, domain.ErrUnsupportedRegion.Error())

	tx, err = h.o.Initiate(ctx, paymentRequest("10", "XYZ", "+233241234567", "currency"))
	require.NoError(t, err)
	require.Equal(t, domain.StateRejected, tx.State)

	hinted := paymentRequest("10", "GHS", "+233241234567", "hint")
	hinted.ProviderHint = "mpesa"
	tx, err = h.o.Initiate(ctx, hinted)
	require.NoError(t, err)
	require.Equal(t, domain.StateRejected, tx.State)
	require.Contains(t, tx.LastError, "mpesa does not cover")

	unknown := paymentRequest("10", "GHS", "+233241234567", "unknown-hint")
	unknown.ProviderHint = "vodafone"
	tx, err = h.o.Initiate(ctx, unknown)
	require.NoError(t, err)
	require.Equal(t, domain.StateRejected, tx.State)

	for _, a := range h.adapters {
		require.Zero(t, a.sendCount())
	}
}

func TestInitiateNationalNumberUsesDefaultCountry(t *testing.T) {
	h := newHarness(t, nil)
	tx, err := h.o.Initiate(context.Background(), paymentRequest("10", "GHS", "024 123 4567", "national"))
	require.NoError(t, err)
	require.Equal(t, domain.StatePendingProviderAck, tx.State)
	require.Equal(t, "+233241234567", tx.NormalizedPhone)
}

func TestIdempotentInitiateWhilePending(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.PollInterval = time.Hour })
	ctx := context.Background()
	req := paymentRequest("50", "USD", "+233241234567", "dup-key")

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := h.o.Initiate(ctx, req)
			require.NoError(t, err)
			ids[i] = tx.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	require.Equal(t, 1, h.adapters["mtn"].sendCount())

	pending, err := h.ledger.ListByState(ctx, []domain.State{domain.StatePendingProviderAck}, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestIdempotencyKeyScopedByClient(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.PollInterval = time.Hour })
	ctx := context.Background()
	a := paymentRequest("50", "USD", "+233241234567", "shared")
	b := a
	b.ClientID = "merchant-2"

	txA, err := h.o.Initiate(ctx, a)
	require.NoError(t, err)
	txB, err := h.o.Initiate(ctx, b)
	require.NoError(t, err)
	require.NotEqual(t, txA.ID, txB.ID)
}

func TestIdempotencyKeyReusedWithDifferentRequest(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.PollInterval = time.Hour })
	ctx := context.Background()
	_, err := h.o.Initiate(ctx, paymentRequest("50", "USD", "+233241234567", "k"))
	require.NoError(t, err)

	_, err = h.o.Initiate(ctx, paymentRequest("75", "USD", "+233241234567", "k"))
	require.ErrorIs(t, err, ErrKeyReused)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestTerminalReplayDoesNotRedispatch(t *testing.T) {
	h := newHarness(t, nil)
	h.adapters["mtn"].setSend(func(ctx context.Context, tx *domain.Transaction) (*payment.SendResult, error) {
		return &payment.SendResult{Accepted: false, Message: "payer wallet is barred"}, nil
	})
	ctx := context.Background()
	req := paymentRequest("50", "USD", "+233241234567", "failed-key")

	first, err := h.o.Initiate(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.StateFailed, first.State)
	require.Contains(t, first.LastError, "payer wallet is barred")

	second, err := h.o.Initiate(ctx, req)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, domain.StateFailed, second.State)
	require.Equal(t, 1, h.adapters["mtn"].sendCount())
}

func TestDispatchClassification(t *testing.T) {
	cases := []struct {
		name string
		send func(ctx context.Context, tx *domain.Transaction) (*payment.SendResult, error)
		want domain.State
	}{
		{"server error", func(context.Context, *domain.Transaction) (*payment.SendResult, error) {
			return nil, &payment.APIError{Provider: "mtn", StatusCode: http.StatusBadGateway}
		}, domain.StateError},
		{"network", func(context.Context, *domain.Transaction) (*payment.SendResult, error) {
			return nil, errors.New("dial tcp 10.0.0.1:443: i/o timeout")
		}, domain.StateError},
		{"bad request", func(context.Context, *domain.Transaction) (*payment.SendResult, error) {
			return nil, &payment.APIError{Provider: "mtn", StatusCode: http.StatusBadRequest}
		}, domain.StateFailed},
		{"panic", func(context.Context, *domain.Transaction) (*payment.SendResult, error) {
			panic("nil map")
		}, domain.StateError},
		{"no reference", func(context.Context, *domain.Transaction) (*payment.SendResult, error) {
			return &payment.SendResult{Accepted: true}, nil
		}, domain.StateError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.adapters["mtn"].setSend(tc.send)
			tx, err := h.o.Initiate(context.Background(), paymentRequest("50", "USD", "+233241234567", "k"))
			require.NoError(t, err)
			require.Equal(t, tc.want, tx.State)
			require.NotEmpty(t, tx.LastError)
			require.Equal(t, 1, h.adapters["mtn"].sendCount())
		})
	}
}

func TestErrorTransactionCanBeReinitiated(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.MaxInitiateRetries = 2
		c.PollInterval = time.Hour
	})
	mtn := h.adapters["mtn"]
	mtn.setSend(func(context.Context, *domain.Transaction) (*payment.SendResult, error) {
		return nil, &payment.APIError{Provider: "mtn", StatusCode: http.StatusServiceUnavailable}
	})
	ctx := context.Background()
	req := paymentRequest("50", "USD", "+233241234567", "retry-key")

	first, err := h.o.Initiate(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.StateError, first.State)

	second, err := h.o.Initiate(ctx, req)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, first.ID, second.RetryOf)
	require.Equal(t, 1, second.KeyAttempt)
	require.Equal(t, domain.StateError, second.State)

	third, err := h.o.Initiate(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 2, third.KeyAttempt)

	// retries exhausted: the last ERROR is returned as-is
	fourth, err := h.o.Initiate(ctx, req)
	require.NoError(t, err)
	require.Equal(t, third.ID, fourth.ID)
	require.Equal(t, 3, mtn.sendCount())

	mtn.setSend(func(ctx context.Context, tx *domain.Transaction) (*payment.SendResult, error) {
		return &payment.SendResult{Accepted: true, Reference: "ok"}, nil
	})
	other, err := h.o.Initiate(ctx, paymentRequest("50", "USD", "+233241234567", "retry-key-2"))
	require.NoError(t, err)
	require.Equal(t, domain.StatePendingProviderAck, other.State)
}

func TestErrorAfterProviderAcceptanceIsNotReinitiated(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxInitiateRetries = 2 })
	mtn := h.adapters["mtn"]
	mtn.setCheck(func(ctx context.Context, ref string) (*payment.StatusResult, error) {
		return nil, &payment.APIError{Provider: "mtn", StatusCode: http.StatusNotFound}
	})
	ctx := context.Background()
	req := paymentRequest("50", "USD", "+233241234567", "accepted-key")

	first, err := h.o.Initiate(ctx, req)
	require.NoError(t, err)
	errored := h.waitForState(t, first.ID, domain.StateError)
	require.NotEmpty(t, errored.ProviderReference)

	again, err := h.o.Initiate(ctx, req)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, domain.StateError, again.State)
	require.Equal(t, 1, mtn.sendCount())

	// a late callback for the first charge is acknowledged but does not reopen it
	late, err := h.o.ApplyWebhook(ctx, "mtn", &payment.WebhookEvent{Reference: errored.ProviderReference, Outcome: payment.OutcomeSucceeded})
	require.NoError(t, err)
	require.Equal(t, domain.StateError, late.State)
}

// flakyLedger fails the first n writes into PENDING_PROVIDER_ACK.
type flakyLedger struct {
	ledger.Ledger

	mu    sync.Mutex
	fails int
}

func (f *flakyLedger) Transition(ctx context.Context, id string, from, to domain.State, change domain.Change) (*domain.Transaction, error) {
	f.mu.Lock()
	fail := to == domain.StatePendingProviderAck && f.fails > 0
	if fail {
		f.fails--
	}
	f.mu.Unlock()
	if fail {
		return nil, errors.New("db: connection reset")
	}
	return f.Ledger.Transition(ctx, id, from, to, change)
}

func TestAcceptedDispatchKeepsReferenceWhenPendingWriteFails(t *testing.T) {
	h := newHarnessWithLedger(t, func(c *Config) { c.PollInterval = time.Hour }, func(l ledger.Ledger) ledger.Ledger {
		return &flakyLedger{Ledger: l, fails: 1}
	})
	ctx := context.Background()
	req := paymentRequest("50", "USD", "+233241234567", "flaky-key")

	tx, err := h.o.Initiate(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.StateError, tx.State)
	require.Equal(t, "mtn-ref-"+tx.ID, tx.ProviderReference)
	require.Contains(t, tx.LastError, "recording provider acceptance")

	stored, err := h.ledger.FindByProviderReference(ctx, "mtn", tx.ProviderReference)
	require.NoError(t, err)
	require.Equal(t, tx.ID, stored.ID)

	_, err = h.o.Cancel(ctx, "merchant-1", tx.ID)
	require.ErrorIs(t, err, domain.ErrNotCancellable)

	again, err := h.o.Initiate(ctx, req)
	require.NoError(t, err)
	require.Equal(t, tx.ID, again.ID)
	require.Equal(t, 1, h.adapters["mtn"].sendCount())
}

func TestAcceptedDispatchReportsUnrecordedReference(t *testing.T) {
	h := newHarnessWithLedger(t, nil, func(l ledger.Ledger) ledger.Ledger {
		return &alwaysFailingLedger{Ledger: l}
	})
	_, err := h.o.Initiate(context.Background(), paymentRequest("50", "USD", "+233241234567", "k"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "mtn-ref-")
}

// alwaysFailingLedger fails every write once the provider has been chosen.
type alwaysFailingLedger struct {
	ledger.Ledger
}

func (f *alwaysFailingLedger) Transition(ctx context.Context, id string, from, to domain.State, change domain.Change) (*domain.Transaction, error) {
	if from == domain.StateResolved {
		return nil, errors.New("db: connection reset")
	}
	return f.Ledger.Transition(ctx, id, from, to, change)
}

func TestProviderChoiceForOverlappingPrefixes(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, func(c *Config) { c.PollInterval = time.Hour })
	tx, err := h.o.Initiate(ctx, paymentRequest("1000", "RWF", "+250788123456", "rw-1"))
	require.NoError(t, err)
	require.Equal(t, "mtn", tx.ProviderID)

	hinted := paymentRequest("1000", "RWF", "+250788123456", "rw-2")
	hinted.ProviderHint = "PayPack"
	tx, err = h.o.Initiate(ctx, hinted)
	require.NoError(t, err)
	require.Equal(t, "paypack", tx.ProviderID)

	h2 := newHarness(t, func(c *Config) {
		c.PollInterval = time.Hour
		c.ProviderPriority = []string{"paypack", "mtn"}
	})
	tx, err = h2.o.Initiate(ctx, paymentRequest("1000", "RWF", "0788123456", "rw-3"))
	require.NoError(t, err)
	require.Equal(t, domain.StateRejected, tx.State, "default country is GH")

	withCountry := paymentRequest("1000", "RWF", "0788123456", "rw-4")
	withCountry.CountryHint = "rw"
	tx, err = h2.o.Initiate(ctx, withCountry)
	require.NoError(t, err)
	require.Equal(t, "paypack", tx.ProviderID)
}

func TestPollTimesOutAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxPollAttempts = 3 })
	tx, err := h.o.Initiate(context.Background(), paymentRequest("50", "USD", "+233241234567", "k"))
	require.NoError(t, err)

	done := h.waitForState(t, tx.ID, domain.StateTimedOut)
	require.Equal(t, 3, done.AttemptCount)
	require.Contains(t, done.LastError, domain.ErrTimeout.Error())
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 3, h.adapters["mtn"].checkCount())
}

func TestPollSurvivesTransientStatusErrors(t *testing.T) {
	h := newHarness(t, nil)
	var mu sync.Mutex
	calls := 0
	h.adapters["mtn"].setCheck(func(ctx context.Context, ref string) (*payment.StatusResult, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= 2 {
			return nil, &payment.APIError{Provider: "mtn", StatusCode: http.StatusServiceUnavailable}
		}
		return &payment.StatusResult{Outcome: payment.OutcomeDeclined, Reason: "insufficient funds"}, nil
	})

	tx, err := h.o.Initiate(context.Background(), paymentRequest("50", "USD", "+233241234567", "k"))
	require.NoError(t, err)
	done := h.waitForState(t, tx.ID, domain.StateDeclined)
	require.Equal(t, 3, done.AttemptCount)
	require.Contains(t, done.LastError, "insufficient funds")

	history, err := h.ledger.History(context.Background(), tx.ID)
	require.NoError(t, err)
	var transient int
	for _, rec := range history {
		if rec.From == domain.StatePendingProviderAck && rec.To == domain.StatePendingProviderAck {
			transient++
			require.Contains(t, rec.Error, "503")
		}
	}
	require.Equal(t, 2, transient)
}

func TestPollUnexpectedErrorBecomesError(t *testing.T) {
	h := newHarness(t, nil)
	h.adapters["mtn"].setCheck(func(ctx context.Context, ref string) (*payment.StatusResult, error) {
		return nil, &payment.APIError{Provider: "mtn", StatusCode: http.StatusNotFound}
	})
	tx, err := h.o.Initiate(context.Background(), paymentRequest("50", "USD", "+233241234567", "k"))
	require.NoError(t, err)
	h.waitForState(t, tx.ID, domain.StateError)
}

func TestWebhookAndPollConverge(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.PollInterval = time.Hour })
	ctx := context.Background()
	tx, err := h.o.Initiate(ctx, paymentRequest("50", "USD", "+233241234567", "k"))
	require.NoError(t, err)

	ev := &payment.WebhookEvent{Reference: tx.ProviderReference, Outcome: payment.OutcomeSucceeded}
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := h.o.ApplyWebhook(ctx, "mtn", ev)
			require.NoError(t, err)
			require.Equal(t, domain.StateSucceeded, got.State)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.o.pollOnce(ctx, tx)
	}()
	wg.Wait()

	history, err := h.ledger.History(ctx, tx.ID)
	require.NoError(t, err)
	terminal := 0
	for _, rec := range history {
		if rec.To.IsTerminal() {
			terminal++
		}
	}
	require.Equal(t, 1, terminal)
	require.Equal(t, 1, h.events.count(domain.StateSucceeded))

	// late callbacks for settled transactions are acknowledged
	got, err := h.o.ApplyWebhook(ctx, "mtn", &payment.WebhookEvent{Reference: tx.ProviderReference, Outcome: payment.OutcomeDeclined})
	require.NoError(t, err)
	require.Equal(t, domain.StateSucceeded, got.State)

	_, err = h.o.ApplyWebhook(ctx, "mtn", &payment.WebhookEvent{Reference: "unknown", Outcome: payment.OutcomeSucceeded})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSweepTimesOutExactlyOnce(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.PollInterval = time.Hour })
	ctx := context.Background()
	tx, err := h.o.Initiate(ctx, paymentRequest("50", "USD", "+233241234567", "k"))
	require.NoError(t, err)

	n, err := h.o.SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	h.clock.Advance(5*time.Minute + time.Second)

	var wg sync.WaitGroup
	counts := make([]int, 4)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			counts[i], _ = h.o.SweepOnce(ctx)
		}(i)
	}
	wg.Wait()
	total := 0
	for _, c := range counts {
		total += c
	}
	require.Equal(t, 1, total)

	n, err = h.o.SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	got, err := h.ledger.Get(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateTimedOut, got.State)
	require.Equal(t, 1, h.events.count(domain.StateTimedOut))
}

func TestCancelBeforeDispatch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	now := h.clock.Now()
	tx := &domain.Transaction{
		ID:        "tx-resolved",
		Request:   paymentRequest("50", "USD", "+233241234567", "k"),
		State:     domain.StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, h.ledger.Create(ctx, tx))
	tx, err := h.ledger.Transition(ctx, tx.ID, domain.StateCreated, domain.StateValidated, domain.Change{NormalizedPhone: "+233241234567"})
	require.NoError(t, err)
	tx, err = h.ledger.Transition(ctx, tx.ID, domain.StateValidated, domain.StateResolved, domain.Change{ProviderID: "mtn"})
	require.NoError(t, err)

	_, err = h.o.Cancel(ctx, "merchant-2", tx.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	cancelled, err := h.o.Cancel(ctx, "merchant-1", tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateCancelled, cancelled.State)

	// a dispatch racing the cancel must not reach the provider
	got, err := h.o.dispatch(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, domain.StateCancelled, got.State)
	require.Zero(t, h.adapters["mtn"].sendCount())

	_, err = h.o.Cancel(ctx, "merchant-1", tx.ID)
	require.ErrorIs(t, err, domain.ErrNotCancellable)
}

func TestCancelWhilePendingIsOnlyAWish(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.PollInterval = time.Hour })
	ctx := context.Background()
	tx, err := h.o.Initiate(ctx, paymentRequest("50", "USD", "+233241234567", "k"))
	require.NoError(t, err)

	got, err := h.o.Cancel(ctx, "merchant-1", tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatePendingProviderAck, got.State)
	require.True(t, got.CancelRequested)

	settled, err := h.o.ApplyWebhook(ctx, "mtn", &payment.WebhookEvent{Reference: tx.ProviderReference, Outcome: payment.OutcomeSucceeded})
	require.NoError(t, err)
	require.Equal(t, domain.StateSucceeded, settled.State)
	require.True(t, settled.CancelRequested)
}

func TestCancelWaitsForInFlightDispatch(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.PollInterval = time.Hour })
	ctx := context.Background()
	entered := make(chan string)
	release := make(chan struct{})
	h.adapters["mtn"].setSend(func(ctx context.Context, tx *domain.Transaction) (*payment.SendResult, error) {
		entered <- tx.ID
		<-release
		return &payment.SendResult{Accepted: true, Reference: "in-flight"}, nil
	})

	result := make(chan *domain.Transaction, 1)
	go func() {
		tx, err := h.o.Initiate(ctx, paymentRequest("50", "USD", "+233241234567", "k"))
		require.NoError(t, err)
		result <- tx
	}()
	id := <-entered

	cancelled := make(chan *domain.Transaction, 1)
	go func() {
		tx, err := h.o.Cancel(ctx, "merchant-1", id)
		require.NoError(t, err)
		cancelled <- tx
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	initiated := <-result
	require.Equal(t, domain.StatePendingProviderAck, initiated.State)
	wish := <-cancelled
	require.Equal(t, domain.StatePendingProviderAck, wish.State)
	require.True(t, wish.CancelRequested)
}

func TestLookupIsScopedToClient(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.PollInterval = time.Hour })
	ctx := context.Background()
	tx, err := h.o.Initiate(ctx, paymentRequest("50", "USD", "+233241234567", "k"))
	require.NoError(t, err)

	_, err = h.o.Lookup(ctx, "merchant-1", tx.ID)
	require.NoError(t, err)
	_, err = h.o.Lookup(ctx, "someone-else", tx.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	history, err := h.o.History(ctx, "merchant-1", tx.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	require.Equal(t, domain.StatePendingProviderAck, history[3].To)
}

func TestResumePollsPendingTransactions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	now := h.clock.Now()
	tx := &domain.Transaction{
		ID:        "tx-pending",
		Request:   paymentRequest("50", "USD", "+233241234567", "k"),
		State:     domain.StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, h.ledger.Create(ctx, tx))
	for _, step := range []struct {
		from, to domain.State
		change   domain.Change
	}{
		{domain.StateCreated, domain.StateValidated, domain.Change{}},
		{domain.StateValidated, domain.StateResolved, domain.Change{ProviderID: "mtn", NormalizedPhone: "+233241234567"}},
		{domain.StateResolved, domain.StatePendingProviderAck, domain.Change{ProviderReference: "restart-ref"}},
	} {
		_, err := h.ledger.Transition(ctx, tx.ID, step.from, step.to, step.change)
		require.NoError(t, err)
	}
	h.adapters["mtn"].setCheck(func(ctx context.Context, ref string) (*payment.StatusResult, error) {
		require.Equal(t, "restart-ref", ref)
		return &payment.StatusResult{Outcome: payment.OutcomeSucceeded}, nil
	})

	n, err := h.o.Resume(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	h.waitForState(t, tx.ID, domain.StateSucceeded)
}

func TestAmountIsOwnedCopy(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.PollInterval = time.Hour })
	req := paymentRequest("50", "USD", "+233241234567", "k")
	tx, err := h.o.Initiate(context.Background(), req)
	require.NoError(t, err)
	req.Amount = decimal.NewFromInt(999)
	got, err := h.ledger.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	require.True(t, got.Request.Amount.Equal(decimal.NewFromInt(50)))
}
