// Package orchestrator drives payment transactions through their lifecycle. It is the
// only writer of the ledger: initiation is synchronous up to provider dispatch, and
// settlement arrives later from the poller, provider webhooks or the timeout sweep.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"momopay/internal/domain"
	"momopay/internal/ledger"
	"momopay/internal/resolver"
	"momopay/pkg/idempotency"
	"momopay/pkg/payment"
)

// Providers is the read side of the provider registry.
type Providers interface {
	GetProvider(id string) (domain.ProviderDescriptor, error)
}

// Resolver maps a raw phone number onto candidate providers.
type Resolver interface {
	Normalize(phone, countryHint string) (string, error)
	Resolve(phone, countryHint string) (resolver.Resolution, error)
}

// Publisher receives lifecycle events. Publish must not block.
type Publisher interface {
	Publish(ev domain.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(domain.Event) {}

type Config struct {
	PollInterval       time.Duration
	MaxPollAttempts    int
	MaxWait            time.Duration
	SweepInterval      time.Duration
	DispatchTimeout    time.Duration
	LockTimeout        time.Duration
	StatusRetry        payment.RetryPolicy
	ProviderPriority   []string
	MaxInitiateRetries int
}

func DefaultConfig() Config {
	return Config{
		PollInterval:       10 * time.Second,
		MaxPollAttempts:    30,
		MaxWait:            5 * time.Minute,
		SweepInterval:      30 * time.Second,
		DispatchTimeout:    30 * time.Second,
		LockTimeout:        10 * time.Second,
		StatusRetry:        payment.DefaultRetryPolicy,
		MaxInitiateRetries: 3,
	}
}

type Option func(*Orchestrator)

func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

func WithLocker(l idempotency.Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithClock replaces time.Now; tests use it to move past MaxWait.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

type Orchestrator struct {
	ledger    ledger.Ledger
	providers Providers
	resolver  Resolver
	adapters  map[string]payment.Adapter
	locker    idempotency.Locker
	events    Publisher
	log       *slog.Logger
	cfg       Config
	now       func() time.Time
	newID     func() string

	// pollers outlive the request that started them
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	polling map[string]struct{}
}

func New(l ledger.Ledger, providers Providers, res Resolver, adapters []payment.Adapter, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		ledger:    l,
		providers: providers,
		resolver:  res,
		adapters:  make(map[string]payment.Adapter, len(adapters)),
		locker:    idempotency.NewLocalLocker(),
		events:    nopPublisher{},
		log:       slog.Default(),
		cfg:       DefaultConfig(),
		now:       time.Now,
		newID:     uuid.NewString,
		baseCtx:   ctx,
		stop:      cancel,
		polling:   make(map[string]struct{}),
	}
	for _, a := range adapters {
		o.adapters[a.ID()] = a
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Adapter returns the adapter registered for providerID.
func (o *Orchestrator) Adapter(providerID string) (payment.Adapter, bool) {
	a, ok := o.adapters[providerID]
	return a, ok
}

// Resume restarts polling for every transaction still waiting on its provider.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	pending, err := o.ledger.ListPending(ctx, o.now())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, tx := range pending {
		if o.startPolling(tx) {
			n++
		}
	}
	o.log.Info("resumed pending transactions", "count", n)
	return n, nil
}

// Close stops all pollers and waits for them to exit.
func (o *Orchestrator) Close() {
	o.stop()
	o.wg.Wait()
}

func (o *Orchestrator) timestamp() time.Time {
	return o.now().UTC()
}

// transition moves tx to the given state and publishes the resulting event. Self
// transitions are recorded in the ledger but not published.
func (o *Orchestrator) transition(ctx context.Context, tx *domain.Transaction, to domain.State, change domain.Change) (*domain.Transaction, error) {
	change.At = o.timestamp()
	next, err := o.ledger.Transition(ctx, tx.ID, tx.State, to, change)
	if err != nil {
		return nil, err
	}
	if tx.State != to {
		o.log.Info("transaction transitioned",
			"transaction_id", tx.ID, "provider", next.ProviderID,
			"from", string(tx.State), "state", string(to), "source", change.Source)
		o.events.Publish(domain.NewEvent(next, tx.State))
	}
	return next, nil
}

// current reloads tx after a lost race.
func (o *Orchestrator) current(ctx context.Context, id string) (*domain.Transaction, error) {
	return o.ledger.Get(ctx, id)
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrConflict)
}

func txLockKey(id string) string {
	return "tx:" + id
}
