package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"momopay/internal/domain"
)

// Sink delivers lifecycle events to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev domain.Event) error
}

// Notifier fans lifecycle events out to its sinks from a single worker.
// Publish never blocks; when the buffer is full the event is dropped and counted.
type Notifier struct {
	sinks   []Sink
	log     *slog.Logger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	ch      chan domain.Event
	done    chan struct{}
	dropped atomic.Int64
}

func NewNotifier(buffer int, log *slog.Logger, sinks ...Sink) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = slog.Default()
	}
	var active []Sink
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	n := &Notifier{
		sinks:   active,
		log:     log,
		timeout: 10 * time.Second,
		ch:      make(chan domain.Event, buffer),
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *Notifier) Publish(ev domain.Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.ch <- ev:
	default:
		n.dropped.Add(1)
		n.log.Warn("event dropped, notifier buffer full",
			"transaction_id", ev.TransactionID, "state", ev.To)
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (n *Notifier) Dropped() int64 { return n.dropped.Load() }

// Close stops accepting events and waits for queued ones to be delivered.
func (n *Notifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.ch)
	}
	n.mu.Unlock()
	<-n.done
}

func (n *Notifier) run() {
	defer close(n.done)
	for ev := range n.ch {
		for _, s := range n.sinks {
			n.deliver(s, ev)
		}
	}
}

func (n *Notifier) deliver(s Sink, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("sink panicked", "sink", s.Name(), "transaction_id", ev.TransactionID, "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	if err := s.Deliver(ctx, ev); err != nil {
		n.log.Warn("event delivery failed", "sink", s.Name(),
			"transaction_id", ev.TransactionID, "state", ev.To, "err", err)
	}
}
