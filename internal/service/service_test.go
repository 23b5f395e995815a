package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"momopay/config"
	"momopay/internal/auth"
	"momopay/internal/domain"
	"momopay/pkg/payment"

	"firebase.google.com/go/v4/messaging"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	fail   error
	block  chan struct{}
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(ctx context.Context, ev domain.Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.fail
}

func (s *recordingSink) got() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

type panicSink struct{}

func (panicSink) Name() string                               { return "panic" }
func (panicSink) Deliver(context.Context, domain.Event) error { panic("boom") }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFansOutInOrder(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{fail: errors.New("down")}
	n := NewNotifier(8, quietLogger(), panicSink{}, a, b)

	n.Publish(domain.Event{TransactionID: "t1", To: domain.StateCreated})
	n.Publish(domain.Event{TransactionID: "t1", To: domain.StateValidated})
	n.Close()

	for _, s := range []*recordingSink{a, b} {
		got := s.got()
		require.Len(t, got, 2)
		require.Equal(t, domain.StateCreated, got[0].To)
		require.Equal(t, domain.StateValidated, got[1].To)
	}
	// publishing after close is a no-op
	n.Publish(domain.Event{TransactionID: "t2"})
}

func TestNotifierDropsWhenFull(t *testing.T) {
	s := &recordingSink{block: make(chan struct{})}
	n := NewNotifier(1, quietLogger(), s)

	for i := 0; i < 5; i++ {
		n.Publish(domain.Event{TransactionID: "t"})
	}
	require.Positive(t, n.Dropped())
	close(s.block)
	n.Close()
	require.LessOrEqual(t, len(s.got()), 2)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSinkKeysByTransaction(t *testing.T) {
	w := &fakeWriter{}
	s := &KafkaSink{w: w}
	ev := domain.Event{TransactionID: "tx-1", ClientID: "m1", To: domain.StateSucceeded, Amount: "10", Currency: "GHS"}
	require.NoError(t, s.Deliver(context.Background(), ev))

	require.Len(t, w.msgs, 1)
	require.Equal(t, "tx-1", string(w.msgs[0].Key))
	var decoded domain.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	require.Equal(t, domain.StateSucceeded, decoded.To)
	require.Nil(t, NewKafkaSink(nil, "payment.events"))
}

func TestCallbackSinkSigns(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Callback-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewCallbackSink("cb-secret", srv.Client())
	s.allowPrivate = true
	ev := domain.Event{TransactionID: "tx-1", To: domain.StateDeclined, CallbackURL: srv.URL}
	require.NoError(t, s.Deliver(context.Background(), ev))
	require.NoError(t, payment.VerifySignature("cb-secret", gotBody, gotSig))

	// nothing to do without a URL
	require.NoError(t, s.Deliver(context.Background(), domain.Event{TransactionID: "tx-2"}))
}

func TestCallbackSinkReportsFailureStatus(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewCallbackSink("", srv.Client())
	s.allowPrivate = true
	err := s.Deliver(context.Background(), domain.Event{TransactionID: "tx-1", CallbackURL: srv.URL})
	require.Error(t, err)
}

func TestCallbackSinkRefusesInternalTargets(t *testing.T) {
	var hits int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	s := NewCallbackSink("", srv.Client())
	s.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		switch host {
		case "internal.example.com":
			return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}, {IP: net.ParseIP("10.1.2.3")}}, nil
		case "metadata.example.com":
			return []net.IPAddr{{IP: net.ParseIP("169.254.169.254")}}, nil
		}
		return nil, errors.New("no such host")
	}

	for _, target := range []string{
		srv.URL,
		"http://merchant.example.com/hook",
		"https://127.0.0.1/hook",
		"https://localhost:8443/hook",
		"https://10.0.0.1/hook",
		"https://192.168.1.10/hook",
		"https://169.254.169.254/latest/meta-data",
		"https://[::1]/hook",
		"https://user:pw@merchant.example.com/hook",
		"https://internal.example.com/hook",
		"https://metadata.example.com/hook",
	} {
		err := s.Deliver(context.Background(), domain.Event{TransactionID: "tx-1", CallbackURL: target})
		require.ErrorIs(t, err, ErrCallbackURLNotAllowed, target)
	}
	require.Zero(t, atomic.LoadInt32(&hits))

	u, err := ValidateCallbackURL("https://merchant.example.com/hooks/momo")
	require.NoError(t, err)
	require.Equal(t, "merchant.example.com", u.Hostname())
}

func TestDefaultCallbackClientRefusesPrivateDial(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	// the address check is skipped, so only the dialer stands between the sink and loopback
	s := NewCallbackSink("", nil)
	s.allowPrivate = true
	err := s.Deliver(context.Background(), domain.Event{TransactionID: "tx-1", CallbackURL: srv.URL})
	require.ErrorIs(t, err, ErrCallbackURLNotAllowed)
}

type fakeSender struct {
	msgs []*messaging.Message
}

func (f *fakeSender) Send(_ context.Context, msg *messaging.Message) (string, error) {
	f.msgs = append(f.msgs, msg)
	return "id", nil
}

func TestFCMOnlyTerminalWithToken(t *testing.T) {
	sender := &fakeSender{}
	s := &FCMService{client: sender}

	require.NoError(t, s.Deliver(context.Background(), domain.Event{To: domain.StatePendingProviderAck, NotifyToken: "tok"}))
	require.NoError(t, s.Deliver(context.Background(), domain.Event{To: domain.StateSucceeded}))
	require.NoError(t, s.Deliver(context.Background(), domain.Event{
		TransactionID: "tx-1", To: domain.StateSucceeded, NotifyToken: "tok", Amount: "5", Currency: "KES",
	}))

	require.Len(t, sender.msgs, 1)
	require.Equal(t, "tok", sender.msgs[0].Token)
	require.Equal(t, "Payment received", sender.msgs[0].Notification.Title)
	require.Equal(t, "tx-1", sender.msgs[0].Data["transaction_id"])

	var nilSvc *FCMService
	require.NoError(t, nilSvc.Deliver(context.Background(), domain.Event{To: domain.StateSucceeded, NotifyToken: "tok"}))
}

func TestAuthServiceToken(t *testing.T) {
	cfg := &config.JWTConfig{AccessSecret: "s", AccessExpiry: time.Hour, Issuer: "momopay"}
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	clients := StaticClients{
		"m1":  {ClientID: "m1", Name: "Shop", SecretHash: string(hash), Active: true},
		"off": {ClientID: "off", SecretHash: string(hash), Active: false},
	}
	svc := NewAuthService(cfg, clients)

	token, _, err := svc.Token("m1", "pw")
	require.NoError(t, err)
	claims, err := auth.ParseAccessToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, "m1", claims.ClientID)

	_, _, err = svc.Token("m1", "wrong")
	require.ErrorIs(t, err, ErrInvalidCreds)
	_, _, err = svc.Token("ghost", "pw")
	require.ErrorIs(t, err, ErrInvalidCreds)
	_, _, err = svc.Token("off", "pw")
	require.ErrorIs(t, err, ErrClientDisabled)
}

func TestNewStaticClients(t *testing.T) {
	empty, err := NewStaticClients(&config.SeedClientConfig{})
	require.NoError(t, err)
	require.Empty(t, empty)

	clients, err := NewStaticClients(&config.SeedClientConfig{ClientID: "m1", Name: "Shop", Secret: "pw"})
	require.NoError(t, err)
	c, err := clients.GetByClientID("m1")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte("pw")))
	var _ ClientStore = clients
}
