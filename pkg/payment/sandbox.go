package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"momopay/internal/domain"
)

// Sandbox is a deterministic in-process provider for local runs. The last digit
// of the payer number picks the scenario:
//
//	0 declined by the payer
//	9 rejected at dispatch
//	8 provider outage at dispatch
//	7 never settles
//
// Any other number succeeds after SettleAfter status checks.
type Sandbox struct {
	id            string
	settleAfter   int
	webhookSecret string

	mu     sync.Mutex
	checks map[string]int
	phones map[string]string
}

func NewSandbox(id string, settleAfter int, webhookSecret string) *Sandbox {
	return &Sandbox{
		id:            id,
		settleAfter:   settleAfter,
		webhookSecret: webhookSecret,
		checks:        make(map[string]int),
		phones:        make(map[string]string),
	}
}

func (s *Sandbox) ID() string { return s.id }

func lastDigit(phone string) byte {
	if phone == "" {
		return 0
	}
	return phone[len(phone)-1]
}

func (s *Sandbox) Send(_ context.Context, tx *domain.Transaction) (*SendResult, error) {
	switch lastDigit(tx.NormalizedPhone) {
	case '9':
		return &SendResult{Accepted: false, Message: "payer account not eligible"}, nil
	case '8':
		return nil, newAPIError(s.id, http.StatusServiceUnavailable, []byte(`{"error":"sandbox outage"}`))
	}
	ref := "sbx-" + tx.ID
	s.mu.Lock()
	s.phones[ref] = tx.NormalizedPhone
	s.mu.Unlock()
	return &SendResult{Accepted: true, Reference: ref}, nil
}

func (s *Sandbox) CheckStatus(_ context.Context, reference string) (*StatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	phone, ok := s.phones[reference]
	if !ok {
		return nil, newAPIError(s.id, http.StatusNotFound, []byte(`{"error":"unknown reference"}`))
	}
	s.checks[reference]++
	switch lastDigit(phone) {
	case '0':
		return &StatusResult{Outcome: OutcomeDeclined, Reason: "payer declined"}, nil
	case '7':
		return &StatusResult{Outcome: OutcomePending}, nil
	}
	if s.checks[reference] >= s.settleAfter {
		return &StatusResult{Outcome: OutcomeSucceeded}, nil
	}
	return &StatusResult{Outcome: OutcomePending}, nil
}

type sandboxCallback struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
}

func (s *Sandbox) ParseWebhook(header http.Header, _ url.Values, body []byte) (*WebhookEvent, error) {
	if err := VerifySignature(s.webhookSecret, body, header.Get("X-Webhook-Signature")); err != nil {
		return nil, err
	}
	var cb sandboxCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("decode sandbox callback: %w", err)
	}
	if cb.Reference == "" {
		return nil, ErrMissingReference
	}
	switch Outcome(strings.ToUpper(cb.Status)) {
	case OutcomeSucceeded:
		return &WebhookEvent{Reference: cb.Reference, Outcome: OutcomeSucceeded, Raw: string(body)}, nil
	case OutcomeDeclined:
		return &WebhookEvent{Reference: cb.Reference, Outcome: OutcomeDeclined, Reason: cb.Reason, Raw: string(body)}, nil
	case OutcomePending:
		return &WebhookEvent{Reference: cb.Reference, Outcome: OutcomePending, Raw: string(body)}, nil
	}
	return nil, fmt.Errorf("%w: sandbox %q", ErrUnknownStatus, cb.Status)
}
