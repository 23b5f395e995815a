package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRequest is the caller's intent. It is immutable once a Transaction owns it.
type PaymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Phone          string          `json:"phone"`
	ProviderHint   string          `json:"provider_hint,omitempty"`
	CountryHint    string          `json:"country_hint,omitempty"`
	Description    string          `json:"description,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`

	// Caller context, passed explicitly by the HTTP layer.
	ClientID    string `json:"client_id"`
	CallbackURL string `json:"callback_url,omitempty"`
	NotifyToken string `json:"-"`
}

// Transaction is the mutable unit of work tracked by the ledger.
type Transaction struct {
	ID                string         `json:"id"`
	Request           PaymentRequest `json:"request"`
	ProviderID        string         `json:"provider_id,omitempty"`
	NormalizedPhone   string         `json:"normalized_phone,omitempty"`
	State             State          `json:"state"`
	ProviderReference string         `json:"provider_reference,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	LastError         string         `json:"last_error,omitempty"`
	AttemptCount      int            `json:"attempt_count"`
	CancelRequested   bool           `json:"cancel_requested"`
	RawResponse       string         `json:"-"`
	KeyAttempt        int            `json:"key_attempt"`
	RetryOf           string         `json:"retry_of,omitempty"`
}

// Clone returns a copy safe to hand out of the ledger.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Change carries the fields a ledger transition may set alongside the new state.
// Zero values leave the stored field untouched.
type Change struct {
	ProviderID        string
	NormalizedPhone   string
	ProviderReference string
	Error             string
	RawResponse       string
	IncrementAttempts bool
	CancelRequested   bool
	Source            string
	At                time.Time
}

// Apply copies the non-zero fields of c onto t.
func (c Change) Apply(t *Transaction) {
	if c.ProviderID != "" {
		t.ProviderID = c.ProviderID
	}
	if c.NormalizedPhone != "" {
		t.NormalizedPhone = c.NormalizedPhone
	}
	if c.ProviderReference != "" {
		t.ProviderReference = c.ProviderReference
	}
	if c.Error != "" {
		t.LastError = c.Error
	}
	if c.RawResponse != "" {
		t.RawResponse = c.RawResponse
	}
	if c.IncrementAttempts {
		t.AttemptCount++
	}
	if c.CancelRequested {
		t.CancelRequested = true
	}
	if !c.At.IsZero() {
		t.UpdatedAt = c.At
	}
}

// TransitionRecord is one entry of a transaction's audit trail.
type TransitionRecord struct {
	TransactionID string    `json:"transaction_id"`
	From          State     `json:"from"`
	To            State     `json:"to"`
	Source        string    `json:"source,omitempty"`
	Error         string    `json:"error,omitempty"`
	RawResponse   string    `json:"raw_response,omitempty"`
	At            time.Time `json:"at"`
}
