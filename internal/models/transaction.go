package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the materialized current-state row of a payment attempt.
type Transaction struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	ClientID          string          `gorm:"size:64;not null;uniqueIndex:idx_tx_idem,priority:1" json:"client_id"`
	IdempotencyKey    string          `gorm:"size:255;not null;uniqueIndex:idx_tx_idem,priority:2" json:"-"`
	KeyAttempt        int             `gorm:"not null;default:0;uniqueIndex:idx_tx_idem,priority:3" json:"key_attempt"`
	RetryOf           string          `gorm:"size:36" json:"retry_of,omitempty"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency          string          `gorm:"size:3;not null" json:"currency"`
	Phone             string          `gorm:"size:32;not null" json:"-"`
	ProviderHint      string          `gorm:"size:32" json:"provider_hint,omitempty"`
	CountryHint       string          `gorm:"size:2" json:"country_hint,omitempty"`
	Description       string          `gorm:"size:255" json:"description,omitempty"`
	CallbackURL       string          `gorm:"size:512" json:"-"`
	NotifyToken       string          `gorm:"size:255" json:"-"`
	ProviderID        string          `gorm:"size:32;index:idx_tx_provider_ref,priority:1" json:"provider_id"`
	NormalizedPhone   string          `gorm:"size:20" json:"normalized_phone"`
	ProviderReference string          `gorm:"size:128;index:idx_tx_provider_ref,priority:2" json:"provider_reference"`
	State             string          `gorm:"size:32;not null;index" json:"state"` // see domain.State
	LastError         string          `gorm:"type:text" json:"last_error"`
	RawResponse       string          `gorm:"type:text" json:"-"`
	AttemptCount      int             `gorm:"not null;default:0" json:"attempt_count"`
	CancelRequested   bool            `gorm:"not null;default:false" json:"cancel_requested"`
	CreatedAt         time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// TransactionEvent is one append-only audit entry per state transition.
type TransactionEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TransactionID string    `gorm:"size:36;not null;index" json:"transaction_id"`
	FromState     string    `gorm:"size:32" json:"from_state"`
	ToState       string    `gorm:"size:32;not null" json:"to_state"`
	Source        string    `gorm:"size:32" json:"source"` // create, initiate, poll, webhook, sweep, cancel
	Error         string    `gorm:"type:text" json:"error,omitempty"`
	RawResponse   string    `gorm:"type:text" json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

func (TransactionEvent) TableName() string {
	return "transaction_events"
}
