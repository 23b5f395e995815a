package domain

import "time"

// Event is published on every ledger transition.
type Event struct {
	TransactionID     string    `json:"transaction_id"`
	ClientID          string    `json:"client_id"`
	From              State     `json:"from"`
	To                State     `json:"to"`
	ProviderID        string    `json:"provider_id,omitempty"`
	ProviderReference string    `json:"provider_reference,omitempty"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	Error             string    `json:"error,omitempty"`
	At                time.Time `json:"at"`

	CallbackURL string `json:"-"`
	NotifyToken string `json:"-"`
}

// NewEvent builds the event describing tx having moved from -> tx.State.
func NewEvent(tx *Transaction, from State) Event {
	return Event{
		TransactionID:     tx.ID,
		ClientID:          tx.Request.ClientID,
		From:              from,
		To:                tx.State,
		ProviderID:        tx.ProviderID,
		ProviderReference: tx.ProviderReference,
		Amount:            tx.Request.Amount.String(),
		Currency:          tx.Request.Currency,
		Error:             tx.LastError,
		At:                tx.UpdatedAt,
		CallbackURL:       tx.Request.CallbackURL,
		NotifyToken:       tx.Request.NotifyToken,
	}
}

// MaskPhone hides all but the last four digits of a phone number for logs.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
