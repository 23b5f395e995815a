// Package reconcile surfaces payments whose outcome at the provider is unknown
// (TIMED_OUT, ERROR) for manual follow-up. It never changes their state.
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"momopay/internal/domain"
)

var ErrArchiveDisabled = errors.New("report archive not configured")

// AmbiguousStates are terminal states whose money movement is unconfirmed.
var AmbiguousStates = []domain.State{domain.StateTimedOut, domain.StateError}

type Store interface {
	ListByState(ctx context.Context, states []domain.State, limit int) ([]*domain.Transaction, error)
}

type Uploader interface {
	UploadRaw(ctx context.Context, file io.Reader, folder, publicID string) (string, error)
}

type Item struct {
	TransactionID     string       `json:"transaction_id"`
	ClientID          string       `json:"client_id"`
	ProviderID        string       `json:"provider_id,omitempty"`
	ProviderReference string       `json:"provider_reference,omitempty"`
	State             domain.State `json:"state"`
	Amount            string       `json:"amount"`
	Currency          string       `json:"currency"`
	Phone             string       `json:"phone"`
	LastError         string       `json:"last_error,omitempty"`
	AttemptCount      int          `json:"attempt_count"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

type Report struct {
	ClientID    string    `json:"client_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Count       int       `json:"count"`
	Items       []Item    `json:"items"`
}

type Export struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

type Service struct {
	store    Store
	uploader Uploader
	folder   string
	limit    int
	now      func() time.Time
}

// New builds the service; uploader may be nil, in which case Export is unavailable.
func New(store Store, uploader Uploader, folder string) *Service {
	return &Service{store: store, uploader: uploader, folder: folder, limit: 1000, now: time.Now}
}

// Report lists the client's ambiguous transactions, most recent first as the store returns them.
func (s *Service) Report(ctx context.Context, clientID string) (*Report, error) {
	txs, err := s.store.ListByState(ctx, AmbiguousStates, s.limit)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(txs))
	for _, tx := range txs {
		if clientID != "" && tx.Request.ClientID != clientID {
			continue
		}
		items = append(items, Item{
			TransactionID:     tx.ID,
			ClientID:          tx.Request.ClientID,
			ProviderID:        tx.ProviderID,
			ProviderReference: tx.ProviderReference,
			State:             tx.State,
			Amount:            tx.Request.Amount.String(),
			Currency:          tx.Request.Currency,
			Phone:             domain.MaskPhone(tx.NormalizedPhone),
			LastError:         tx.LastError,
			AttemptCount:      tx.AttemptCount,
			CreatedAt:         tx.CreatedAt,
			UpdatedAt:         tx.UpdatedAt,
		})
	}
	return &Report{ClientID: clientID, GeneratedAt: s.now().UTC(), Count: len(items), Items: items}, nil
}

// Export archives the client's report as a JSON document and returns its URL.
func (s *Service) Export(ctx context.Context, clientID string) (*Export, error) {
	if s.uploader == nil {
		return nil, ErrArchiveDisabled
	}
	rep, err := s.Report(ctx, clientID)
	if err != nil {
		return nil, err
	}
	body, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, err
	}
	publicID := "reconciliation-" + clientID + "-" + rep.GeneratedAt.Format("20060102T150405Z") + ".json"
	url, err := s.uploader.UploadRaw(ctx, bytes.NewReader(body), s.folder, publicID)
	if err != nil {
		return nil, err
	}
	return &Export{URL: url, Count: rep.Count}, nil
}
