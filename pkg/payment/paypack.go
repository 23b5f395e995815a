package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"momopay/internal/domain"
)

const paypackDefaultBaseURL = "https://payments.paypack.rw"

// PaypackConfig holds Paypack agent credentials.
type PaypackConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Paypack implements Adapter for the Paypack Rwanda aggregator, which fronts
// both MTN and Airtel Rwanda wallets.
type Paypack struct {
	cfg    PaypackConfig
	client *http.Client
	tokens *TokenCache
	log    *slog.Logger
}

func NewPaypack(cfg PaypackConfig) *Paypack {
	if cfg.BaseURL == "" {
		cfg.BaseURL = paypackDefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	p := &Paypack{
		cfg:    cfg,
		client: defaultHTTPClient(cfg.HTTPClient),
		log:    loggerOr(cfg.Logger).With("provider", "paypack"),
	}
	p.tokens = NewTokenCache(p.authorize)
	return p
}

func (p *Paypack) ID() string { return "paypack" }

type paypackAuthResp struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	Expires int    `json:"expires"`
}

type paypackTransaction struct {
	Ref       string    `json:"ref"`
	Status    string    `json:"status,omitempty"`
	Amount    float64   `json:"amount"`
	Kind      string    `json:"kind"`
	Provider  string    `json:"provider"`
	Client    string    `json:"client,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type paypackEvent struct {
	EventKind string             `json:"event_kind"`
	Data      paypackTransaction `json:"data"`
}

func (p *Paypack) authorize(ctx context.Context) (string, time.Duration, error) {
	_, body, err := doJSON(ctx, p.client, "paypack", http.MethodPost, p.cfg.BaseURL+"/api/auth/agents/authorize", nil,
		map[string]string{"client_id": p.cfg.ClientID, "client_secret": p.cfg.ClientSecret})
	if err != nil {
		return "", 0, err
	}
	var auth paypackAuthResp
	if err := json.Unmarshal(body, &auth); err != nil {
		return "", 0, fmt.Errorf("decode authorize response: %w", err)
	}
	if auth.Access == "" {
		return "", 0, errors.New("authorize response missing access token")
	}
	return auth.Access, time.Duration(auth.Expires) * time.Second, nil
}

// localNumber turns +250788123456 into 0788123456.
func localNumber(normalized string) string {
	_, national := nationalNumber(normalized)
	return "0" + national
}

func (p *Paypack) Send(ctx context.Context, tx *domain.Transaction) (*SendResult, error) {
	amount, _ := tx.Request.Amount.Float64()
	payload := map[string]any{
		"amount": amount,
		"number": localNumber(tx.NormalizedPhone),
	}
	var raw []byte
	err := p.tokens.Do(ctx, func(token string) error {
		var err error
		_, raw, err = doJSON(ctx, p.client, "paypack", http.MethodPost, p.cfg.BaseURL+"/api/transactions/cashin",
			map[string]string{"Authorization": "Bearer " + token, "Idempotency-Key": tx.ID}, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	var txn paypackTransaction
	if err := json.Unmarshal(raw, &txn); err != nil {
		return nil, fmt.Errorf("decode cashin response: %w", err)
	}
	if txn.Ref == "" {
		return &SendResult{Accepted: false, Message: "cashin response missing reference", Raw: string(raw)}, nil
	}
	p.log.Info("cashin accepted", "transaction_id", tx.ID, "reference", txn.Ref)
	return &SendResult{Accepted: true, Reference: txn.Ref, Raw: string(raw)}, nil
}

func (p *Paypack) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	var raw []byte
	err := p.tokens.Do(ctx, func(token string) error {
		var err error
		_, raw, err = doJSON(ctx, p.client, "paypack", http.MethodGet,
			p.cfg.BaseURL+"/api/transactions/find/"+url.PathEscape(reference),
			map[string]string{"Authorization": "Bearer " + token}, nil)
		return err
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			// not yet visible on Paypack's side
			return &StatusResult{Outcome: OutcomePending, Raw: apiErr.Body}, nil
		}
		return nil, err
	}
	var txn paypackTransaction
	if err := json.Unmarshal(raw, &txn); err != nil || txn.Ref == "" {
		return &StatusResult{Outcome: OutcomePending, Raw: string(raw)}, nil
	}
	return paypackOutcome(txn.Status, string(raw))
}

func paypackOutcome(status, raw string) (*StatusResult, error) {
	switch strings.ToLower(status) {
	case "successful", "success":
		return &StatusResult{Outcome: OutcomeSucceeded, Raw: raw}, nil
	case "failed":
		return &StatusResult{Outcome: OutcomeDeclined, Reason: "transaction failed", Raw: raw}, nil
	case "pending", "":
		return &StatusResult{Outcome: OutcomePending, Raw: raw}, nil
	}
	return nil, fmt.Errorf("%w: paypack %q", ErrUnknownStatus, status)
}

func (p *Paypack) ParseWebhook(header http.Header, _ url.Values, body []byte) (*WebhookEvent, error) {
	if err := VerifySignature(p.cfg.WebhookSecret, body, header.Get("X-Paypack-Signature")); err != nil {
		return nil, err
	}
	var ev paypackEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode paypack event: %w", err)
	}
	if ev.Data.Ref == "" {
		return nil, ErrMissingReference
	}
	res, err := paypackOutcome(ev.Data.Status, string(body))
	if err != nil {
		return nil, err
	}
	return &WebhookEvent{Reference: ev.Data.Ref, Outcome: res.Outcome, Reason: res.Reason, Raw: res.Raw}, nil
}
