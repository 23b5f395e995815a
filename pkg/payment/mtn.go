package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"momopay/internal/domain"
)

// MTNConfig holds MTN MoMo Collections credentials.
type MTNConfig struct {
	BaseURL           string
	SubscriptionKey   string
	APIUser           string
	APIKey            string
	TargetEnvironment string
	CallbackURL       string
	WebhookSecret     string
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// MTN implements Adapter for MTN MoMo request-to-pay.
type MTN struct {
	cfg    MTNConfig
	client *http.Client
	tokens *TokenCache
	log    *slog.Logger
	newRef func() string
}

func NewMTN(cfg MTNConfig) *MTN {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://sandbox.momodeveloper.mtn.com"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.TargetEnvironment == "" {
		cfg.TargetEnvironment = "sandbox"
	}
	m := &MTN{
		cfg:    cfg,
		client: defaultHTTPClient(cfg.HTTPClient),
		log:    loggerOr(cfg.Logger).With("provider", "mtn"),
		newRef: uuid.NewString,
	}
	m.tokens = NewTokenCache(m.fetchToken)
	return m
}

func (m *MTN) ID() string { return "mtn" }

type mtnTokenResp struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (m *MTN) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/collection/token/", nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(m.cfg.APIUser, m.cfg.APIKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", m.cfg.SubscriptionKey)
	resp, err := m.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, newAPIError("mtn", resp.StatusCode, nil)
	}
	var out mtnTokenResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("decode mtn token: %w", err)
	}
	return out.AccessToken, time.Duration(out.ExpiresIn) * time.Second, nil
}

type mtnParty struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type mtnRequestToPay struct {
	Amount       string   `json:"amount"`
	Currency     string   `json:"currency"`
	ExternalID   string   `json:"externalId"`
	Payer        mtnParty `json:"payer"`
	PayerMessage string   `json:"payerMessage"`
	PayeeNote    string   `json:"payeeNote"`
}

type mtnStatusResp struct {
	ExternalID             string `json:"externalId"`
	FinancialTransactionID string `json:"financialTransactionId"`
	ReferenceID            string `json:"referenceId"`
	Status                 string `json:"status"`
	Reason                 any    `json:"reason"`
}

func (m *MTN) headers(token string) map[string]string {
	return map[string]string{
		"Authorization":             "Bearer " + token,
		"Ocp-Apim-Subscription-Key": m.cfg.SubscriptionKey,
		"X-Target-Environment":      m.cfg.TargetEnvironment,
	}
}

func (m *MTN) Send(ctx context.Context, tx *domain.Transaction) (*SendResult, error) {
	ref := m.newRef()
	payload := mtnRequestToPay{
		Amount:       FormatAmount(tx.Request.Amount, tx.Request.Currency),
		Currency:     tx.Request.Currency,
		ExternalID:   tx.ID,
		Payer:        mtnParty{PartyIDType: "MSISDN", PartyID: msisdn(tx.NormalizedPhone)},
		PayerMessage: tx.Request.Description,
		PayeeNote:    tx.Request.Description,
	}
	var raw []byte
	err := m.tokens.Do(ctx, func(token string) error {
		h := m.headers(token)
		h["X-Reference-Id"] = ref
		if m.cfg.CallbackURL != "" {
			h["X-Callback-Url"] = m.cfg.CallbackURL + "?reference=" + url.QueryEscape(ref)
		}
		var err error
		_, raw, err = doJSON(ctx, m.client, "mtn", http.MethodPost, m.cfg.BaseURL+"/collection/v1_0/requesttopay", h, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("request to pay accepted", "transaction_id", tx.ID, "reference", ref)
	return &SendResult{Accepted: true, Reference: ref, Raw: string(raw)}, nil
}

func (m *MTN) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	var raw []byte
	err := m.tokens.Do(ctx, func(token string) error {
		var err error
		_, raw, err = doJSON(ctx, m.client, "mtn", http.MethodGet,
			m.cfg.BaseURL+"/collection/v1_0/requesttopay/"+url.PathEscape(reference), m.headers(token), nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	var out mtnStatusResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode mtn status: %w", err)
	}
	return mtnOutcome(out, string(raw))
}

func mtnOutcome(out mtnStatusResp, raw string) (*StatusResult, error) {
	reason := ""
	switch r := out.Reason.(type) {
	case string:
		reason = r
	case map[string]any:
		if msg, ok := r["message"].(string); ok {
			reason = msg
		} else if code, ok := r["code"].(string); ok {
			reason = code
		}
	}
	switch strings.ToUpper(out.Status) {
	case "SUCCESSFUL":
		return &StatusResult{Outcome: OutcomeSucceeded, Raw: raw}, nil
	case "FAILED", "REJECTED", "TIMEOUT":
		if reason == "" {
			reason = strings.ToLower(out.Status)
		}
		return &StatusResult{Outcome: OutcomeDeclined, Reason: reason, Raw: raw}, nil
	case "PENDING", "CREATED", "ONGOING":
		return &StatusResult{Outcome: OutcomePending, Raw: raw}, nil
	}
	return nil, fmt.Errorf("%w: mtn %q", ErrUnknownStatus, out.Status)
}

func (m *MTN) ParseWebhook(header http.Header, query url.Values, body []byte) (*WebhookEvent, error) {
	if err := VerifySignature(m.cfg.WebhookSecret, body, header.Get("X-Webhook-Signature")); err != nil {
		return nil, err
	}
	var out mtnStatusResp
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode mtn callback: %w", err)
	}
	ref := query.Get("reference")
	if ref == "" {
		ref = out.ReferenceID
	}
	if ref == "" {
		return nil, ErrMissingReference
	}
	res, err := mtnOutcome(out, string(body))
	if err != nil {
		return nil, err
	}
	return &WebhookEvent{Reference: ref, Outcome: res.Outcome, Reason: res.Reason, Raw: res.Raw}, nil
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
