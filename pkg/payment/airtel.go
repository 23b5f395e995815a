package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"momopay/internal/domain"
)

// AirtelConfig holds Airtel Money collection credentials.
type AirtelConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Airtel implements Adapter for Airtel Money USSD push collections.
type Airtel struct {
	cfg    AirtelConfig
	client *http.Client
	tokens *TokenCache
	log    *slog.Logger
}

func NewAirtel(cfg AirtelConfig) *Airtel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openapiuat.airtel.africa"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	a := &Airtel{
		cfg:    cfg,
		client: defaultHTTPClient(cfg.HTTPClient),
		log:    loggerOr(cfg.Logger).With("provider", "airtel"),
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.BaseURL + "/auth/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	a.tokens = NewTokenCache(clientCredentialsFetcher("airtel", cc, a.client))
	return a
}

func (a *Airtel) ID() string { return "airtel" }

type airtelStatus struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	ResultCode string `json:"result_code"`
	Success    bool   `json:"success"`
}

type airtelPaymentResp struct {
	Data struct {
		Transaction struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			Message       string `json:"message"`
			AirtelMoneyID string `json:"airtel_money_id"`
		} `json:"transaction"`
	} `json:"data"`
	Status airtelStatus `json:"status"`
}

type airtelCallback struct {
	Transaction struct {
		ID            string `json:"id"`
		Message       string `json:"message"`
		StatusCode    string `json:"status_code"`
		AirtelMoneyID string `json:"airtel_money_id"`
	} `json:"transaction"`
}

func (a *Airtel) Send(ctx context.Context, tx *domain.Transaction) (*SendResult, error) {
	country, national := nationalNumber(tx.NormalizedPhone)
	payload := map[string]any{
		"reference": tx.Request.Description,
		"subscriber": map[string]string{
			"country":  country,
			"currency": tx.Request.Currency,
			"msisdn":   national,
		},
		"transaction": map[string]string{
			"amount":   FormatAmount(tx.Request.Amount, tx.Request.Currency),
			"country":  country,
			"currency": tx.Request.Currency,
			"id":       tx.ID,
		},
	}
	var raw []byte
	err := a.tokens.Do(ctx, func(token string) error {
		h := map[string]string{
			"Authorization": "Bearer " + token,
			"X-Country":     country,
			"X-Currency":    tx.Request.Currency,
		}
		var err error
		_, raw, err = doJSON(ctx, a.client, "airtel", http.MethodPost, a.cfg.BaseURL+"/merchant/v1/payments/", h, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	var out airtelPaymentResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode airtel payment: %w", err)
	}
	if !out.Status.Success {
		return &SendResult{Accepted: false, Message: out.Status.Message, Raw: string(raw)}, nil
	}
	ref := out.Data.Transaction.ID
	if ref == "" {
		ref = tx.ID
	}
	a.log.Info("ussd push accepted", "transaction_id", tx.ID, "reference", ref)
	return &SendResult{Accepted: true, Reference: ref, Raw: string(raw)}, nil
}

func (a *Airtel) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	var raw []byte
	err := a.tokens.Do(ctx, func(token string) error {
		var err error
		_, raw, err = doJSON(ctx, a.client, "airtel", http.MethodGet,
			a.cfg.BaseURL+"/standard/v1/payments/"+url.PathEscape(reference),
			map[string]string{"Authorization": "Bearer " + token}, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	var out airtelPaymentResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode airtel status: %w", err)
	}
	return airtelOutcome(out.Data.Transaction.Status, out.Data.Transaction.Message, string(raw))
}

// Airtel status codes: TS success, TF failed, TA ambiguous, TIP in progress, DP debit pending.
func airtelOutcome(code, message, raw string) (*StatusResult, error) {
	switch strings.ToUpper(code) {
	case "TS":
		return &StatusResult{Outcome: OutcomeSucceeded, Raw: raw}, nil
	case "TF", "TE":
		if message == "" {
			message = "transaction failed"
		}
		return &StatusResult{Outcome: OutcomeDeclined, Reason: message, Raw: raw}, nil
	case "TA", "TIP", "DP":
		return &StatusResult{Outcome: OutcomePending, Raw: raw}, nil
	}
	return nil, fmt.Errorf("%w: airtel %q", ErrUnknownStatus, code)
}

func (a *Airtel) ParseWebhook(header http.Header, _ url.Values, body []byte) (*WebhookEvent, error) {
	if err := VerifySignature(a.cfg.WebhookSecret, body, header.Get("X-Webhook-Signature")); err != nil {
		return nil, err
	}
	var cb airtelCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("decode airtel callback: %w", err)
	}
	if cb.Transaction.ID == "" {
		return nil, ErrMissingReference
	}
	res, err := airtelOutcome(cb.Transaction.StatusCode, cb.Transaction.Message, string(body))
	if err != nil {
		return nil, err
	}
	return &WebhookEvent{Reference: cb.Transaction.ID, Outcome: res.Outcome, Reason: res.Reason, Raw: res.Raw}, nil
}
