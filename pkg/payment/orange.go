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

// OrangeConfig holds Orange Money merchant-payment credentials.
type OrangeConfig struct {
	BaseURL           string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	AuthToken         string // X-AUTH-TOKEN
	ChannelUserMSISDN string
	PIN               string
	NotifyURL         string
	WebhookSecret     string
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Orange implements Adapter for Orange Money. The payer confirms by dialing a
// USSD code, so the accepted result carries the provider's instruction text.
type Orange struct {
	cfg    OrangeConfig
	client *http.Client
	tokens *TokenCache
	log    *slog.Logger
}

func NewOrange(cfg OrangeConfig) *Orange {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api-s1.orange.cm"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.TokenURL == "" {
		cfg.TokenURL = cfg.BaseURL + "/token"
	}
	o := &Orange{
		cfg:    cfg,
		client: defaultHTTPClient(cfg.HTTPClient),
		log:    loggerOr(cfg.Logger).With("provider", "orange"),
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	o.tokens = NewTokenCache(clientCredentialsFetcher("orange", cc, o.client))
	return o
}

func (o *Orange) ID() string { return "orange" }

type orangeResp struct {
	Message string `json:"message"`
	Data    struct {
		PayToken       string `json:"payToken"`
		Status         string `json:"status"`
		InitTxnMessage string `json:"inittxnmessage"`
		TxnID          string `json:"txnid"`
		ConfirmMessage string `json:"confirmtxnmessage"`
	} `json:"data"`
}

type orangeCallback struct {
	PayToken string `json:"payToken"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

const orangeAPI = "/omcoreapis/1.0.2/mp"

func (o *Orange) headers(token string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token,
		"X-AUTH-TOKEN":  o.cfg.AuthToken,
	}
}

func (o *Orange) call(ctx context.Context, method, path string, payload any) (*orangeResp, []byte, error) {
	var raw []byte
	err := o.tokens.Do(ctx, func(token string) error {
		var err error
		_, raw, err = doJSON(ctx, o.client, "orange", method, o.cfg.BaseURL+orangeAPI+path, o.headers(token), payload)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	var out orangeResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, fmt.Errorf("decode orange %s: %w", path, err)
	}
	return &out, raw, nil
}

func (o *Orange) Send(ctx context.Context, tx *domain.Transaction) (*SendResult, error) {
	init, _, err := o.call(ctx, http.MethodPost, "/init", nil)
	if err != nil {
		return nil, err
	}
	if init.Data.PayToken == "" {
		return nil, rejected("orange", "init returned no pay token")
	}
	_, national := nationalNumber(tx.NormalizedPhone)
	payload := map[string]string{
		"notifUrl":          o.cfg.NotifyURL,
		"channelUserMsisdn": o.cfg.ChannelUserMSISDN,
		"amount":            FormatAmount(tx.Request.Amount, tx.Request.Currency),
		"subscriberMsisdn":  national,
		"pin":               o.cfg.PIN,
		"orderId":           tx.ID,
		"description":       tx.Request.Description,
		"payToken":          init.Data.PayToken,
	}
	pay, raw, err := o.call(ctx, http.MethodPost, "/pay", payload)
	if err != nil {
		return nil, err
	}
	switch strings.ToUpper(pay.Data.Status) {
	case "PENDING", "SUCCESSFULL", "SUCCESSFUL":
	default:
		return &SendResult{Accepted: false, Message: pay.Message, Raw: string(raw)}, nil
	}
	o.log.Info("ussd payment initiated", "transaction_id", tx.ID, "reference", init.Data.PayToken)
	return &SendResult{
		Accepted:  true,
		Reference: init.Data.PayToken,
		Message:   pay.Data.InitTxnMessage,
		Raw:       string(raw),
	}, nil
}

func (o *Orange) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	out, raw, err := o.call(ctx, http.MethodGet, "/paymentstatus/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}
	return orangeOutcome(out.Data.Status, out.Message, string(raw))
}

func orangeOutcome(status, message, raw string) (*StatusResult, error) {
	switch strings.ToUpper(status) {
	case "SUCCESSFULL", "SUCCESSFUL":
		return &StatusResult{Outcome: OutcomeSucceeded, Raw: raw}, nil
	case "FAILED", "CANCELLED", "EXPIRED":
		if message == "" {
			message = strings.ToLower(status)
		}
		return &StatusResult{Outcome: OutcomeDeclined, Reason: message, Raw: raw}, nil
	case "PENDING", "INITIATED":
		return &StatusResult{Outcome: OutcomePending, Raw: raw}, nil
	}
	return nil, fmt.Errorf("%w: orange %q", ErrUnknownStatus, status)
}

func (o *Orange) ParseWebhook(header http.Header, _ url.Values, body []byte) (*WebhookEvent, error) {
	if err := VerifySignature(o.cfg.WebhookSecret, body, header.Get("X-Webhook-Signature")); err != nil {
		return nil, err
	}
	var cb orangeCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("decode orange callback: %w", err)
	}
	if cb.PayToken == "" {
		return nil, ErrMissingReference
	}
	res, err := orangeOutcome(cb.Status, cb.Message, string(body))
	if err != nil {
		return nil, err
	}
	return &WebhookEvent{Reference: cb.PayToken, Outcome: res.Outcome, Reason: res.Reason, Raw: res.Raw}, nil
}
