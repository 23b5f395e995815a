package payment

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"momopay/internal/domain"
)

// MpesaConfig holds Safaricom Daraja Lipa Na M-Pesa Online credentials.
type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	// CallbackToken is appended to CallBackURL; Daraja does not sign callbacks.
	CallbackToken string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Mpesa implements Adapter for Daraja STK push.
type Mpesa struct {
	cfg    MpesaConfig
	client *http.Client
	tokens *TokenCache
	log    *slog.Logger
	now    func() time.Time
}

func NewMpesa(cfg MpesaConfig) *Mpesa {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://sandbox.safaricom.co.ke"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	m := &Mpesa{
		cfg:    cfg,
		client: defaultHTTPClient(cfg.HTTPClient),
		log:    loggerOr(cfg.Logger).With("provider", "mpesa"),
		now:    time.Now,
	}
	m.tokens = NewTokenCache(m.fetchToken)
	return m
}

func (m *Mpesa) ID() string { return "mpesa" }

type darajaTokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

func (m *Mpesa) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(m.cfg.ConsumerKey, m.cfg.ConsumerSecret)
	resp, err := m.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, newAPIError("mpesa", resp.StatusCode, nil)
	}
	var out darajaTokenResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("decode mpesa token: %w", err)
	}
	secs, _ := strconv.Atoi(out.ExpiresIn)
	return out.AccessToken, time.Duration(secs) * time.Second, nil
}

// password is base64(shortcode + passkey + timestamp).
func (m *Mpesa) password() (password, timestamp string) {
	timestamp = m.now().In(nairobi).Format("20060102150405")
	password = base64.StdEncoding.EncodeToString([]byte(m.cfg.ShortCode + m.cfg.Passkey + timestamp))
	return password, timestamp
}

var nairobi = time.FixedZone("EAT", 3*60*60)

type stkPushResp struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkQueryResp struct {
	ResponseCode string `json:"ResponseCode"`
	ResultCode   string `json:"ResultCode"`
	ResultDesc   string `json:"ResultDesc"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type stkCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// Daraja answers a query for an unfinished STK push with HTTP 500 and this code.
const darajaStillProcessing = "500.001.1001"

func (m *Mpesa) post(ctx context.Context, path string, payload any) ([]byte, error) {
	var raw []byte
	err := m.tokens.Do(ctx, func(token string) error {
		var err error
		_, raw, err = doJSON(ctx, m.client, "mpesa", http.MethodPost, m.cfg.BaseURL+path,
			map[string]string{"Authorization": "Bearer " + token}, payload)
		return err
	})
	return raw, err
}

func (m *Mpesa) Send(ctx context.Context, tx *domain.Transaction) (*SendResult, error) {
	if !tx.Request.Amount.IsInteger() {
		return nil, rejected("mpesa", "amount must be a whole number of shillings")
	}
	pass, ts := m.password()
	callback := m.cfg.CallbackURL
	if m.cfg.CallbackToken != "" {
		callback += "?token=" + url.QueryEscape(m.cfg.CallbackToken)
	}
	accountRef := tx.ID
	if len(accountRef) > 12 {
		accountRef = accountRef[:12]
	}
	desc := tx.Request.Description
	if desc == "" {
		desc = "Payment"
	}
	if len(desc) > 13 {
		desc = desc[:13]
	}
	phone := msisdn(tx.NormalizedPhone)
	payload := map[string]string{
		"BusinessShortCode": m.cfg.ShortCode,
		"Password":          pass,
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            tx.Request.Amount.String(),
		"PartyA":            phone,
		"PartyB":            m.cfg.ShortCode,
		"PhoneNumber":       phone,
		"CallBackURL":       callback,
		"AccountReference":  accountRef,
		"TransactionDesc":   desc,
	}
	raw, err := m.post(ctx, "/mpesa/stkpush/v1/processrequest", payload)
	if err != nil {
		return nil, err
	}
	var out stkPushResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode stk push: %w", err)
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return &SendResult{Accepted: false, Message: out.ResponseDescription, Raw: string(raw)}, nil
	}
	m.log.Info("stk push accepted", "transaction_id", tx.ID, "reference", out.CheckoutRequestID)
	return &SendResult{Accepted: true, Reference: out.CheckoutRequestID, Message: out.CustomerMessage, Raw: string(raw)}, nil
}

func (m *Mpesa) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	pass, ts := m.password()
	raw, err := m.post(ctx, "/mpesa/stkpushquery/v1/query", map[string]string{
		"BusinessShortCode": m.cfg.ShortCode,
		"Password":          pass,
		"Timestamp":         ts,
		"CheckoutRequestID": reference,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && strings.Contains(apiErr.Body, darajaStillProcessing) {
			return &StatusResult{Outcome: OutcomePending, Raw: apiErr.Body}, nil
		}
		return nil, err
	}
	var out stkQueryResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode stk query: %w", err)
	}
	if out.ErrorCode == darajaStillProcessing || out.ResultCode == "" {
		return &StatusResult{Outcome: OutcomePending, Raw: string(raw)}, nil
	}
	return darajaOutcome(out.ResultCode, out.ResultDesc, string(raw)), nil
}

// darajaOutcome maps a ResultCode: 0 is paid, anything else (1032 cancelled by
// user, 1037 unreachable, 1 insufficient funds, 2001 wrong PIN) is a decline.
func darajaOutcome(code, desc, raw string) *StatusResult {
	if code == "0" {
		return &StatusResult{Outcome: OutcomeSucceeded, Raw: raw}
	}
	if desc == "" {
		desc = "result code " + code
	}
	return &StatusResult{Outcome: OutcomeDeclined, Reason: desc, Raw: raw}
}

func (m *Mpesa) ParseWebhook(_ http.Header, query url.Values, body []byte) (*WebhookEvent, error) {
	token := query.Get("token")
	if m.cfg.CallbackToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(m.cfg.CallbackToken)) != 1 {
		return nil, ErrInvalidSignature
	}
	var cb stkCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("decode stk callback: %w", err)
	}
	s := cb.Body.StkCallback
	if s.CheckoutRequestID == "" {
		return nil, ErrMissingReference
	}
	res := darajaOutcome(strconv.Itoa(s.ResultCode), s.ResultDesc, string(body))
	return &WebhookEvent{Reference: s.CheckoutRequestID, Outcome: res.Outcome, Reason: res.Reason, Raw: res.Raw}, nil
}
