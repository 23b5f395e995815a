package payment

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"momopay/internal/domain"
	"momopay/internal/resolver"
)

// Outcome is a provider's view of a dispatched collection.
type Outcome string

const (
	OutcomePending   Outcome = "PENDING"
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeDeclined  Outcome = "DECLINED"
)

// SendResult is the provider's answer to a collection request. A result with
// Accepted=false is a clean rejection; transport and server failures come back as errors.
type SendResult struct {
	Accepted  bool
	Reference string
	Message   string
	Raw       string
}

type StatusResult struct {
	Outcome Outcome
	Reason  string
	Raw     string
}

// Adapter talks to one mobile-money provider.
type Adapter interface {
	ID() string
	Send(ctx context.Context, tx *domain.Transaction) (*SendResult, error)
	CheckStatus(ctx context.Context, reference string) (*StatusResult, error)
}

// WebhookEvent is a verified provider notification.
type WebhookEvent struct {
	Reference string
	Outcome   Outcome
	Reason    string
	Raw       string
}

// WebhookVerifier is implemented by adapters whose provider pushes status callbacks.
type WebhookVerifier interface {
	ParseWebhook(header http.Header, query url.Values, body []byte) (*WebhookEvent, error)
}

// FormatAmount renders an amount with the currency's minor-unit precision.
func FormatAmount(amount decimal.Decimal, currency string) string {
	exp, ok := domain.CurrencyExponent(currency)
	if !ok {
		exp = 2
	}
	return amount.StringFixed(exp)
}

// msisdn returns the normalized number without the leading '+'.
func msisdn(normalized string) string {
	return strings.TrimPrefix(normalized, "+")
}

// nationalNumber strips the calling code and returns the country it belonged to.
func nationalNumber(normalized string) (country, national string) {
	country, ok := resolver.CountryForPhone(normalized)
	if !ok {
		return "", msisdn(normalized)
	}
	code, _ := resolver.CallingCode(country)
	return country, strings.TrimPrefix(msisdn(normalized), code)
}
