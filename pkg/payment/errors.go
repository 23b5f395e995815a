package payment

import (
	"errors"
	"fmt"
	"net/http"

	"momopay/internal/domain"
)

const maxErrorBody = 512

// APIError surfaces non-successful HTTP responses from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error: status=%d body=%s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether the provider failed on its side or throttled us.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) Unwrap() error {
	if e.Temporary() {
		return domain.ErrInfrastructure
	}
	return domain.ErrProviderRejected
}

func newAPIError(provider string, status int, body []byte) *APIError {
	b := string(body)
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return &APIError{Provider: provider, StatusCode: status, Body: b}
}

var (
	ErrUnknownStatus    = fmt.Errorf("%w: unknown provider status", domain.ErrInfrastructure)
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMissingReference = errors.New("webhook payload missing reference")
)

// rejected wraps a clean provider refusal that arrived outside an HTTP error status.
func rejected(provider, msg string) error {
	return fmt.Errorf("%s: %w: %s", provider, domain.ErrProviderRejected, msg)
}

// IsInfrastructure reports whether err leaves the provider-side outcome unknown.
// Anything that is not an explicit provider rejection counts, including network
// errors and context deadlines.
func IsInfrastructure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, domain.ErrProviderRejected)
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
