package domain

// ConfirmationMechanism describes how the payer authorizes a charge.
type ConfirmationMechanism string

const (
	ConfirmPushPIN ConfirmationMechanism = "PUSH_PIN"
	ConfirmUSSD    ConfirmationMechanism = "USSD"
)

// StatusCheck describes how a provider reports settlement.
type StatusCheck string

const (
	StatusCheckPolling     StatusCheck = "POLLING"
	StatusCheckWebhookOnly StatusCheck = "WEBHOOK_ONLY"
)

// AuthScheme names the token type and the credential fields a provider needs.
type AuthScheme struct {
	TokenType        string   `json:"token_type"`
	CredentialFields []string `json:"credential_fields"`
}

// ProviderDescriptor is the static capability record of a mobile-money provider.
type ProviderDescriptor struct {
	ID           string                `json:"id"`
	DisplayName  string                `json:"display_name"`
	Prefixes     []string              `json:"prefixes"`
	Auth         AuthScheme            `json:"auth"`
	Confirmation ConfirmationMechanism `json:"confirmation"`
	USSDCode     string                `json:"ussd_code,omitempty"`
	StatusCheck  StatusCheck           `json:"status_check"`
}

// SupportsPolling reports whether the provider exposes a status-check endpoint.
func (p ProviderDescriptor) SupportsPolling() bool {
	return p.StatusCheck != StatusCheckWebhookOnly
}
