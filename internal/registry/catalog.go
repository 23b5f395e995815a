package registry

import "momopay/internal/domain"

// DefaultCatalog is the built-in provider catalog. Prefixes are E.164 calling code plus
// network prefix; Paypack deliberately overlaps MTN and Airtel Rwanda.
func DefaultCatalog() []domain.ProviderDescriptor {
	return []domain.ProviderDescriptor{
		{
			ID:          "mtn",
			DisplayName: "MTN Mobile Money",
			Prefixes: []string{
				"+23324", "+23325", "+23353", "+23354", "+23355", "+23359", // Ghana
				"+25676", "+25677", "+25678", "+25639", // Uganda
				"+25078", "+25079", // Rwanda
				"+23767", "+237650", "+237651", "+237652", "+237653", "+237654", "+237680", // Cameroon
				"+22505", // Côte d'Ivoire
				"+26096", "+26076", // Zambia
			},
			Auth: domain.AuthScheme{
				TokenType:        "basic+subscription-key",
				CredentialFields: []string{"subscription_key", "api_user", "api_key"},
			},
			Confirmation: domain.ConfirmPushPIN,
			StatusCheck:  domain.StatusCheckPolling,
		},
		{
			ID:          "airtel",
			DisplayName: "Airtel Money",
			Prefixes: []string{
				"+25670", "+25674", "+25675", "+25620", // Uganda
				"+25472", "+25473", "+25478", "+25410", // Kenya
				"+25072", "+25073", // Rwanda
				"+25568", "+25569", "+25578", // Tanzania
				"+26097", "+26077", // Zambia
				"+26599", "+26598", // Malawi
				"+24399", "+24397", // DR Congo
			},
			Auth: domain.AuthScheme{
				TokenType:        "oauth2-client-credentials",
				CredentialFields: []string{"client_id", "client_secret"},
			},
			Confirmation: domain.ConfirmPushPIN,
			StatusCheck:  domain.StatusCheckPolling,
		},
		{
			ID:          "orange",
			DisplayName: "Orange Money",
			Prefixes: []string{
				"+23769", "+237655", "+237656", "+237657", "+237658", "+237659", // Cameroon
				"+22507", // Côte d'Ivoire
				"+22177", "+22178", // Senegal
				"+22374", "+22375", "+22376", "+22377", "+22378", // Mali
			},
			Auth: domain.AuthScheme{
				TokenType:        "oauth2-client-credentials+auth-token",
				CredentialFields: []string{"client_id", "client_secret", "auth_token", "channel_msisdn", "pin"},
			},
			Confirmation: domain.ConfirmUSSD,
			USSDCode:     "#150*50#",
			StatusCheck:  domain.StatusCheckPolling,
		},
		{
			ID:          "mpesa",
			DisplayName: "M-Pesa",
			Prefixes: []string{
				"+25470", "+25471", "+25474", "+25479", "+25411", // Kenya (Safaricom)
				"+25574", "+25575", "+25576", // Tanzania (Vodacom)
			},
			Auth: domain.AuthScheme{
				TokenType:        "basic-consumer-key",
				CredentialFields: []string{"consumer_key", "consumer_secret", "shortcode", "passkey"},
			},
			Confirmation: domain.ConfirmPushPIN,
			StatusCheck:  domain.StatusCheckPolling,
		},
		{
			ID:          "paypack",
			DisplayName: "Paypack",
			Prefixes:    []string{"+25078", "+25079", "+25072", "+25073"},
			Auth: domain.AuthScheme{
				TokenType:        "bearer-agent",
				CredentialFields: []string{"app_id", "app_secret"},
			},
			Confirmation: domain.ConfirmPushPIN,
			StatusCheck:  domain.StatusCheckPolling,
		},
	}
}
