package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Log        LogConfig
	Payment    PaymentConfig
	Providers  ProvidersConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Firebase   FirebaseConfig
	Cloudinary CloudinaryConfig
	SeedClient SeedClientConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// per API client
	RateLimitPerSecond float64
	RateLimitBurst     int
}

type DatabaseConfig struct {
	// "mysql" or "memory"
	Driver          string
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

type LogConfig struct {
	Level string
}

// PaymentConfig holds the orchestrator's tunables.
type PaymentConfig struct {
	PollInterval         time.Duration
	MaxPollAttempts      int
	MaxWait              time.Duration
	SweepInterval        time.Duration
	DispatchTimeout      time.Duration
	LockTimeout          time.Duration
	StatusRetryAttempts  int
	StatusRetryBaseDelay time.Duration
	DefaultCountry       string
	ProviderPriority     []string
	MaxInitiateRetries   int
	CatalogPath          string
	// Sandbox backs every enabled provider with the in-process sandbox adapter.
	Sandbox            bool
	SandboxSettleAfter int
	// CallbackSecret signs outbound merchant callbacks.
	CallbackSecret string
	EventBuffer    int
}

type ProvidersConfig struct {
	Enabled []string
	MTN     MTNConfig
	Airtel  AirtelConfig
	Orange  OrangeConfig
	Mpesa   MpesaConfig
	Paypack PaypackConfig
}

type MTNConfig struct {
	BaseURL           string
	SubscriptionKey   string
	APIUser           string
	APIKey            string
	TargetEnvironment string
	CallbackURL       string
	WebhookSecret     string
}

type AirtelConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
}

type OrangeConfig struct {
	BaseURL           string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	AuthToken         string
	ChannelUserMSISDN string
	PIN               string
	NotifyURL         string
	WebhookSecret     string
}

type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	CallbackToken  string
}

type PaypackConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type FirebaseConfig struct {
	CredentialsFile string
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

type SeedClientConfig struct {
	ClientID string
	Name     string
	Secret   string
}

func Load() *Config {
	publicURL := getEnv("PUBLIC_BASE_URL", "http://localhost:8099")
	webhookBase := strings.TrimSuffix(publicURL, "/") + "/api/v1/payments/webhooks/"

	return &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8099"),
			Env:                getEnv("APP_ENV", "development"),
			ReadTimeout:        getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:       getDuration("SERVER_WRITE_TIMEOUT", 40*time.Second),
			RateLimitPerSecond: getFloat("RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getInt("RATE_LIMIT_BURST", 40),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "mysql"),
			// clientFoundRows makes an UPDATE that rewrites identical values still count as a match
			DSN:             getEnv("DB_DSN", "momopay:momopay@tcp(localhost:3306)/momopay?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true"),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			AccessExpiry: getDuration("JWT_ACCESS_EXPIRY", time.Hour),
			Issuer:       getEnv("JWT_ISSUER", "momopay"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Payment: PaymentConfig{
			PollInterval:         getDuration("PAYMENT_POLL_INTERVAL", 10*time.Second),
			MaxPollAttempts:      getInt("PAYMENT_MAX_POLL_ATTEMPTS", 30),
			MaxWait:              getDuration("PAYMENT_MAX_WAIT", 5*time.Minute),
			SweepInterval:        getDuration("PAYMENT_SWEEP_INTERVAL", 30*time.Second),
			DispatchTimeout:      getDuration("PAYMENT_DISPATCH_TIMEOUT", 30*time.Second),
			LockTimeout:          getDuration("PAYMENT_LOCK_TIMEOUT", 10*time.Second),
			StatusRetryAttempts:  getInt("PAYMENT_STATUS_RETRY_ATTEMPTS", 3),
			StatusRetryBaseDelay: getDuration("PAYMENT_STATUS_RETRY_BASE_DELAY", 200*time.Millisecond),
			DefaultCountry:       getEnv("PAYMENT_DEFAULT_COUNTRY", "GH"),
			ProviderPriority:     getList("PAYMENT_PROVIDER_PRIORITY", nil),
			MaxInitiateRetries:   getInt("PAYMENT_MAX_INITIATE_RETRIES", 3),
			CatalogPath:          getEnv("PROVIDER_CATALOG_PATH", ""),
			Sandbox:              getBool("PAYMENT_SANDBOX", false),
			SandboxSettleAfter:   getInt("PAYMENT_SANDBOX_SETTLE_AFTER", 2),
			CallbackSecret:       getEnv("PAYMENT_CALLBACK_SECRET", ""),
			EventBuffer:          getInt("PAYMENT_EVENT_BUFFER", 1024),
		},
		Providers: ProvidersConfig{
			Enabled: getList("PROVIDERS_ENABLED", []string{"mtn", "airtel", "orange", "mpesa", "paypack"}),
			MTN: MTNConfig{
				BaseURL:           getEnv("MTN_BASE_URL", "https://sandbox.momodeveloper.mtn.com"),
				SubscriptionKey:   getEnv("MTN_SUBSCRIPTION_KEY", ""),
				APIUser:           getEnv("MTN_API_USER", ""),
				APIKey:            getEnv("MTN_API_KEY", ""),
				TargetEnvironment: getEnv("MTN_TARGET_ENVIRONMENT", "sandbox"),
				CallbackURL:       getEnv("MTN_CALLBACK_URL", webhookBase+"mtn"),
				WebhookSecret:     getEnv("MTN_WEBHOOK_SECRET", ""),
			},
			Airtel: AirtelConfig{
				BaseURL:       getEnv("AIRTEL_BASE_URL", "https://openapiuat.airtel.africa"),
				ClientID:      getEnv("AIRTEL_CLIENT_ID", ""),
				ClientSecret:  getEnv("AIRTEL_CLIENT_SECRET", ""),
				WebhookSecret: getEnv("AIRTEL_WEBHOOK_SECRET", ""),
			},
			Orange: OrangeConfig{
				BaseURL:           getEnv("ORANGE_BASE_URL", "https://api-s1.orange.cm"),
				TokenURL:          getEnv("ORANGE_TOKEN_URL", ""),
				ClientID:          getEnv("ORANGE_CLIENT_ID", ""),
				ClientSecret:      getEnv("ORANGE_CLIENT_SECRET", ""),
				AuthToken:         getEnv("ORANGE_AUTH_TOKEN", ""),
				ChannelUserMSISDN: getEnv("ORANGE_CHANNEL_MSISDN", ""),
				PIN:               getEnv("ORANGE_PIN", ""),
				NotifyURL:         getEnv("ORANGE_NOTIFY_URL", webhookBase+"orange"),
				WebhookSecret:     getEnv("ORANGE_WEBHOOK_SECRET", ""),
			},
			Mpesa: MpesaConfig{
				BaseURL:        getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
				ConsumerKey:    getEnv("MPESA_CONSUMER_KEY", ""),
				ConsumerSecret: getEnv("MPESA_CONSUMER_SECRET", ""),
				ShortCode:      getEnv("MPESA_SHORTCODE", "174379"),
				Passkey:        getEnv("MPESA_PASSKEY", ""),
				CallbackURL:    getEnv("MPESA_CALLBACK_URL", webhookBase+"mpesa"),
				CallbackToken:  getEnv("MPESA_CALLBACK_TOKEN", ""),
			},
			Paypack: PaypackConfig{
				BaseURL:       getEnv("PAYPACK_BASE_URL", "https://payments.paypack.rw"),
				ClientID:      getEnv("PAYPACK_APP_ID", ""),
				ClientSecret:  getEnv("PAYPACK_APP_SECRET", ""),
				WebhookSecret: getEnv("PAYPACK_WEBHOOK_SECRET", ""),
			},
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			LockTTL:  getDuration("REDIS_LOCK_TTL", time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: getList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "payment.events"),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    getEnv("CLOUDINARY_API_KEY", ""),
			APISecret: getEnv("CLOUDINARY_API_SECRET", ""),
			Folder:    getEnv("CLOUDINARY_FOLDER", "momopay/reconciliation"),
		},
		SeedClient: SeedClientConfig{
			ClientID: getEnv("SEED_CLIENT_ID", ""),
			Name:     getEnv("SEED_CLIENT_NAME", "bootstrap"),
			Secret:   getEnv("SEED_CLIENT_SECRET", ""),
		},
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return def
}

// getList splits a comma-separated variable, dropping empty items.
func getList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
