// Package app assembles the payment components from configuration. It is shared
// by the HTTP server and the scheduled sweeper.
package app

import (
	"fmt"
	"log/slog"
	"strings"

	"momopay/config"
	"momopay/internal/database"
	"momopay/internal/ledger"
	"momopay/internal/orchestrator"
	"momopay/internal/registry"
	"momopay/internal/repository"
	"momopay/internal/resolver"
	"momopay/pkg/idempotency"
	"momopay/pkg/payment"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Core is everything the orchestrator needs, plus handles main must close.
type Core struct {
	DB           *gorm.DB
	Ledger       ledger.Ledger
	Registry     *registry.Registry
	Orchestrator *orchestrator.Orchestrator
	Redis        *redis.Client
}

func (c *Core) Close() {
	c.Orchestrator.Close()
	if c.Redis != nil {
		c.Redis.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

// Build opens storage, loads the provider catalog and wires the orchestrator.
func Build(cfg *config.Config, log *slog.Logger, opts ...orchestrator.Option) (*Core, error) {
	core := &Core{}

	catalog := registry.DefaultCatalog()
	if cfg.Payment.CatalogPath != "" {
		loaded, err := registry.LoadCatalog(cfg.Payment.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("provider catalog: %w", err)
		}
		catalog = loaded
	}
	reg, err := registry.New(registry.Filter(catalog, cfg.Providers.Enabled))
	if err != nil {
		return nil, fmt.Errorf("provider registry: %w", err)
	}
	core.Registry = reg

	switch cfg.Database.Driver {
	case "memory":
		core.Ledger = ledger.NewMemory()
	case "mysql", "":
		db, err := database.NewDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		core.DB = db
		core.Ledger = repository.NewTransactionRepository(db)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	var locker idempotency.Locker = idempotency.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		core.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		locker = idempotency.NewRedisLocker(core.Redis, cfg.Redis.LockTTL)
	}

	adapters := BuildAdapters(cfg, reg, log)
	base := []orchestrator.Option{
		orchestrator.WithConfig(OrchestratorConfig(&cfg.Payment)),
		orchestrator.WithLocker(locker),
		orchestrator.WithLogger(log),
	}
	core.Orchestrator = orchestrator.New(core.Ledger, reg,
		resolver.New(reg, cfg.Payment.DefaultCountry), adapters, append(base, opts...)...)
	return core, nil
}

func OrchestratorConfig(p *config.PaymentConfig) orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.PollInterval = p.PollInterval
	cfg.MaxPollAttempts = p.MaxPollAttempts
	cfg.MaxWait = p.MaxWait
	cfg.SweepInterval = p.SweepInterval
	cfg.DispatchTimeout = p.DispatchTimeout
	cfg.LockTimeout = p.LockTimeout
	cfg.StatusRetry.Attempts = p.StatusRetryAttempts
	cfg.StatusRetry.BaseDelay = p.StatusRetryBaseDelay
	cfg.ProviderPriority = p.ProviderPriority
	cfg.MaxInitiateRetries = p.MaxInitiateRetries
	return cfg
}

// BuildAdapters returns one adapter per registered provider. Providers without
// credentials are skipped and logged; in sandbox mode every provider is simulated.
func BuildAdapters(cfg *config.Config, reg *registry.Registry, log *slog.Logger) []payment.Adapter {
	var out []payment.Adapter
	for _, p := range reg.ListProviders() {
		if cfg.Payment.Sandbox {
			out = append(out, payment.NewSandbox(p.ID, cfg.Payment.SandboxSettleAfter, webhookSecret(cfg, p.ID)))
			continue
		}
		a := liveAdapter(cfg, p.ID, log)
		if a == nil {
			log.Warn("provider has no credentials, not dispatching to it", "provider", p.ID)
			continue
		}
		out = append(out, a)
	}
	return out
}

func webhookSecret(cfg *config.Config, providerID string) string {
	pc := cfg.Providers
	switch providerID {
	case "mtn":
		return pc.MTN.WebhookSecret
	case "airtel":
		return pc.Airtel.WebhookSecret
	case "orange":
		return pc.Orange.WebhookSecret
	case "paypack":
		return pc.Paypack.WebhookSecret
	}
	return cfg.Payment.CallbackSecret
}

func liveAdapter(cfg *config.Config, providerID string, log *slog.Logger) payment.Adapter {
	pc := cfg.Providers
	switch strings.ToLower(providerID) {
	case "mtn":
		if pc.MTN.SubscriptionKey == "" || pc.MTN.APIUser == "" {
			return nil
		}
		return payment.NewMTN(payment.MTNConfig{
			BaseURL:           pc.MTN.BaseURL,
			SubscriptionKey:   pc.MTN.SubscriptionKey,
			APIUser:           pc.MTN.APIUser,
			APIKey:            pc.MTN.APIKey,
			TargetEnvironment: pc.MTN.TargetEnvironment,
			CallbackURL:       pc.MTN.CallbackURL,
			WebhookSecret:     pc.MTN.WebhookSecret,
			Logger:            log,
		})
	case "airtel":
		if pc.Airtel.ClientID == "" {
			return nil
		}
		return payment.NewAirtel(payment.AirtelConfig{
			BaseURL:       pc.Airtel.BaseURL,
			ClientID:      pc.Airtel.ClientID,
			ClientSecret:  pc.Airtel.ClientSecret,
			WebhookSecret: pc.Airtel.WebhookSecret,
			Logger:        log,
		})
	case "orange":
		if pc.Orange.ClientID == "" {
			return nil
		}
		return payment.NewOrange(payment.OrangeConfig{
			BaseURL:           pc.Orange.BaseURL,
			TokenURL:          pc.Orange.TokenURL,
			ClientID:          pc.Orange.ClientID,
			ClientSecret:      pc.Orange.ClientSecret,
			AuthToken:         pc.Orange.AuthToken,
			ChannelUserMSISDN: pc.Orange.ChannelUserMSISDN,
			PIN:               pc.Orange.PIN,
			NotifyURL:         pc.Orange.NotifyURL,
			WebhookSecret:     pc.Orange.WebhookSecret,
			Logger:            log,
		})
	case "mpesa":
		if pc.Mpesa.ConsumerKey == "" || pc.Mpesa.Passkey == "" {
			return nil
		}
		return payment.NewMpesa(payment.MpesaConfig{
			BaseURL:        pc.Mpesa.BaseURL,
			ConsumerKey:    pc.Mpesa.ConsumerKey,
			ConsumerSecret: pc.Mpesa.ConsumerSecret,
			ShortCode:      pc.Mpesa.ShortCode,
			Passkey:        pc.Mpesa.Passkey,
			CallbackURL:    pc.Mpesa.CallbackURL,
			CallbackToken:  pc.Mpesa.CallbackToken,
			Logger:         log,
		})
	case "paypack":
		if pc.Paypack.ClientID == "" {
			return nil
		}
		return payment.NewPaypack(payment.PaypackConfig{
			BaseURL:       pc.Paypack.BaseURL,
			ClientID:      pc.Paypack.ClientID,
			ClientSecret:  pc.Paypack.ClientSecret,
			WebhookSecret: pc.Paypack.WebhookSecret,
			Logger:        log,
		})
	}
	return nil
}
