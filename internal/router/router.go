package router

import (
	"log/slog"
	"net/http"

	"momopay/config"
	"momopay/internal/handler"
	"momopay/internal/middleware"
	"momopay/internal/orchestrator"
	"momopay/internal/reconcile"
	"momopay/internal/registry"
	"momopay/internal/service"
	"momopay/internal/ws"

	"github.com/gin-gonic/gin"
)

// Deps are the long-lived components the HTTP layer serves.
type Deps struct {
	Config       *config.Config
	Orchestrator *orchestrator.Orchestrator
	Registry     *registry.Registry
	Auth         *service.AuthService
	Reconcile    *reconcile.Service
	Hub          *ws.Hub
	Limiter      *middleware.KeyedRateLimiter
	Logger       *slog.Logger
}

func Setup(d Deps) *gin.Engine {
	if d.Config.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Limiter == nil {
		d.Limiter = middleware.NewKeyedRateLimiter(d.Config.Server.RateLimitPerSecond, d.Config.Server.RateLimitBurst)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	paymentHandler := handler.NewPaymentHandler(d.Orchestrator)
	webhookHandler := handler.NewWebhookHandler(d.Orchestrator, d.Logger)
	authHandler := handler.NewAuthHandler(d.Auth)
	providerHandler := handler.NewProviderHandler(d.Registry, d.Orchestrator)
	reconcileHandler := handler.NewReconcileHandler(d.Reconcile)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws/payments", ws.UpgradePaymentsWS(&d.Config.JWT, d.Hub))

	api := r.Group("/api/v1")
	api.POST("/auth/token", middleware.RateLimit(d.Limiter), authHandler.Token)
	// providers authenticate with their own signatures
	api.POST("/payments/webhooks/:provider", webhookHandler.Handle)

	authed := api.Group("")
	authed.Use(middleware.AuthRequired(&d.Config.JWT), middleware.RateLimit(d.Limiter))
	{
		authed.GET("/providers", providerHandler.List)

		authed.POST("/payments", paymentHandler.Initiate)
		authed.GET("/payments/:id", paymentHandler.Get)
		authed.GET("/payments/:id/history", paymentHandler.History)
		authed.POST("/payments/:id/cancel", paymentHandler.Cancel)

		authed.GET("/reconciliation", reconcileHandler.List)
		authed.POST("/reconciliation/export", reconcileHandler.Export)
	}
	return r
}
