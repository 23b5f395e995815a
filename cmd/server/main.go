package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"momopay/config"
	"momopay/internal/app"
	"momopay/internal/database"
	"momopay/internal/middleware"
	"momopay/internal/orchestrator"
	"momopay/internal/reconcile"
	"momopay/internal/repository"
	"momopay/internal/router"
	"momopay/internal/service"
	"momopay/internal/ws"
	"momopay/pkg/cloudinary"
	"momopay/pkg/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Log.Level)

	hub := ws.NewHub()
	sinks := []service.Sink{hub, service.NewCallbackSink(cfg.Payment.CallbackSecret, nil)}
	kafkaSink := service.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if kafkaSink != nil {
		sinks = append(sinks, kafkaSink)
		log.Printf("[Kafka] publishing payment events to %s", cfg.Kafka.Topic)
	}
	if fcm := service.NewFCMService(cfg.Firebase.CredentialsFile); fcm != nil {
		sinks = append(sinks, fcm)
		log.Printf("[FCM] Push notifications enabled")
	} else {
		log.Printf("[FCM] Push notifications disabled: set FIREBASE_CREDENTIALS_FILE to enable")
	}
	notifier := service.NewNotifier(cfg.Payment.EventBuffer, logger, sinks...)

	core, err := app.Build(cfg, logger, orchestrator.WithPublisher(notifier))
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	var clients service.ClientStore
	if core.DB != nil {
		if err := database.AutoMigrate(core.DB); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		database.SeedClient(core.DB, &cfg.SeedClient)
		clients = repository.NewClientRepository(core.DB)
	} else {
		static, err := service.NewStaticClients(&cfg.SeedClient)
		if err != nil {
			log.Fatalf("seed client: %v", err)
		}
		clients = static
	}

	var archive reconcile.Uploader
	if cfg.Cloudinary.CloudName != "" {
		cloud, err := cloudinary.NewClientFromParams(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret)
		if err != nil {
			log.Fatalf("cloudinary: %v", err)
		}
		archive = cloud
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resumed, err := core.Orchestrator.Resume(ctx)
	if err != nil {
		log.Fatalf("resume pending payments: %v", err)
	}
	logger.Info("resumed polling", "count", resumed)
	go core.Orchestrator.RunSweeper(ctx)

	limiter := middleware.NewKeyedRateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst)
	go func() {
		tick := time.NewTicker(time.Minute)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				limiter.Prune()
			}
		}
	}()

	engine := router.Setup(router.Deps{
		Config:       cfg,
		Orchestrator: core.Orchestrator,
		Registry:     core.Registry,
		Auth:         service.NewAuthService(&cfg.JWT, clients),
		Reconcile:    reconcile.New(core.Ledger, archive, cfg.Cloudinary.Folder),
		Hub:          hub,
		Limiter:      limiter,
		Logger:       logger,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	// pollers stop first so their last transitions still reach the notifier
	core.Close()
	notifier.Close()
	if kafkaSink != nil {
		kafkaSink.Close()
	}
	fmt.Println("server stopped")
}
