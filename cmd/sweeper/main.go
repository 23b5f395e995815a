// Command sweeper is a scheduled AWS Lambda that times out stale pending
// payments in the shared ledger. It complements the server's in-process sweeper
// for deployments that scale the API to zero.
package main

import (
	"context"
	"log"
	"log/slog"

	"momopay/config"
	"momopay/internal/app"
	"momopay/pkg/logging"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

type sweeper interface {
	SweepOnce(ctx context.Context) (int, error)
}

type result struct {
	TimedOut int `json:"timed_out"`
}

func newHandler(s sweeper, logger *slog.Logger) func(context.Context, events.CloudWatchEvent) (result, error) {
	return func(ctx context.Context, ev events.CloudWatchEvent) (result, error) {
		n, err := s.SweepOnce(ctx)
		if err != nil {
			logger.Error("sweep failed", "event_id", ev.ID, "err", err)
			return result{TimedOut: n}, err
		}
		logger.Info("sweep finished", "event_id", ev.ID, "timed_out", n)
		return result{TimedOut: n}, nil
	}
}

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Log.Level)
	if cfg.Database.Driver == "memory" {
		log.Fatal("sweeper needs a shared ledger; set DB_DRIVER=mysql")
	}
	core, err := app.Build(cfg, logger)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer core.Close()

	lambda.Start(newHandler(core.Orchestrator, logger))
}
