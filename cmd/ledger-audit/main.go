// Command ledger-audit consumes ledger change events, logs them and, for
// the sqlite backend, reconciles the persisted ledger against the last
// announced aggregate.
package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"ledger/internal/cli"
	"ledger/internal/events"
	"ledger/internal/log"
	"ledger/internal/storage"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentAudit)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel, log.ComponentAudit)

	logger.Info("Starting ledger-audit")

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the audit worker")
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	// Only sqlite can be read safely while the server owns the backend. The
	// backend gets no events client of its own; the consumer below is the
	// only broker connection.
	var reader storage.Reader
	if cfg.DataBackend == "sqlite" {
		res := cli.InitBackend(ctx, logger, cfg.WithoutEvents())
		defer func() {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", log.FieldError, err)
			}
		}()
		reader = res.Storage
	} else {
		logger.Info("Reconciliation needs the sqlite backend, only following events",
			log.FieldBackend, cfg.DataBackend)
	}

	client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	w := worker.NewAuditWorker(reader, cfg.StorageKey, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Consume(gctx, w.HandleChange)
	})
	g.Go(func() error {
		return w.Run(gctx, cfg.AuditInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Audit worker stopped", log.FieldError, err)
		os.Exit(1)
	}

	stats := w.Stats()
	logger.Info("Audit worker stopped gracefully",
		"handled", stats.Handled,
		"dropped", stats.Dropped,
		"drifts", stats.Drifts)
}
