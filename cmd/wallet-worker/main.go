package main

import (
	"context"
	"errors"
	"os"
	"time"

	"wallet/internal/amqp"
	"wallet/internal/cache"
	"wallet/internal/cli"
	"wallet/internal/core"
	"wallet/internal/ledger"
	"wallet/internal/log"
	"wallet/internal/services"
	"wallet/internal/worker"
)

// cacheKeyPrefix matches the prefix the API server caches accounts under.
const cacheKeyPrefix = "wallet:"

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting wallet-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend == "memory" {
		logger.Warn("Worker is running against a private memory store, it cannot see the API's data")
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	backendRes, _ := cli.OpenBackend(startCtx, logger, cfg)
	cancelStart()
	st := backendRes.Store

	// The worker never records, so it needs no uploader or publisher.
	engine := ledger.New(st, st,
		ledger.WithLogger(logger),
		ledger.WithMaxRetries(cfg.LedgerMaxRetries),
		ledger.WithSettleWindow(cfg.ReconcileSettleWindow))

	reconciler := services.NewReconcileProcessor(st, engine, services.ReconcileProcessorConfig{
		Interval:    cfg.ReconcileInterval,
		Concurrency: cfg.ReconcileConcurrency,
		AutoRepair:  cfg.ReconcileAutoRepair,
	})

	// Repairs must not leave stale balances in the cache the API reads from.
	var redisClient interface{ Close() error }
	if cfg.RedisURL != "" {
		redisCtx, cancelRedis := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := cache.NewRedisClient(redisCtx, cfg.RedisURL)
		cancelRedis()
		if err != nil {
			logger.Warn("Redis unavailable, repairs will not evict cached accounts", log.FieldError, err)
		} else {
			redisClient = client
			reconciler.WithCache(cache.NewRedisCache[core.Account](client, cacheKeyPrefix, cfg.CacheTTL))
		}
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		amqpClient = c
	} else {
		logger.Info("AMQP disabled, only periodic sweeps will run")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := reconciler.Stop(ctx); err != nil {
			logger.Error("Error stopping reconcile processor", log.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if backendRes.Cleanup != nil {
			if err := backendRes.Cleanup(); err != nil {
				logger.Error("Store close error", log.FieldError, err)
			}
		}
	})

	if err := reconciler.Start(ctx); err != nil {
		logger.Error("Failed to start reconcile processor", log.FieldError, err)
		os.Exit(1)
	}

	if amqpClient != nil {
		ledgerWorker := worker.NewLedgerWorker(reconciler)
		go func() {
			err := amqpClient.ConsumeWithReconnect(ctx, ledgerWorker.HandleLedgerEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Ledger event consumption stopped", log.FieldError, err)
			}
		}()
		logger.Info("Consuming ledger events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	logger.Info("Worker started",
		"reconcile_interval", cfg.ReconcileInterval,
		"reconcile_concurrency", cfg.ReconcileConcurrency,
		"auto_repair", cfg.ReconcileAutoRepair)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
