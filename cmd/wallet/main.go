package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"wallet/internal/amqp"
	"wallet/internal/cache"
	"wallet/internal/cli"
	"wallet/internal/config"
	"wallet/internal/core"
	apphttp "wallet/internal/http"
	"wallet/internal/ledger"
	"wallet/internal/log"
	"wallet/internal/services"
)

const (
	accountCacheSize = 1000
	listCacheSize    = 200
	cacheKeyPrefix   = "wallet:"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	backendRes, uploader := cli.OpenBackend(startCtx, logger, cfg)
	cancelStart()
	st := backendRes.Store

	opts := []ledger.Option{
		ledger.WithLogger(logger),
		ledger.WithMaxRetries(cfg.LedgerMaxRetries),
		ledger.WithSettleWindow(cfg.ReconcileSettleWindow),
		ledger.WithUploader(uploader),
	}

	// Ledger events are optional; without a broker the worker still sweeps.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without ledger events", log.FieldError, err)
		} else {
			amqpClient = c
			opts = append(opts, ledger.WithPublisher(amqpClient))
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	engine := ledger.New(st, st, opts...)
	accounts := services.NewAccountService(st, st, uploader)
	stats := services.NewStatsService(st)

	accountCache, listCache, closeCache := buildCaches(logger, cfg)

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               net.JoinHostPort("", cfg.Port),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		BlockSuspicious:    cfg.BlockSuspicious,
	}, apphttp.Deps{
		Ledger:       engine,
		Accounts:     accounts,
		Stats:        stats,
		Transactions: st,
		Health:       st,
		AccountCache: accountCache,
		ListCache:    listCache,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		closeCache()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
		if backendRes.Cleanup != nil {
			if err := backendRes.Cleanup(); err != nil {
				logger.Error("Store close error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting wallet server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"media", cfg.MediaBackend,
		"events_enabled", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// buildCaches returns Redis-backed caches when REDIS_URL is set and falls
// back to in-process LRUs otherwise. The returned func releases them.
func buildCaches(logger *log.Logger, cfg *config.Config) (cache.Cache[core.Account], cache.Cache[[]core.Account], func()) {
	logger = logger.WithComponent(log.ComponentCache)
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err == nil {
			logger.Info("Using redis account cache", "ttl", cfg.CacheTTL)
			return cache.NewRedisCache[core.Account](client, cacheKeyPrefix, cfg.CacheTTL),
				cache.NewRedisCache[[]core.Account](client, cacheKeyPrefix, cfg.CacheTTL),
				func() { _ = client.Close() }
		}
		logger.Warn("Redis unavailable, falling back to in-process cache", log.FieldError, err)
	}

	accountCache := cache.NewLRUCache[core.Account](accountCacheSize, cfg.CacheTTL)
	listCache := cache.NewLRUCache[[]core.Account](listCacheSize, cfg.CacheTTL)
	manager := cache.NewManager()
	manager.Register(accountCache)
	manager.Register(listCache)
	manager.StartCleanup(time.Minute)
	logger.Info("Using in-process account cache", "ttl", cfg.CacheTTL)
	return accountCache, listCache, manager.Stop
}
