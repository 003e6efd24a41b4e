// Package main initializes and runs the EstimaTrack data plane service.
//
// It acts as the composition root for the public estimate API, wiring the
// Postgres repository, the layered rule cache, the rate limiter, and the
// HTTP server lifecycle.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/estimatrack/estimatrack/internal/cache"
	"github.com/estimatrack/estimatrack/internal/config"
	"github.com/estimatrack/estimatrack/internal/database"
	"github.com/estimatrack/estimatrack/internal/estimate"
	"github.com/estimatrack/estimatrack/internal/estimateapi"
	"github.com/estimatrack/estimatrack/internal/logger"
	"github.com/estimatrack/estimatrack/internal/observability"
	"github.com/estimatrack/estimatrack/internal/ratelimit"
	"github.com/estimatrack/estimatrack/internal/store"
)

// main is the application entrypoint.
func main() {
	if err := run(); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

// run executes the service lifecycle.
func run() error {
	ctx := context.Background()

	// -------------------------------------------------------------------------
	// 1. Configuration & Logging
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.New(&cfg.App)
	slog.SetDefault(appLogger)
	cfg.LogConfig(appLogger)

	// -------------------------------------------------------------------------
	// 2. Infrastructure Setup
	// -------------------------------------------------------------------------
	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	// -------------------------------------------------------------------------
	// 3. Wiring (Dependency Injection)
	// -------------------------------------------------------------------------
	repo := store.NewPostgresStore(pool)

	var source estimate.RuleSource = repo
	var ruleCache *cache.RuleCache
	if cfg.Cache.Enabled {
		ruleCache, err = cache.NewRuleCache(repo, redisClient, cfg.Cache)
		if err != nil {
			return fmt.Errorf("failed to build rule cache: %w", err)
		}
		defer ruleCache.Close()
		source = ruleCache
	}

	resolver := estimate.NewResolver(source, cfg.Estimate)

	limiter := ratelimit.New(cfg.RateLimit, appLogger)
	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	limiter.Start(limiterCtx)

	agg := observability.NewAggregator()

	api := estimateapi.NewAPI(resolver, limiter, agg, appLogger, cfg.Server.Data.ProxySecret)

	// -------------------------------------------------------------------------
	// 4. Servers
	// -------------------------------------------------------------------------
	obsServer := observability.NewServer(appLogger, &cfg.Observability,
		database.NewHealthChecker(pool),
		cache.NewHealthChecker(redisClient),
	)
	obsServer.Start()

	addr := cfg.Server.Data.Host + ":" + cfg.Server.Data.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           api.Router,
		ReadTimeout:       cfg.Server.Data.ReadTimeout,
		WriteTimeout:      cfg.Server.Data.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.Data.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.Data.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		appLogger.Info("starting estimate API server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("estimate API server failed: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// 5. Graceful Shutdown
	// -------------------------------------------------------------------------
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		appLogger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("estimate API shutdown failed", slog.String("error", err.Error()))
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("observability shutdown failed", slog.String("error", err.Error()))
	}

	limiter.Stop()

	appLogger.Info("service exited successfully")
	return nil
}
