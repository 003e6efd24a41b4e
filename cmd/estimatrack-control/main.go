// Package main initializes and runs the EstimaTrack control plane service.
//
// It acts as the composition root for the admin REST API merchants manage
// their delivery rules through. Mutations go through the cache-wrapping
// repository so the data plane never serves rules stale beyond the TTL.
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

	"github.com/estimatrack/estimatrack/internal/adminapi"
	"github.com/estimatrack/estimatrack/internal/cache"
	"github.com/estimatrack/estimatrack/internal/config"
	"github.com/estimatrack/estimatrack/internal/database"
	"github.com/estimatrack/estimatrack/internal/logger"
	"github.com/estimatrack/estimatrack/internal/observability"
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

	// The admin API cannot run without auth in any environment.
	if cfg.Server.Control.APIKeyHash == "" {
		return fmt.Errorf("ESTIMATRACK_SERVER_CONTROL_API_KEY_HASH is required to run the control plane")
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

	// Mutations must invalidate cached rule sets, so the admin API always
	// talks to the cache-wrapping repository.
	var adminRepo store.RuleRepository = repo
	if cfg.Cache.Enabled {
		ruleCache, err := cache.NewRuleCache(repo, redisClient, cfg.Cache)
		if err != nil {
			return fmt.Errorf("failed to build rule cache: %w", err)
		}
		defer ruleCache.Close()
		adminRepo = ruleCache
	}

	api := adminapi.NewAPI(adminRepo, cfg.Server.Control.APIKeyHash)

	// -------------------------------------------------------------------------
	// 4. Servers
	// -------------------------------------------------------------------------
	obsServer := observability.NewServer(appLogger, &cfg.Observability,
		database.NewHealthChecker(pool),
		cache.NewHealthChecker(redisClient),
	)
	obsServer.Start()

	addr := cfg.Server.Control.Host + ":" + cfg.Server.Control.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           api.Router,
		ReadTimeout:       cfg.Server.Control.ReadTimeout,
		WriteTimeout:      cfg.Server.Control.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.Control.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.Control.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		appLogger.Info("starting admin API server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("admin API server failed: %w", err)
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
		appLogger.Error("admin API shutdown failed", slog.String("error", err.Error()))
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("observability shutdown failed", slog.String("error", err.Error()))
	}

	appLogger.Info("service exited successfully")
	return nil
}
