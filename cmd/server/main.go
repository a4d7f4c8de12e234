// Package main is the entrypoint for the shelfscan API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openshelf/shelfscan/internal/analysis"
	"github.com/openshelf/shelfscan/internal/api"
	"github.com/openshelf/shelfscan/internal/api/handler"
	mw "github.com/openshelf/shelfscan/internal/api/middleware"
	"github.com/openshelf/shelfscan/internal/cache"
	"github.com/openshelf/shelfscan/internal/config"
	"github.com/openshelf/shelfscan/internal/store"
	"github.com/openshelf/shelfscan/internal/vision"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "vision_provider", cfg.Vision.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create vision provider
	provider, err := vision.NewProvider(cfg.Vision)
	if err != nil {
		return fmt.Errorf("create vision provider: %w", err)
	}
	slog.Info("vision provider initialized", "provider", provider.Name())

	// 6. Create store and service
	pgStore := store.NewPostgresStore(pool)
	svc := analysis.NewService(pgStore, redisCache, provider, cfg, logger)

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMinute)

	analysisHandler := handler.NewAnalysisHandler(svc, logger)
	keyHandler := handler.NewKeyHandler(pgStore, logger)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:      handler.Health(pgStore, redisCache),
		AnalyzeHandler:     analysisHandler.Analyze,
		StatusHandler:      analysisHandler.Status,
		ProcessNextHandler: analysisHandler.ProcessNext,
		CreateKeyHandler:   keyHandler.Create,
		ListKeysHandler:    keyHandler.List,
		RevokeKeyHandler:   keyHandler.Revoke,
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
		// Write timeout must cover the worst-case analyze budget: retries
		// plus the queue-mode polling window.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Analysis.PollTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
