// Package main is the entrypoint for the PromptLab API server.
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

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/promptlab/promptlab/internal/api"
	"github.com/promptlab/promptlab/internal/api/handler"
	mw "github.com/promptlab/promptlab/internal/api/middleware"
	"github.com/promptlab/promptlab/internal/cache"
	"github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/internal/generate"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/internal/ratelimit"
	"github.com/promptlab/promptlab/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Server.Env == "development" {
		slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level: slog.LevelDebug,
		})))
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	registry := llm.NewRegistry(cfg.LLM)
	slog.Info("generation providers initialized", "providers", registry.Names())

	pgStore := store.NewPostgresStore(pool)
	genService := generate.NewService(pgStore, redisCache, cfg.Dedup.CacheTTL)

	limiter := ratelimit.NewLimiter(redisCache, ratelimit.Config{
		MaxRequests:   cfg.RateLimit.MaxRequests,
		WindowSeconds: cfg.RateLimit.WindowSeconds,
	})

	router := api.NewRouter(api.Dependencies{
		RateLimit: mw.NewRateLimit(limiter),

		HealthHandler:         handler.NewHealthHandler(pgStore, redisCache),
		GenerateHandler:       handler.NewGenerateHandler(genService),
		GetJobHandler:         handler.NewGetJobHandler(pgStore),
		CreateTemplateHandler: handler.NewCreateTemplateHandler(pgStore),
		ListTemplatesHandler:  handler.NewListTemplatesHandler(pgStore),
		GetTemplateHandler:    handler.NewGetTemplateHandler(pgStore),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
