// Package main is the entrypoint for the PromptLab job worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/internal/store"
	"github.com/promptlab/promptlab/internal/worker"
)

func main() {
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
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
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// The server owns migrations; the worker assumes the schema exists.

	registry := llm.NewRegistry(cfg.LLM)
	slog.Info("generation providers initialized", "providers", registry.Names())

	sched := worker.NewScheduler(store.NewPostgresStore(pool), registry, cfg.Worker, cfg.LLM.GenerateTimeout)
	sched.Run(ctx)

	return nil
}
