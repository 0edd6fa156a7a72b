// Package main provides a GitHub webhook server that starts implementation
// workflows on Temporal.
//
// An issue comment containing "/implement" (or "/implement <n>" for one
// task of the posted plan) starts ImplementationWorkflow on the configured
// task queue. A specforge-worker for the same repository must be polling it.
//
// Usage:
//
//	SPECFORGE_WEBHOOK_SECRET=your_secret \
//	SPECFORGE_TEMPORAL_HOST_PORT=localhost:7233 \
//	GITHUB_REPOSITORY=acme/widgets \
//	GEMINI_API_KEY=... GITHUB_TOKEN=ghp_xxx \
//	./specforge-webhook
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/config"
	"github.com/fyrsmithlabs/specforge/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Webhook.Secret.IsSet() {
		return errors.New("SPECFORGE_WEBHOOK_SECRET not set")
	}
	if cfg.GitHub.Repository == "" {
		return errors.New("GITHUB_REPOSITORY not set")
	}

	logCfg, err := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "specforge webhook server starting",
		zap.String("port", cfg.Webhook.Port),
		zap.String("temporal_host", cfg.Temporal.HostPort),
		zap.String("repository", cfg.GitHub.Repository),
	)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logging.NewTemporalLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("unable to create Temporal client: %w", err)
	}
	defer c.Close()

	server := NewServer(c, ServerConfig{
		Secret:         cfg.Webhook.Secret,
		Repository:     cfg.GitHub.Repository,
		TaskQueue:      cfg.Temporal.TaskQueue,
		MaxRetries:     cfg.Orchestrator.MaxRetries,
		TestCommand:    cfg.Orchestrator.TestCommand,
		ErrorTailChars: cfg.Orchestrator.ErrorTailChars,
		TestTimeout:    cfg.Runner.Timeout.Duration(),
	}, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Webhook.Port,
		Handler:      server.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", zap.String("addr", httpServer.Addr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "server shutdown error", zap.Error(err))
		return err
	}

	logger.Info(ctx, "server stopped gracefully")
	return nil
}
