// Package main runs a Temporal worker for implementation workflows.
//
// The worker serves a single repository: it checks out nothing itself and
// writes generated files into SPECFORGE_RUNNER_WORK_DIR, which must hold a
// clone of GITHUB_REPOSITORY.
//
// Usage:
//
//	SPECFORGE_TEMPORAL_HOST_PORT=localhost:7233 \
//	SPECFORGE_RUNNER_WORK_DIR=/src/widgets \
//	GITHUB_REPOSITORY=acme/widgets \
//	GEMINI_API_KEY=... GITHUB_TOKEN=ghp_xxx \
//	./specforge-worker
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/config"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/services"
	"github.com/fyrsmithlabs/specforge/internal/telemetry"
	"github.com/fyrsmithlabs/specforge/internal/workflows"
)

var version = "dev"

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

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}()

	reg, err := services.Build(ctx, cfg, logger, tel)
	if err != nil {
		return err
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logging.NewTemporalLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("unable to create Temporal client: %w", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ImplementationWorkflow)
	w.RegisterActivity(reg.Activities(cfg.GitHub.Repository, cfg.Runner.WorkDir, logger))

	logger.Info(ctx, "specforge worker starting",
		zap.String("version", version),
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("repository", cfg.GitHub.Repository),
		zap.String("work_dir", cfg.Runner.WorkDir),
	)

	stop := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	if err := w.Run(stop); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	logger.Info(ctx, "worker stopped")
	return nil
}
