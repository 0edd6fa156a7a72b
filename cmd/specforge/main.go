// Package main implements the specforge CLI.
//
// specforge runs one mode against the issue named by ISSUE_NUMBER in
// GITHUB_REPOSITORY. It is meant to be invoked from a CI job triggered by
// an issue or comment event.
//
// Usage:
//
//	GEMINI_API_KEY=... GITHUB_TOKEN=... \
//	GITHUB_REPOSITORY=acme/widgets ISSUE_NUMBER=42 \
//	COMMENT_BODY="/implement 2" \
//	specforge implement-subtask
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/bot"
	"github.com/fyrsmithlabs/specforge/internal/config"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/services"
	"github.com/fyrsmithlabs/specforge/internal/telemetry"
)

var version = "dev"

// runFunc executes one mode. Tests replace it.
type runFunc func(ctx context.Context, mode bot.Mode) error

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(run).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(fn runFunc) *cobra.Command {
	modes := bot.Modes()
	validArgs := make([]string, 0, len(modes))
	for _, m := range modes {
		validArgs = append(validArgs, string(m))
	}

	return &cobra.Command{
		Use:   "specforge <mode>",
		Short: "Draft specifications and iterate on code until tests pass",
		Long: `specforge reads an issue and acts on it with a generation model.

Modes:
  spec               draft a specification and post it as a comment
  plan               decompose the issue into tasks and post the plan
  create-issues      open one issue per task of the latest plan
  implement          generate code and tests, fixing until the test command passes
  implement-subtask  as implement, limited to the task named by "/implement <n>"

Configuration comes from the environment (GEMINI_API_KEY, GITHUB_TOKEN,
GITHUB_REPOSITORY, ISSUE_NUMBER, COMMENT_BODY and SPECFORGE_* overrides) and
an optional YAML file named by SPECFORGE_CONFIG.`,
		Version:       version,
		ValidArgs:     validArgs,
		Args:          cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := bot.ParseMode(args[0])
			if err != nil {
				return err
			}
			if err := fn(cmd.Context(), mode); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				return err
			}
			return nil
		},
	}
}

func run(ctx context.Context, mode bot.Mode) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireIssue(); err != nil {
		return err
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

	ctx = logging.WithRun(ctx, logging.Run{
		ID:    uuid.NewString(),
		Issue: cfg.GitHub.IssueNumber,
		Mode:  string(mode),
	})

	logger.Info(ctx, "specforge starting",
		zap.String("version", version),
		zap.String("repository", cfg.GitHub.Repository),
		zap.String("provider", cfg.LLM.Provider),
		zap.Strings("models", cfg.LLM.ModelChain()),
	)

	reg, err := services.Build(ctx, cfg, logger, tel)
	if err != nil {
		return err
	}
	b, err := bot.New(bot.OptionsFromConfig(cfg), reg.BotDeps(logger))
	if err != nil {
		return err
	}
	return b.Run(ctx, mode)
}
