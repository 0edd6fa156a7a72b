package services

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/specforge/internal/bot"
	"github.com/fyrsmithlabs/specforge/internal/config"
	"github.com/fyrsmithlabs/specforge/internal/fileset"
	"github.com/fyrsmithlabs/specforge/internal/llm"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/metrics"
	"github.com/fyrsmithlabs/specforge/internal/prompts"
	"github.com/fyrsmithlabs/specforge/internal/redact"
	"github.com/fyrsmithlabs/specforge/internal/runner"
	"github.com/fyrsmithlabs/specforge/internal/telemetry"
	"github.com/fyrsmithlabs/specforge/internal/tracker"
	"github.com/fyrsmithlabs/specforge/internal/workflows"
)

// Registry hands the assembled collaborators to the bot and the worker.
type Registry interface {
	// BotDeps bundles the collaborators for bot.New.
	BotDeps(logger *logging.Logger) bot.Deps
	// Activities returns the Temporal activities for one repository checkout.
	Activities(repository, workDir string, logger *logging.Logger) *workflows.Activities
}

// Options configures the registry with service instances.
type Options struct {
	Tracker   tracker.Tracker
	Generator bot.Generator
	Prompts   *prompts.Builder
	Executor  *bot.Executor
	Publisher *bot.Publisher
	Recorder  *metrics.Recorder
	Pusher    *metrics.Pusher
	Tracer    trace.Tracer
}

type registry struct {
	tracker   tracker.Tracker
	generator bot.Generator
	prompts   *prompts.Builder
	executor  *bot.Executor
	publisher *bot.Publisher
	recorder  *metrics.Recorder
	pusher    *metrics.Pusher
	tracer    trace.Tracer
}

// NewRegistry creates a registry from already built services.
func NewRegistry(opts Options) Registry {
	return &registry{
		tracker:   opts.Tracker,
		generator: opts.Generator,
		prompts:   opts.Prompts,
		executor:  opts.Executor,
		publisher: opts.Publisher,
		recorder:  opts.Recorder,
		pusher:    opts.Pusher,
		tracer:    opts.Tracer,
	}
}

func (r *registry) BotDeps(logger *logging.Logger) bot.Deps {
	return bot.Deps{
		Tracker:   r.tracker,
		Generator: r.generator,
		Prompts:   r.prompts,
		Executor:  r.executor,
		Publisher: r.publisher,
		Recorder:  r.recorder,
		Pusher:    r.pusher,
		Tracer:    r.tracer,
		Logger:    logger,
	}
}

func (r *registry) Activities(repository, workDir string, logger *logging.Logger) *workflows.Activities {
	return &workflows.Activities{
		Repository: repository,
		WorkDir:    workDir,
		Tracker:    r.tracker,
		Executor:   r.executor,
		Publisher:  r.publisher,
		Logger:     logger,
	}
}

// Build assembles every service from cfg. tel may be nil.
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger, tel *telemetry.Telemetry) (Registry, error) {
	tr, err := tracker.NewGitHub(ctx, cfg.GitHub.Token, cfg.GitHub.Repository,
		tracker.WithBaseURL(cfg.GitHub.BaseURL),
		tracker.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracker: %w", err)
	}

	client, err := llm.NewFromConfig(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	builder, err := prompts.New()
	if err != nil {
		return nil, err
	}

	var redactor *redact.Redactor
	if cfg.Redaction.Enabled {
		redactor, err = redact.New(cfg.LLM.APIKey.Value(), cfg.GitHub.Token.Value(), cfg.Webhook.Secret.Value())
		if err != nil {
			return nil, err
		}
	}

	cmd := runner.New(runner.Config{
		Dir:     cfg.Runner.WorkDir,
		Shell:   cfg.Runner.Shell,
		Timeout: cfg.Runner.Timeout.Duration(),
	}, logger)

	executor, err := bot.NewExecutor(client, fileset.NewOSWriter(cfg.Runner.WorkDir), cmd, redactor,
		fileset.ParseOptions{MaxContentBytes: cfg.Orchestrator.MaxFileBytes}, logger)
	if err != nil {
		return nil, err
	}

	recorder, err := metrics.NewRecorder(tel.Meter(metrics.InstrumentationName))
	if err != nil {
		return nil, err
	}

	return NewRegistry(Options{
		Tracker:   tr,
		Generator: client,
		Prompts:   builder,
		Executor:  executor,
		Publisher: bot.NewPublisher(afero.NewOsFs(), tr, cfg.ReportPath(), cfg.Report.HTML, logger),
		Recorder:  recorder,
		Pusher:    metrics.NewPusher(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, logger),
		Tracer:    tel.Tracer("github.com/fyrsmithlabs/specforge/internal/bot"),
	}), nil
}
