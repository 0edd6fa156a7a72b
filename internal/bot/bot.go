package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/config"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/metrics"
	"github.com/fyrsmithlabs/specforge/internal/orchestrator"
	"github.com/fyrsmithlabs/specforge/internal/plan"
	"github.com/fyrsmithlabs/specforge/internal/prompts"
	"github.com/fyrsmithlabs/specforge/internal/tracker"
	"github.com/fyrsmithlabs/specforge/internal/workspace"
)

// ErrRetriesExhausted is returned by an implement run that ended FAILED
// when Options.FailOnExhausted is set.
var ErrRetriesExhausted = errors.New("tests still failing after all retries")

// ErrSelectorRequired is returned by implement-subtask without a selector.
var ErrSelectorRequired = errors.New("implement-subtask requires a /implement <n> comment")

// Options carries the per-run settings.
type Options struct {
	Repository      string
	IssueNumber     int
	CommentBody     string
	Labels          []string
	MaxRetries      int
	TestCommand     string
	ErrorTailChars  int
	FailOnExhausted bool
	WorkDir         string
}

// OptionsFromConfig maps loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Repository:      cfg.GitHub.Repository,
		IssueNumber:     cfg.GitHub.IssueNumber,
		CommentBody:     cfg.GitHub.CommentBody,
		Labels:          cfg.GitHub.Labels,
		MaxRetries:      cfg.Orchestrator.MaxRetries,
		TestCommand:     cfg.Orchestrator.TestCommand,
		ErrorTailChars:  cfg.Orchestrator.ErrorTailChars,
		FailOnExhausted: cfg.Orchestrator.FailOnExhausted,
		WorkDir:         cfg.Runner.WorkDir,
	}
}

// Deps are the collaborators of a Bot. Recorder, Pusher and Tracer are
// optional.
type Deps struct {
	Tracker   tracker.Tracker
	Generator Generator
	Prompts   *prompts.Builder
	Executor  *Executor
	Publisher *Publisher
	Recorder  *metrics.Recorder
	Pusher    *metrics.Pusher
	Tracer    trace.Tracer
	Logger    *logging.Logger
}

// Bot runs one mode against one issue.
type Bot struct {
	opts Options
	deps Deps
	log  *logging.Logger
}

// New validates deps and returns a Bot.
func New(opts Options, deps Deps) (*Bot, error) {
	if deps.Tracker == nil {
		return nil, errors.New("tracker is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if deps.Prompts == nil {
		return nil, errors.New("prompts are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if opts.IssueNumber <= 0 {
		return nil, errors.New("issue number is required")
	}
	return &Bot{opts: opts, deps: deps, log: deps.Logger.Named("bot")}, nil
}

// Run executes mode.
func (b *Bot) Run(ctx context.Context, mode Mode) error {
	ctx, span := b.deps.Tracer.Start(ctx, "specforge."+string(mode), trace.WithAttributes(
		attribute.String("repository", b.opts.Repository),
		attribute.Int("issue", b.opts.IssueNumber),
	))
	defer span.End()

	var err error
	switch mode {
	case ModeSpec:
		err = b.runSpec(ctx)
	case ModePlan:
		err = b.runPlan(ctx)
	case ModeCreateIssues:
		err = b.runCreateIssues(ctx)
	case ModeImplement, ModeImplementSubtask:
		err = b.runImplement(ctx, mode)
	default:
		err = fmt.Errorf("unknown mode %q", mode)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (b *Bot) runSpec(ctx context.Context) error {
	issue, err := b.deps.Tracker.GetIssue(ctx, b.opts.IssueNumber)
	if err != nil {
		return err
	}
	prompt, err := b.deps.Prompts.Spec(prompts.Issue{Number: issue.Number, Title: issue.Title, Body: issue.Body})
	if err != nil {
		return err
	}
	resp, err := b.deps.Generator.Generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("failed to generate specification: %w", err)
	}

	body := SpecMarker + "\n" + strings.TrimSpace(resp.Text) + "\n"
	c, err := b.deps.Tracker.CreateComment(ctx, issue.Number, body)
	if err != nil {
		return err
	}
	b.log.Info(ctx, "specification posted", zap.String("model", resp.Model), zap.String("comment_url", c.URL))
	return nil
}

func (b *Bot) runPlan(ctx context.Context) error {
	issue, comments, err := b.load(ctx)
	if err != nil {
		return err
	}
	spec, fromComment := ResolveSpec(issue, comments)
	b.log.Debug(ctx, "resolved specification", zap.Bool("from_comment", fromComment), zap.Int("chars", len(spec)))

	prompt, err := b.deps.Prompts.Plan(spec)
	if err != nil {
		return err
	}
	resp, err := b.deps.Generator.Generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("failed to generate plan: %w", err)
	}

	p, err := plan.Extract(resp.Text)
	if err != nil {
		b.log.Warn(ctx, "model returned no usable plan, skipping", zap.Error(err), zap.String("model", resp.Model))
		return nil
	}
	body, err := plan.Render(p)
	if err != nil {
		return err
	}
	if _, err := b.deps.Tracker.CreateComment(ctx, issue.Number, body); err != nil {
		return err
	}
	b.log.Info(ctx, "plan posted", zap.Int("tasks", len(p.Tasks)), zap.String("model", resp.Model))
	return nil
}

func (b *Bot) runCreateIssues(ctx context.Context) error {
	epic, comments, err := b.load(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(epic.Body, SubIssuesMarker) {
		b.log.Info(ctx, "sub-issues already created, skipping")
		return nil
	}

	p, err := LatestPlan(comments)
	if err != nil {
		b.log.Warn(ctx, "no usable plan on issue, skipping", zap.Error(err))
		return nil
	}

	var (
		created []*tracker.Issue
		errs    []error
	)
	for i, task := range p.Tasks {
		body := strings.TrimSpace(task.Body)
		if body != "" {
			body += "\n\n"
		}
		body += fmt.Sprintf("Part of #%d (task %d).", epic.Number, i+1)

		is, err := b.deps.Tracker.CreateIssue(ctx, task.Title, body, mergeLabels(b.opts.Labels, task.Labels))
		if err != nil {
			b.log.Error(ctx, "failed to create sub-issue", zap.Int("task", i+1), zap.Error(err))
			errs = append(errs, orchestrator.NewStepError("create sub-issue", orchestrator.SeverityHigh, err, task.Title))
			continue
		}
		created = append(created, is)
	}

	if len(created) == 0 {
		return errors.Join(errs...)
	}
	if err := b.deps.Tracker.EditIssueBody(ctx, epic.Number, appendChecklist(epic.Body, created)); err != nil {
		errs = append(errs, err)
		return errors.Join(errs...)
	}
	b.log.Info(ctx, "sub-issues created", zap.Int("created", len(created)), zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

func (b *Bot) runImplement(ctx context.Context, mode Mode) error {
	if b.deps.Executor == nil || b.deps.Publisher == nil {
		return errors.New("implement modes need an executor and a publisher")
	}

	in, err := PrepareInput(ctx, b.deps.Tracker, b.opts.IssueNumber, b.opts.CommentBody, mode == ModeImplementSubtask, b.log)
	if err != nil {
		return err
	}
	if run, ok := logging.RunFromContext(ctx); ok {
		in.RunID = run.ID
	}

	machine, err := orchestrator.NewMachine(orchestrator.Config{
		MaxRetries:     b.opts.MaxRetries,
		TestCommand:    b.opts.TestCommand,
		ErrorTailChars: b.opts.ErrorTailChars,
	}, b.deps.Executor.Bind(ctx), b.deps.Prompts)
	if err != nil {
		return err
	}
	machine.RegisterDefaultGates()
	machine.OnTransition(func(t orchestrator.Transition) {
		b.log.Info(ctx, "state transition",
			zap.String("from", orchestrator.Label(t.From, t.FromAttempt)),
			zap.String("to", orchestrator.Label(t.To, t.ToAttempt)),
		)
	})

	report, runErr := machine.Run(in)
	return b.finish(ctx, mode, report, runErr)
}

// PrepareInput loads an issue and resolves the specification, the
// selector from commentBody and the focus it implies.
func PrepareInput(ctx context.Context, t tracker.Tracker, issueNumber int, commentBody string, requireSelector bool, logger *logging.Logger) (orchestrator.Input, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	selector, hasSelector := ExtractSelector(commentBody)
	if requireSelector && !hasSelector {
		return orchestrator.Input{}, ErrSelectorRequired
	}

	issue, comments, err := loadIssue(ctx, t, issueNumber)
	if err != nil {
		return orchestrator.Input{}, err
	}
	spec, fromComment := ResolveSpec(issue, comments)
	if spec == "" {
		return orchestrator.Input{}, fmt.Errorf("issue #%d has no specification or body", issue.Number)
	}

	var p *plan.Plan
	if selector != "" {
		if p, err = LatestPlan(comments); err != nil && !errors.Is(err, plan.ErrNoPlan) {
			logger.Warn(ctx, "ignoring malformed plan", zap.Error(err))
		}
	}
	focus, err := ResolveFocus(selector, p)
	if err != nil {
		return orchestrator.Input{}, err
	}

	logger.Info(ctx, "implementation input resolved",
		zap.Bool("spec_from_comment", fromComment),
		zap.String("selector", selector),
		zap.Bool("focused", focus != ""),
	)
	return orchestrator.Input{Spec: spec, Focus: focus, Selector: selector}, nil
}

// finish lists changed files, publishes the report, records metrics and
// applies the exit policy.
func (b *Bot) finish(ctx context.Context, mode Mode, report *orchestrator.Report, runErr error) error {
	if changed, err := workspace.ChangedFiles(b.opts.WorkDir); err != nil {
		b.log.Warn(ctx, "could not list changed files", zap.Error(err))
	} else {
		report.ChangedFiles = changed
	}

	var errs []error
	if runErr != nil {
		b.log.Error(ctx, "run stopped", zap.Error(runErr))
		errs = append(errs, runErr)
	}

	if _, err := b.deps.Publisher.Publish(ctx, b.opts.IssueNumber, report); err != nil {
		var se *orchestrator.StepError
		if !errors.As(err, &se) || se.Severity == orchestrator.SeverityCritical {
			errs = append(errs, err)
		}
	}

	b.deps.Recorder.RecordReport(ctx, string(mode), report)
	if err := b.deps.Pusher.Push(ctx, metrics.SummaryFromReport(b.opts.Repository, string(mode), report)); err != nil {
		b.log.Warn(ctx, "could not push run metrics", zap.Error(err))
	}

	b.log.Info(ctx, "run finished",
		zap.String("status", report.Status()),
		zap.Int("attempts", report.Attempts),
		zap.Int("fix_generations", report.FixGenerations()),
	)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if report.State == orchestrator.StateFailed && b.opts.FailOnExhausted {
		return ErrRetriesExhausted
	}
	return nil
}

func (b *Bot) load(ctx context.Context) (*tracker.Issue, []tracker.Comment, error) {
	return loadIssue(ctx, b.deps.Tracker, b.opts.IssueNumber)
}

func loadIssue(ctx context.Context, t tracker.Tracker, number int) (*tracker.Issue, []tracker.Comment, error) {
	issue, err := t.GetIssue(ctx, number)
	if err != nil {
		return nil, nil, err
	}
	comments, err := t.ListComments(ctx, issue.Number)
	if err != nil {
		return nil, nil, err
	}
	return issue, comments, nil
}

func mergeLabels(base, extra []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range append(append([]string{}, base...), extra...) {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func appendChecklist(body string, created []*tracker.Issue) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n\n")
	b.WriteString(SubIssuesMarker)
	b.WriteString("\n## Sub-issues\n\n")
	for _, is := range created {
		fmt.Fprintf(&b, "- [ ] #%d %s\n", is.Number, is.Title)
	}
	return b.String()
}
