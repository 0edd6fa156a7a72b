package bot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/fileset"
	"github.com/fyrsmithlabs/specforge/internal/llm"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/orchestrator"
	"github.com/fyrsmithlabs/specforge/internal/redact"
	"github.com/fyrsmithlabs/specforge/internal/runner"
)

// Generator produces text for a prompt. *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (llm.Response, error)
}

// CommandRunner runs the test command. *runner.Runner satisfies it.
type CommandRunner interface {
	Run(ctx context.Context, command string) (*runner.Result, error)
}

// Executor performs the side effects of the fix-retry loop: generate,
// parse and write files; run and scrub the test command.
type Executor struct {
	gen      Generator
	writer   *fileset.Writer
	runner   CommandRunner
	redactor *redact.Redactor
	parse    fileset.ParseOptions
	logger   *logging.Logger
}

// NewExecutor wires an Executor. A nil redactor leaves output untouched.
func NewExecutor(gen Generator, writer *fileset.Writer, cmd CommandRunner, redactor *redact.Redactor, parse fileset.ParseOptions, logger *logging.Logger) (*Executor, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if cmd == nil {
		return nil, errors.New("command runner is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		gen:      gen,
		writer:   writer,
		runner:   cmd,
		redactor: redactor,
		parse:    parse,
		logger:   logger.Named("executor"),
	}, nil
}

// Generate sends prompt to the model chain, parses the reply into files and
// writes them under the working tree. Rejected blocks are reported, not
// written. A write failure stops the step.
func (e *Executor) Generate(ctx context.Context, phase orchestrator.Phase, prompt string) (orchestrator.GenerateOutcome, error) {
	e.logger.Trace(ctx, "prompt", zap.String("phase", string(phase)), zap.String("body", prompt))

	resp, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return orchestrator.GenerateOutcome{}, err
	}
	e.logger.Trace(ctx, "response", zap.String("phase", string(phase)), zap.String("body", resp.Text))

	result := fileset.Parse(resp.Text, e.parse)
	for _, rej := range result.Rejected {
		e.logger.Warn(ctx, "rejected file block",
			zap.String("phase", string(phase)),
			zap.String("path", rej.Path),
			zap.String("reason", rej.Reason),
		)
	}
	if len(result.Files) == 0 {
		e.logger.Warn(ctx, "response contained no file blocks",
			zap.String("phase", string(phase)),
			zap.String("model", resp.Model),
		)
	}

	written, err := e.writer.WriteAll(result.Files)
	out := orchestrator.GenerateOutcome{Model: resp.Model, Written: written, Rejected: result.Rejected}
	if err != nil {
		return out, fmt.Errorf("failed to write %s files: %w", phase, err)
	}

	e.logger.Info(ctx, "files written",
		zap.String("phase", string(phase)),
		zap.String("model", resp.Model),
		zap.Strings("paths", written),
	)
	return out, nil
}

// RunTests runs command once for the given attempt and returns its scrubbed
// combined output.
func (e *Executor) RunTests(ctx context.Context, attempt int, command string) (orchestrator.TestOutcome, error) {
	ctx = logging.WithAttempt(ctx, attempt)
	res, err := e.runner.Run(ctx, command)
	if err != nil {
		return orchestrator.TestOutcome{}, err
	}

	output, n := e.redactor.Redact(res.Combined())
	if n > 0 {
		e.logger.Info(ctx, "redacted secrets from test output", zap.Int("count", n))
	}

	e.logger.Info(ctx, "test command finished",
		zap.Int("exit_code", res.ExitCode),
		zap.Bool("timed_out", res.TimedOut),
		zap.Duration("duration", res.Duration),
	)
	return orchestrator.TestOutcome{
		ExitCode: res.ExitCode,
		Output:   output,
		TimedOut: res.TimedOut,
		Duration: res.Duration,
	}, nil
}

// Bind returns Steps that run every call under ctx.
func (e *Executor) Bind(ctx context.Context) orchestrator.Steps {
	return boundSteps{ctx: ctx, e: e}
}

type boundSteps struct {
	ctx context.Context
	e   *Executor
}

func (s boundSteps) Generate(phase orchestrator.Phase, prompt string) (orchestrator.GenerateOutcome, error) {
	return s.e.Generate(s.ctx, phase, prompt)
}

func (s boundSteps) RunTests(attempt int, command string) (orchestrator.TestOutcome, error) {
	return s.e.RunTests(s.ctx, attempt, command)
}
