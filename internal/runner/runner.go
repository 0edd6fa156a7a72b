// Package runner executes the project's test command in a shell.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/logging"
)

const (
	// DefaultTimeout bounds a single command run.
	DefaultTimeout = 30 * time.Minute

	// DefaultMaxOutputBytes caps each captured stream. The oldest bytes are
	// dropped first so the end of a long build log survives.
	DefaultMaxOutputBytes = 4 << 20

	// TimeoutExitCode is reported when the run was killed for exceeding the timeout.
	TimeoutExitCode = 124

	// WaitDelay is how long a killed command may take to release its
	// output pipes before Run gives up on it.
	WaitDelay = 5 * time.Second
)

// Result is the captured outcome of one command run.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// Success reports whether the command exited with status 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Combined returns stderr followed by stdout.
func (r *Result) Combined() string {
	return r.Stderr + r.Stdout
}

// Config configures a Runner.
type Config struct {
	Dir            string
	Shell          string
	Timeout        time.Duration // 0 disables the timeout
	MaxOutputBytes int
}

// Runner runs shell commands.
type Runner struct {
	cfg    Config
	logger *logging.Logger
}

// New returns a Runner. A nil logger discards output.
func New(cfg Config, logger *logging.Logger) *Runner {
	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{cfg: cfg, logger: logger.Named("runner")}
}

// Run executes command through the shell and waits for it. A nonzero exit
// status, a signal or a timeout is reported in the Result. The error is
// non-nil only when the process could not be started.
func (r *Runner) Run(ctx context.Context, command string) (*Result, error) {
	runCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, r.cfg.Shell, "-c", command)
	cmd.Dir = r.cfg.Dir
	cmd.WaitDelay = WaitDelay

	stdout := newTailBuffer(r.cfg.MaxOutputBytes)
	stderr := newTailBuffer(r.cfg.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Info(ctx, "running command",
		zap.String("command", command),
		zap.String("dir", r.cfg.Dir),
		zap.Duration("timeout", r.cfg.Timeout),
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", command, err)
	}
	waitErr := cmd.Wait()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case r.cfg.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result.TimedOut = true
		result.ExitCode = TimeoutExitCode
		r.logger.Warn(ctx, "command timed out", zap.Duration("timeout", r.cfg.Timeout))
	case waitErr == nil:
		result.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) && exitErr.ExitCode() >= 0 {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Killed by a signal, or the context was cancelled.
			result.ExitCode = -1
		}
	}

	r.logger.Info(ctx, "command finished",
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration),
		zap.Int("stdout_bytes", len(result.Stdout)),
		zap.Int("stderr_bytes", len(result.Stderr)),
	)
	return result, nil
}
