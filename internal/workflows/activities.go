package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/bot"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/orchestrator"
	"github.com/fyrsmithlabs/specforge/internal/tracker"
	"github.com/fyrsmithlabs/specforge/internal/workspace"
)

// Activities performs the side effects of ImplementationWorkflow. A worker
// serves one repository checked out at WorkDir.
type Activities struct {
	Repository string
	WorkDir    string
	Tracker    tracker.Tracker
	Executor   *bot.Executor
	Publisher  *bot.Publisher
	Logger     *logging.Logger
}

func (a *Activities) logger() *logging.Logger {
	if a.Logger == nil {
		return logging.NewNop()
	}
	return a.Logger
}

// Prepare resolves the specification, selector and focus of a run.
func (a *Activities) Prepare(ctx context.Context, in PrepareInput) (orchestrator.Input, error) {
	start := time.Now()
	if in.Repository != a.Repository {
		err := fmt.Errorf("worker serves %s, not %s", a.Repository, in.Repository)
		observe(ctx, "prepare", start, err)
		return orchestrator.Input{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeRepositoryMismatch, err)
	}

	ctx = logging.WithRun(ctx, logging.Run{
		ID:    activity.GetInfo(ctx).WorkflowExecution.RunID,
		Issue: in.IssueNumber,
		Mode:  "implement",
	})
	out, err := bot.PrepareInput(ctx, a.Tracker, in.IssueNumber, in.CommentBody, in.RequireSelector, a.logger())
	observe(ctx, "prepare", start, err)
	return out, nonRetryable(err)
}

// Generate asks the model chain for files and writes them to the checkout.
func (a *Activities) Generate(ctx context.Context, in GenerateInput) (orchestrator.GenerateOutcome, error) {
	start := time.Now()
	out, err := a.Executor.Generate(ctx, in.Phase, in.Prompt)
	observe(ctx, "generate", start, err)
	return out, nonRetryable(err)
}

// RunTests runs the test command once in the checkout.
func (a *Activities) RunTests(ctx context.Context, in RunTestsInput) (orchestrator.TestOutcome, error) {
	start := time.Now()
	activity.RecordHeartbeat(ctx, in.Command)
	out, err := a.Executor.RunTests(ctx, in.Attempt, in.Command)
	observe(ctx, "run_tests", start, err)
	return out, err
}

// Publish lists changed files, writes the report and posts the summary.
// Only a report write failure fails the activity.
func (a *Activities) Publish(ctx context.Context, in PublishInput) (*PublishResult, error) {
	start := time.Now()
	if in.Report == nil {
		return nil, temporal.NewNonRetryableApplicationError("report is required", ErrTypeInvalidInput, nil)
	}
	res := &PublishResult{}

	if changed, err := workspace.ChangedFiles(a.WorkDir); err != nil {
		a.logger().Warn(ctx, "could not list changed files", zap.Error(err))
	} else {
		in.Report.ChangedFiles = changed
		res.ChangedFiles = changed
	}

	comment, err := a.Publisher.Publish(ctx, in.IssueNumber, in.Report)
	var se *orchestrator.StepError
	switch {
	case err == nil:
		res.CommentPosted = comment != nil
	case errors.As(err, &se) && se.Severity != orchestrator.SeverityCritical:
		res.CommentError = err.Error()
		err = nil
	}
	observe(ctx, "publish", start, err)
	if err != nil {
		return nil, err
	}
	res.ReportPaths = a.Publisher.Paths()
	return res, nil
}
