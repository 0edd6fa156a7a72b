// Package workflows runs the fix-retry loop as a Temporal workflow.
//
// ImplementationWorkflow drives the same orchestrator.Machine the CLI uses;
// only the Steps differ. Each generation and test run becomes an activity,
// so a crashed worker resumes the loop where it stopped instead of paying
// for completed model calls again.
package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/specforge/internal/orchestrator"
	"github.com/fyrsmithlabs/specforge/internal/prompts"
	"github.com/fyrsmithlabs/specforge/internal/runner"
)

// DefaultStepTimeout bounds a generation or test activity when the input
// does not.
const DefaultStepTimeout = 45 * time.Minute

// TestActivitySlack is added to the runner timeout, on top of the runner's
// kill grace, to bound the test activity.
const TestActivitySlack = time.Minute

// testActivityTimeout outlasts the runner so its timeout surfaces as a
// failed test run.
func testActivityTimeout(in ImplementationInput, stepTimeout time.Duration) time.Duration {
	if in.TestTimeout <= 0 {
		return stepTimeout
	}
	return in.TestTimeout + runner.WaitDelay + TestActivitySlack
}

// ImplementationWorkflow generates code and tests for an issue and iterates
// on test failures until the test command passes or retries run out.
func ImplementationWorkflow(ctx workflow.Context, in ImplementationInput) (*ImplementationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting implementation",
		"repository", in.Repository,
		"issue", in.IssueNumber)

	// Tracker calls are idempotent reads or single comments; let Temporal
	// retry them.
	trackerCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})

	// The machine owns retries of generation and tests.
	stepTimeout := in.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	stepCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: stepTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
	testCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: testActivityTimeout(in, stepTimeout),
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	result := &ImplementationResult{}
	var a *Activities

	var input orchestrator.Input
	err := workflow.ExecuteActivity(trackerCtx, a.Prepare, PrepareInput{
		Repository:      in.Repository,
		IssueNumber:     in.IssueNumber,
		CommentBody:     in.CommentBody,
		RequireSelector: in.RequireSelector,
	}).Get(ctx, &input)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to prepare run: %v", err))
		return result, err
	}
	input.RunID = workflow.GetInfo(ctx).WorkflowExecution.RunID

	builder, err := prompts.New()
	if err != nil {
		return result, err
	}
	machine, err := orchestrator.NewMachine(orchestrator.Config{
		MaxRetries:     in.MaxRetries,
		TestCommand:    in.TestCommand,
		ErrorTailChars: in.ErrorTailChars,
		Now:            func() time.Time { return workflow.Now(ctx) },
	}, &activitySteps{ctx: stepCtx, testCtx: testCtx}, builder)
	if err != nil {
		return result, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	}
	machine.RegisterDefaultGates()
	machine.OnTransition(func(t orchestrator.Transition) {
		logger.Info("State transition",
			"from", orchestrator.Label(t.From, t.FromAttempt),
			"to", orchestrator.Label(t.To, t.ToAttempt))
	})

	report, runErr := machine.Run(input)
	result.Report = report
	if runErr != nil {
		result.Errors = append(result.Errors, runErr.Error())
	}

	// The report is published even when the run stopped early.
	var published PublishResult
	if err := workflow.ExecuteActivity(trackerCtx, a.Publish, PublishInput{
		IssueNumber: in.IssueNumber,
		Report:      report,
	}).Get(ctx, &published); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to publish report: %v", err))
		if runErr == nil {
			return result, err
		}
	} else {
		report.ChangedFiles = published.ChangedFiles
		result.ReportPaths = published.ReportPaths
		result.CommentPosted = published.CommentPosted
		if published.CommentError != "" {
			result.Errors = append(result.Errors, published.CommentError)
		}
	}

	if runErr != nil {
		return result, runErr
	}

	logger.Info("Implementation finished",
		"status", report.Status(),
		"attempts", report.Attempts)
	return result, nil
}

// activitySteps runs each machine step as an activity.
type activitySteps struct {
	ctx     workflow.Context
	testCtx workflow.Context
}

func (s *activitySteps) Generate(phase orchestrator.Phase, prompt string) (orchestrator.GenerateOutcome, error) {
	var a *Activities
	var out orchestrator.GenerateOutcome
	err := workflow.ExecuteActivity(s.ctx, a.Generate, GenerateInput{Phase: phase, Prompt: prompt}).Get(s.ctx, &out)
	return out, err
}

func (s *activitySteps) RunTests(attempt int, command string) (orchestrator.TestOutcome, error) {
	var a *Activities
	var out orchestrator.TestOutcome
	in := RunTestsInput{Attempt: attempt, Command: command}
	err := workflow.ExecuteActivity(s.testCtx, a.RunTests, in).Get(s.testCtx, &out)
	return out, err
}
