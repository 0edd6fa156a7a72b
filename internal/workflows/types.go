package workflows

import (
	"time"

	"github.com/fyrsmithlabs/specforge/internal/orchestrator"
)

// ImplementationInput starts an ImplementationWorkflow. It carries no
// credentials; activities hold their own clients.
type ImplementationInput struct {
	Repository  string // owner/name, must match the worker's repository
	IssueNumber int
	CommentBody string // triggering comment, searched for /implement <n>
	// RequireSelector makes a missing selector fatal (implement-subtask).
	RequireSelector bool

	MaxRetries     int
	TestCommand    string
	ErrorTailChars int

	// StepTimeout bounds one generation activity, and one test activity
	// when TestTimeout is zero.
	StepTimeout time.Duration
	// TestTimeout is the worker runner's own kill timeout. The test activity
	// is given TestActivitySlack beyond it so a timed-out command is reported
	// as a failed attempt rather than an expired activity.
	TestTimeout time.Duration
}

// ImplementationResult is returned by ImplementationWorkflow.
type ImplementationResult struct {
	Report        *orchestrator.Report
	ReportPaths   []string
	CommentPosted bool
	Errors        []string // high severity failures that did not stop the run
}

// PrepareInput is the input of Activities.Prepare.
type PrepareInput struct {
	Repository      string
	IssueNumber     int
	CommentBody     string
	RequireSelector bool
}

// GenerateInput is the input of Activities.Generate.
type GenerateInput struct {
	Phase  orchestrator.Phase
	Prompt string
}

// RunTestsInput is the input of Activities.RunTests.
type RunTestsInput struct {
	Attempt int
	Command string
}

// PublishInput is the input of Activities.Publish.
type PublishInput struct {
	IssueNumber int
	Report      *orchestrator.Report
}

// PublishResult reports what Activities.Publish managed to do.
type PublishResult struct {
	ReportPaths   []string
	ChangedFiles  []string
	CommentPosted bool
	CommentError  string
}
