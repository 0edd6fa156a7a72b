package orchestrator

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/specforge/internal/fileset"
)

// State is a node of the run state machine.
type State string

const (
	StateStub    State = "STUB"
	StateTest    State = "TEST"
	StateAttempt State = "ATTEMPT"
	StateDone    State = "DONE"
	StateFailed  State = "FAILED"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Label renders the state with its attempt number where relevant.
func Label(s State, attempt int) string {
	if s == StateAttempt {
		return fmt.Sprintf("%s(%d)", s, attempt)
	}
	return string(s)
}

// Phase names a generation step.
type Phase string

const (
	PhaseStub  Phase = "stub"
	PhaseTests Phase = "tests"
	PhaseFix   Phase = "fix"
)

// Transition records one state change.
type Transition struct {
	From        State     `json:"from"`
	FromAttempt int       `json:"from_attempt,omitempty"`
	To          State     `json:"to"`
	ToAttempt   int       `json:"to_attempt,omitempty"`
	At          time.Time `json:"at"`
}

func (t Transition) String() string {
	return Label(t.From, t.FromAttempt) + " -> " + Label(t.To, t.ToAttempt)
}

// GenerateOutcome is what a generation step produced on disk.
type GenerateOutcome struct {
	Model    string              `json:"model"`
	Written  []string            `json:"written"`
	Rejected []fileset.Rejection `json:"rejected,omitempty"`
}

// TestOutcome is the result of one test command run. Output is the combined
// stderr and stdout, already scrubbed of credentials.
type TestOutcome struct {
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Steps performs the side effects of a run.
type Steps interface {
	// Generate sends prompt to the model chain, parses the response and
	// writes the resulting files.
	Generate(phase Phase, prompt string) (GenerateOutcome, error)
	// RunTests runs the test command once for the given attempt.
	RunTests(attempt int, command string) (TestOutcome, error)
}

// Prompter builds the prompt for each generation step.
type Prompter interface {
	Stub(spec, focus string) (string, error)
	Tests(spec, focus string) (string, error)
	Fix(spec, errorTail, focus string) (string, error)
}

// Input describes one run.
type Input struct {
	RunID    string `json:"run_id"`
	Spec     string `json:"spec"`
	Focus    string `json:"focus,omitempty"`
	Selector string `json:"selector,omitempty"`
}
