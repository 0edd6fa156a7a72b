package orchestrator

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/fyrsmithlabs/specforge/internal/fileset"
)

// Generation records one generation step.
type Generation struct {
	Phase    Phase               `json:"phase"`
	Attempt  int                 `json:"attempt,omitempty"`
	Model    string              `json:"model"`
	Written  []string            `json:"written"`
	Rejected []fileset.Rejection `json:"rejected,omitempty"`
}

// TestRun records one execution of the test command.
type TestRun struct {
	Attempt  int           `json:"attempt"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report summarizes a run.
type Report struct {
	RunID        string       `json:"run_id"`
	Selector     string       `json:"selector,omitempty"`
	Focus        string       `json:"focus,omitempty"`
	TestCommand  string       `json:"test_command"`
	State        State        `json:"state"`
	Attempts     int          `json:"attempts"`
	MaxRetries   int          `json:"max_retries"`
	LastError    string       `json:"last_error,omitempty"`
	Error        string       `json:"error,omitempty"`
	Transitions  []Transition `json:"transitions"`
	Generations  []Generation `json:"generations"`
	Runs         []TestRun    `json:"runs"`
	Violations   []Violation  `json:"violations,omitempty"`
	ChangedFiles []string     `json:"changed_files,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`

	stateAttempt int
}

// Succeeded reports whether the test command passed.
func (r *Report) Succeeded() bool {
	return r.State == StateDone
}

// FixGenerations counts the fix steps taken.
func (r *Report) FixGenerations() int {
	n := 0
	for _, g := range r.Generations {
		if g.Phase == PhaseFix {
			n++
		}
	}
	return n
}

// Status is a one-word summary of the outcome.
func (r *Report) Status() string {
	switch {
	case r.Error != "":
		return "ERROR"
	case r.State == StateDone:
		return "SUCCESS"
	case r.State == StateFailed:
		return "FAILED"
	default:
		return string(r.State)
	}
}

// Markdown renders the report.
func (r *Report) Markdown() string {
	var b strings.Builder

	b.WriteString("# Implementation report\n\n")
	fmt.Fprintf(&b, "- **Status:** %s\n", r.Status())
	fmt.Fprintf(&b, "- **Final state:** %s\n", r.State)
	fmt.Fprintf(&b, "- **Attempts:** %d of %d\n", r.Attempts, r.MaxRetries)
	fmt.Fprintf(&b, "- **Test command:** `%s`\n", r.TestCommand)
	if r.Selector != "" {
		fmt.Fprintf(&b, "- **Sub-task:** %s\n", r.Selector)
	}
	if r.RunID != "" {
		fmt.Fprintf(&b, "- **Run:** `%s`\n", r.RunID)
	}
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "- **Duration:** %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	}

	if r.Error != "" {
		b.WriteString("\n## Error\n\n")
		b.WriteString(r.Error)
		b.WriteString("\n")
	}

	if len(r.Transitions) > 0 {
		b.WriteString("\n## Transitions\n\n")
		for _, t := range r.Transitions {
			fmt.Fprintf(&b, "1. %s\n", t)
		}
	}

	if len(r.Generations) > 0 {
		b.WriteString("\n## Generated files\n\n")
		b.WriteString("| Phase | Model | Written | Rejected |\n|---|---|---|---|\n")
		for _, g := range r.Generations {
			phase := string(g.Phase)
			if g.Phase == PhaseFix {
				phase = fmt.Sprintf("fix after attempt %d", g.Attempt)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %d |\n", phase, g.Model, codeList(g.Written), len(g.Rejected))
		}
		for _, g := range r.Generations {
			for _, rej := range g.Rejected {
				fmt.Fprintf(&b, "\n> rejected `%s` during %s: %s\n", rej.Path, g.Phase, rej.Reason)
			}
		}
	}

	if len(r.Runs) > 0 {
		b.WriteString("\n## Test runs\n\n")
		b.WriteString("| Attempt | Exit code | Duration |\n|---|---|---|\n")
		for _, run := range r.Runs {
			code := fmt.Sprint(run.ExitCode)
			if run.TimedOut {
				code += " (timed out)"
			}
			fmt.Fprintf(&b, "| %d | %s | %s |\n", run.Attempt, code, run.Duration.Round(time.Millisecond))
		}
	}

	if len(r.Violations) > 0 {
		b.WriteString("\n## Gate violations\n\n")
		for _, v := range r.Violations {
			fmt.Fprintf(&b, "- **%s** `%s` (%s): %s\n", v.Severity, v.Gate, v.Phase, v.Description)
		}
	}

	if len(r.ChangedFiles) > 0 {
		b.WriteString("\n## Changed files\n\n")
		for _, f := range r.ChangedFiles {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	}

	if r.LastError != "" {
		b.WriteString("\n## Last error output\n\n")
		b.WriteString(Fence(r.LastError))
		b.WriteString("\n")
	}

	return b.String()
}

// HTML renders the Markdown report as an HTML fragment.
func (r *Report) HTML() (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert([]byte(r.Markdown()), &buf); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

func codeList(paths []string) string {
	if len(paths) == 0 {
		return "none"
	}
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = "`" + p + "`"
	}
	return strings.Join(quoted, ", ")
}

// Fence wraps text in a code fence longer than any backtick run inside it.
func Fence(text string) string {
	longest, run := 0, 0
	for _, c := range text {
		if c == '`' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	ticks := strings.Repeat("`", max(3, longest+1))
	return ticks + "\n" + strings.TrimRight(text, "\n") + "\n" + ticks + "\n"
}
