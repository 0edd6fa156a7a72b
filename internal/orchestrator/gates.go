package orchestrator

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// PhaseVerify is the checkpoint after a passing test run. It never
// generates files; only gates run there.
const PhaseVerify Phase = "verify"

// Violation is a problem a gate found.
type Violation struct {
	Gate        string   `json:"gate"`
	Phase       Phase    `json:"phase"`
	Attempt     int      `json:"attempt,omitempty"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// Checkpoint is what a gate sees. Generation is set after a generation
// step; Output is set at PhaseVerify.
type Checkpoint struct {
	Phase      Phase
	Attempt    int
	Generation Generation
	Output     string
}

// Gate inspects a checkpoint. A critical violation stops the run.
type Gate interface {
	Name() string
	Check(cp Checkpoint) []Violation
}

// TestFilesGate flags a tests phase that produced nothing resembling a test.
type TestFilesGate struct{}

// NewTestFilesGate creates a TestFilesGate.
func NewTestFilesGate() *TestFilesGate {
	return &TestFilesGate{}
}

// Name returns the gate identifier
func (g *TestFilesGate) Name() string {
	return "test-files"
}

// Check validates the tests phase output.
func (g *TestFilesGate) Check(cp Checkpoint) []Violation {
	if cp.Phase != PhaseTests {
		return nil
	}
	if len(cp.Generation.Written) == 0 {
		return []Violation{{
			Gate:        g.Name(),
			Phase:       cp.Phase,
			Description: "tests phase wrote no files",
			Severity:    SeverityHigh,
		}}
	}
	for _, p := range cp.Generation.Written {
		if looksLikeTestFile(p) {
			return nil
		}
	}
	return []Violation{{
		Gate:        g.Name(),
		Phase:       cp.Phase,
		Description: fmt.Sprintf("none of the %d files written in the tests phase look like tests", len(cp.Generation.Written)),
		Severity:    SeverityLow,
	}}
}

// VerificationGate flags a passing test run whose output is usage text
// rather than test results.
type VerificationGate struct{}

// NewVerificationGate creates a VerificationGate.
func NewVerificationGate() *VerificationGate {
	return &VerificationGate{}
}

// Name returns the gate identifier
func (g *VerificationGate) Name() string {
	return "verification"
}

// Check validates the passing run's output.
func (g *VerificationGate) Check(cp Checkpoint) []Violation {
	if cp.Phase != PhaseVerify || !isHelpOutput(cp.Output) {
		return nil
	}
	return []Violation{{
		Gate:        g.Name(),
		Phase:       cp.Phase,
		Attempt:     cp.Attempt,
		Description: "test command exited 0 but printed usage text instead of test results",
		Severity:    SeverityHigh,
	}}
}

func looksLikeTestFile(p string) bool {
	lower := strings.ToLower(p)
	if strings.Contains(lower, "/test/") || strings.Contains(lower, "/tests/") ||
		strings.HasPrefix(lower, "test/") || strings.HasPrefix(lower, "tests/") {
		return true
	}
	return strings.Contains(path.Base(lower), "test") || strings.Contains(path.Base(lower), "spec")
}

var (
	helpPatterns = []string{
		"usage:",
		"--help",
		"-h, --help",
		"show help",
		"show this help",
		"options:",
	}

	testResultPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(pass|fail|error).*\d+`),
		regexp.MustCompile(`(?i)test.*\([\d.]+m?s\)`),
		regexp.MustCompile(`✓|✗`),
		regexp.MustCompile(`(?i)ok\s+\S+\s+[\d.]+s`),
		regexp.MustCompile(`(?i)test suites?:\s*\d+`),
		regexp.MustCompile(`(?i)\d+ tests? (completed|run|executed)`),
		regexp.MustCompile(`(?i)build successful`),
	}
)

// isHelpOutput reports whether output reads like --help text rather than
// test results.
func isHelpOutput(output string) bool {
	if output == "" {
		return false
	}
	for _, p := range testResultPatterns {
		if p.MatchString(output) {
			return false
		}
	}

	lower := strings.ToLower(output)
	count := 0
	for _, p := range helpPatterns {
		if strings.Contains(lower, p) {
			count++
		}
	}
	return count >= 2
}

func hasCriticalViolation(violations []Violation) bool {
	for _, v := range violations {
		if v.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

func describeViolations(violations []Violation) string {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Gate, v.Description))
	}
	return strings.Join(parts, "; ")
}
