package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHelpOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   bool
	}{
		{"empty", "", false},
		{"usage text", "Usage: gradle [option...] [task...]\n\nOptions:\n  -h, --help  Shows this help message.\n", true},
		{"single hint", "see --help for more\n", false},
		{"go test", "ok  \texample.com/pkg\t0.012s\n", false},
		{"gradle", "> Task :test\n\nBUILD SUCCESSFUL in 4s\n", false},
		{"jest", "Test Suites: 2 passed, 2 total\nOptions: none\nusage: jest\n", false},
		{"pytest", "===== 12 passed in 0.31s =====\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isHelpOutput(tt.output))
		})
	}
}

func TestTestFilesGate(t *testing.T) {
	g := NewTestFilesGate()

	tests := []struct {
		name     string
		cp       Checkpoint
		severity Severity
	}{
		{"no files", Checkpoint{Phase: PhaseTests}, SeverityHigh},
		{"no test-like files", Checkpoint{Phase: PhaseTests, Generation: Generation{Written: []string{"src/Main.kt"}}}, SeverityLow},
		{"test dir", Checkpoint{Phase: PhaseTests, Generation: Generation{Written: []string{"app/src/test/kotlin/Main.kt"}}}, ""},
		{"test name", Checkpoint{Phase: PhaseTests, Generation: Generation{Written: []string{"pkg/add_test.go"}}}, ""},
		{"spec name", Checkpoint{Phase: PhaseTests, Generation: Generation{Written: []string{"web/cart.spec.ts"}}}, ""},
		{"other phase ignored", Checkpoint{Phase: PhaseStub}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Check(tt.cp)
			if tt.severity == "" {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, "test-files", got[0].Gate)
			assert.Equal(t, tt.severity, got[0].Severity)
		})
	}
}

func TestVerificationGate(t *testing.T) {
	g := NewVerificationGate()
	help := "usage: run-tests [options]\noptions:\n  --help\n"

	got := g.Check(Checkpoint{Phase: PhaseVerify, Attempt: 2, Output: help})
	require.Len(t, got, 1)
	assert.Equal(t, SeverityHigh, got[0].Severity)
	assert.Equal(t, 2, got[0].Attempt)

	assert.Empty(t, g.Check(Checkpoint{Phase: PhaseVerify, Output: "3 tests completed\n"}))
	assert.Empty(t, g.Check(Checkpoint{Phase: PhaseTests, Output: help}))
}

func TestMachine_DefaultGatesRecordViolations(t *testing.T) {
	steps := &fakeSteps{exitCodes: []int{0}, output: "Usage: make [options] [target]\nOptions:\n  -h, --help\n"}
	m := newMachine(t, steps, 3)
	m.RegisterDefaultGates()

	r, err := m.Run(Input{Spec: "s"})
	require.NoError(t, err)

	assert.Equal(t, StateDone, r.State)
	require.Len(t, r.Violations, 1)
	assert.Equal(t, "verification", r.Violations[0].Gate)
	assert.Equal(t, PhaseVerify, r.Violations[0].Phase)
	assert.Contains(t, r.Markdown(), "## Gate violations")
	assert.Contains(t, r.Markdown(), "`verification` (verify)")
}

type blockingGate struct{ phase Phase }

func (g blockingGate) Name() string { return "blocking" }

func (g blockingGate) Check(cp Checkpoint) []Violation {
	if cp.Phase != g.phase {
		return nil
	}
	return []Violation{{Gate: g.Name(), Phase: cp.Phase, Description: "not allowed", Severity: SeverityCritical}}
}

func TestMachine_CriticalViolationStopsRun(t *testing.T) {
	t.Run("after tests phase", func(t *testing.T) {
		steps := &fakeSteps{exitCodes: []int{0}}
		m := newMachine(t, steps, 3)
		m.RegisterGate(PhaseTests, blockingGate{phase: PhaseTests})

		r, err := m.Run(Input{Spec: "s"})
		require.Error(t, err)

		var stepErr *StepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, SeverityCritical, stepErr.Severity)
		assert.Contains(t, err.Error(), "blocking: not allowed")
		assert.Equal(t, StateTest, r.State)
		assert.Zero(t, steps.runs)
		assert.Len(t, r.Violations, 1)
	})

	t.Run("before done", func(t *testing.T) {
		steps := &fakeSteps{exitCodes: []int{0}}
		m := newMachine(t, steps, 3)
		m.RegisterGate(PhaseVerify, blockingGate{phase: PhaseVerify})

		r, err := m.Run(Input{Spec: "s"})
		require.Error(t, err)
		assert.Equal(t, StateAttempt, r.State)
		assert.Equal(t, 1, steps.runs)
		assert.True(t, strings.HasPrefix(r.Error, "failed to pass verify gates"))
	})
}
