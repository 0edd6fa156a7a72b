package orchestrator

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

const (
	// DefaultMaxRetries is the number of test runs before giving up.
	DefaultMaxRetries = 3
	// DefaultErrorTailChars is how much failure output a fix prompt carries.
	DefaultErrorTailChars = 5000
)

// Config controls a Machine.
type Config struct {
	MaxRetries     int
	TestCommand    string
	ErrorTailChars int
	// Now supplies timestamps. Workflows pass workflow.Now.
	Now func() time.Time
}

// TransitionFunc observes every state change.
type TransitionFunc func(t Transition)

// Machine runs the STUB, TEST, ATTEMPT(n) loop.
type Machine struct {
	cfg          Config
	steps        Steps
	prompts      Prompter
	onTransition TransitionFunc
	gates        map[Phase][]Gate
}

// NewMachine returns a Machine. Zero config values take their defaults.
func NewMachine(cfg Config, steps Steps, prompts Prompter) (*Machine, error) {
	if steps == nil {
		return nil, errors.New("steps are required")
	}
	if prompts == nil {
		return nil, errors.New("prompter is required")
	}
	if cfg.TestCommand == "" {
		return nil, errors.New("test command is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.ErrorTailChars <= 0 {
		cfg.ErrorTailChars = DefaultErrorTailChars
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Machine{
		cfg:     cfg,
		steps:   steps,
		prompts: prompts,
		gates:   make(map[Phase][]Gate),
	}, nil
}

// RegisterGate registers a gate for a phase. Gates for a generation phase
// run after its files are written; PhaseVerify gates run after a passing
// test run, before DONE.
func (m *Machine) RegisterGate(phase Phase, gate Gate) {
	m.gates[phase] = append(m.gates[phase], gate)
}

// RegisterDefaultGates registers the built-in gates.
func (m *Machine) RegisterDefaultGates() {
	m.RegisterGate(PhaseTests, NewTestFilesGate())
	m.RegisterGate(PhaseVerify, NewVerificationGate())
}

// OnTransition registers fn to be called after each state change.
func (m *Machine) OnTransition(fn TransitionFunc) {
	m.onTransition = fn
}

// Run executes the loop for in. The returned report is never nil. A
// non-nil error means the run stopped early because a step failed; the
// report then describes how far it got. Exhausting the retries is not an
// error: the report's State is FAILED.
func (m *Machine) Run(in Input) (*Report, error) {
	r := &Report{
		RunID:       in.RunID,
		Selector:    in.Selector,
		Focus:       in.Focus,
		TestCommand: m.cfg.TestCommand,
		MaxRetries:  m.cfg.MaxRetries,
		State:       StateStub,
		StartedAt:   m.cfg.Now(),
	}
	defer func() { r.FinishedAt = m.cfg.Now() }()

	// STUB
	if err := m.generate(r, PhaseStub, 0, func() (string, error) {
		return m.prompts.Stub(in.Spec, in.Focus)
	}); err != nil {
		return r, m.abort(r, err)
	}
	m.move(r, StateTest, 0)

	// TEST
	if err := m.generate(r, PhaseTests, 0, func() (string, error) {
		return m.prompts.Tests(in.Spec, in.Focus)
	}); err != nil {
		return r, m.abort(r, err)
	}
	m.move(r, StateAttempt, 1)

	// ATTEMPT(n)
	for n := 1; ; n++ {
		outcome, err := m.steps.RunTests(n, m.cfg.TestCommand)
		if err != nil {
			return r, m.abort(r, NewStepError("run test command", SeverityCritical, err, fmt.Sprintf("attempt %d", n)))
		}
		r.Attempts = n
		r.Runs = append(r.Runs, TestRun{
			Attempt:  n,
			ExitCode: outcome.ExitCode,
			TimedOut: outcome.TimedOut,
			Duration: outcome.Duration,
		})

		if outcome.ExitCode == 0 && !outcome.TimedOut {
			if err := m.checkGates(r, Checkpoint{Phase: PhaseVerify, Attempt: n, Output: outcome.Output}); err != nil {
				return r, m.abort(r, err)
			}
			r.LastError = ""
			m.move(r, StateDone, 0)
			return r, nil
		}

		tail := Tail(outcome.Output, m.cfg.ErrorTailChars)
		r.LastError = tail
		if n >= m.cfg.MaxRetries {
			m.move(r, StateFailed, 0)
			return r, nil
		}

		if err := m.generate(r, PhaseFix, n, func() (string, error) {
			return m.prompts.Fix(in.Spec, tail, in.Focus)
		}); err != nil {
			return r, m.abort(r, err)
		}
		m.move(r, StateAttempt, n+1)
	}
}

func (m *Machine) generate(r *Report, phase Phase, attempt int, build func() (string, error)) error {
	prompt, err := build()
	if err != nil {
		return NewStepError("build "+string(phase)+" prompt", SeverityCritical, err, "")
	}
	out, err := m.steps.Generate(phase, prompt)
	if err != nil {
		return NewStepError("generate "+string(phase)+" files", SeverityCritical, err, "")
	}
	gen := Generation{
		Phase:    phase,
		Attempt:  attempt,
		Model:    out.Model,
		Written:  out.Written,
		Rejected: out.Rejected,
	}
	r.Generations = append(r.Generations, gen)
	return m.checkGates(r, Checkpoint{Phase: phase, Attempt: attempt, Generation: gen})
}

// checkGates records every violation and fails on a critical one.
func (m *Machine) checkGates(r *Report, cp Checkpoint) error {
	var violations []Violation
	for _, gate := range m.gates[cp.Phase] {
		violations = append(violations, gate.Check(cp)...)
	}
	r.Violations = append(r.Violations, violations...)
	if hasCriticalViolation(violations) {
		return NewStepError("pass "+string(cp.Phase)+" gates", SeverityCritical, errors.New(describeViolations(violations)), "")
	}
	return nil
}

func (m *Machine) move(r *Report, to State, attempt int) {
	t := Transition{
		From:        r.State,
		FromAttempt: r.stateAttempt,
		To:          to,
		ToAttempt:   attempt,
		At:          m.cfg.Now(),
	}
	r.State = to
	r.stateAttempt = attempt
	r.Transitions = append(r.Transitions, t)
	if m.onTransition != nil {
		m.onTransition(t)
	}
}

func (m *Machine) abort(r *Report, err error) error {
	r.Error = err.Error()
	return err
}

// Tail returns the last n characters of s. Character means rune, so a
// multi-byte sequence is never split.
func Tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	cut := len(s)
	for i := 0; i < n; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:cut])
		cut -= size
	}
	return s[cut:]
}
