// Package orchestrator drives generated code toward a passing test command.
//
// A run moves through a fixed set of states:
//
//	STUB ──► TEST ──► ATTEMPT(1) ──► ATTEMPT(2) ──► … ──► ATTEMPT(max)
//	                      │               │                    │
//	                      ▼               ▼                    ▼
//	                    DONE            DONE             DONE / FAILED
//
// STUB and TEST each generate files once. Every ATTEMPT runs the test
// command; a zero exit ends the run in DONE, a nonzero exit either asks for
// a fix (feeding back the tail of the failure output) or, on the last
// attempt, ends the run in FAILED.
//
// Gates registered per phase inspect each generation and the passing test
// run. Their violations are recorded in the report; a critical one stops
// the run.
//
// The Machine performs no I/O itself. Generation and test execution are
// supplied through the Steps interface, so the same loop runs in-process
// from the CLI and inside a Temporal workflow.
package orchestrator
