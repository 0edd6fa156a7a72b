package orchestrator

import (
	"fmt"
)

// Severity classifies how a failed step affects the run.
type Severity string

const (
	// SeverityCritical stops the run.
	SeverityCritical Severity = "critical"
	// SeverityHigh is recorded in the report; the run continues.
	SeverityHigh Severity = "high"
	// SeverityLow is logged as a warning only.
	SeverityLow Severity = "low"
)

// StepError is a failure of one named operation.
type StepError struct {
	Operation string
	Severity  Severity
	Err       error
	Context   string
}

func (e *StepError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("failed to %s: %v (%s)", e.Operation, e.Err, e.Context)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// NewStepError creates a StepError.
func NewStepError(operation string, severity Severity, err error, context string) *StepError {
	return &StepError{
		Operation: operation,
		Severity:  severity,
		Err:       err,
		Context:   context,
	}
}
