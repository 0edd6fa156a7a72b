package workflows

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/specforge/internal/bot"
	"github.com/fyrsmithlabs/specforge/internal/llm"
)

// Application error types surfaced to Temporal.
const (
	ErrTypeInvalidInput       = "InvalidInput"
	ErrTypeGenerationFailed   = "GenerationFailed"
	ErrTypeRepositoryMismatch = "RepositoryMismatch"
)

// nonRetryable marks errors that a Temporal retry cannot fix. Everything
// else is returned as is and left to the activity retry policy.
//
// Severity follows the orchestrator's rules:
//   - critical errors fail the activity (and, for Prepare or Publish, the workflow)
//   - high severity errors are recorded in ImplementationResult.Errors
//   - low severity errors are logged by the activity and dropped
func nonRetryable(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bot.ErrSelectorRequired):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	case errors.Is(err, llm.ErrAllModelsFailed):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeGenerationFailed, err)
	default:
		return err
	}
}
