// Package bot implements the specforge operating modes.
//
// Each mode reads an issue (and its comments) from the tracker, asks the
// generation model for text, and writes the result back: a specification
// comment, a plan comment, new sub-issues, or source files driven through
// the fix-retry loop in package orchestrator.
//
// # Modes
//
//	spec               draft a specification from the issue and post it
//	plan               decompose the epic into tasks and post the plan
//	create-issues      open one issue per planned task
//	implement          generate code and tests until the test command passes
//	implement-subtask  as implement, narrowed to the task named by /implement <n>
package bot
