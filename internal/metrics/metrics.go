// Package metrics records run outcomes as OpenTelemetry instruments and,
// for short-lived CI jobs, pushes a final summary to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/specforge/internal/orchestrator"
)

// InstrumentationName scopes every instrument created here.
const InstrumentationName = "github.com/fyrsmithlabs/specforge/internal/metrics"

// Recorder holds the run instruments.
type Recorder struct {
	runs         metric.Int64Counter
	attempts     metric.Int64Counter
	generations  metric.Int64Counter
	filesWritten metric.Int64Counter
	rejected     metric.Int64Counter
	runDuration  metric.Float64Histogram
}

// NewRecorder creates the instruments on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error

	if r.runs, err = meter.Int64Counter(
		"specforge.runs",
		metric.WithDescription("Completed runs by mode and final state"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}
	if r.attempts, err = meter.Int64Counter(
		"specforge.test_runs",
		metric.WithDescription("Executions of the test command"),
		metric.WithUnit("{execution}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create test runs counter: %w", err)
	}
	if r.generations, err = meter.Int64Counter(
		"specforge.generations",
		metric.WithDescription("Generation steps by phase and model"),
		metric.WithUnit("{generation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create generations counter: %w", err)
	}
	if r.filesWritten, err = meter.Int64Counter(
		"specforge.files_written",
		metric.WithDescription("Files written from model responses"),
		metric.WithUnit("{file}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create files counter: %w", err)
	}
	if r.rejected, err = meter.Int64Counter(
		"specforge.files_rejected",
		metric.WithDescription("File blocks rejected by the response parser"),
		metric.WithUnit("{file}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create rejected counter: %w", err)
	}
	if r.runDuration, err = meter.Float64Histogram(
		"specforge.run.duration",
		metric.WithDescription("Wall time of a run"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create run duration histogram: %w", err)
	}
	return r, nil
}

// RecordReport adds a finished run to the instruments. A nil Recorder or
// report is ignored.
func (r *Recorder) RecordReport(ctx context.Context, mode string, report *orchestrator.Report) {
	if r == nil || report == nil {
		return
	}
	modeAttr := attribute.String("mode", mode)

	r.runs.Add(ctx, 1, metric.WithAttributes(modeAttr, attribute.String("status", report.Status())))
	for _, run := range report.Runs {
		r.attempts.Add(ctx, 1, metric.WithAttributes(
			modeAttr,
			attribute.Bool("passed", run.ExitCode == 0 && !run.TimedOut),
		))
	}
	for _, g := range report.Generations {
		attrs := metric.WithAttributes(modeAttr, attribute.String("phase", string(g.Phase)), attribute.String("model", g.Model))
		r.generations.Add(ctx, 1, attrs)
		r.filesWritten.Add(ctx, int64(len(g.Written)), attrs)
		if len(g.Rejected) > 0 {
			r.rejected.Add(ctx, int64(len(g.Rejected)), attrs)
		}
	}
	if !report.StartedAt.IsZero() && report.FinishedAt.After(report.StartedAt) {
		r.runDuration.Record(ctx, report.FinishedAt.Sub(report.StartedAt).Seconds(), metric.WithAttributes(modeAttr))
	}
}

// Summary is the set of values pushed once per run.
type Summary struct {
	Repository   string
	Mode         string
	Status       string
	Attempts     int
	MaxRetries   int
	FilesWritten int
	Duration     time.Duration
}

// SummaryFromReport condenses report into a Summary.
func SummaryFromReport(repository, mode string, report *orchestrator.Report) Summary {
	s := Summary{Repository: repository, Mode: mode}
	if report == nil {
		return s
	}
	s.Status = report.Status()
	s.Attempts = report.Attempts
	s.MaxRetries = report.MaxRetries
	for _, g := range report.Generations {
		s.FilesWritten += len(g.Written)
	}
	if report.FinishedAt.After(report.StartedAt) {
		s.Duration = report.FinishedAt.Sub(report.StartedAt)
	}
	return s
}
