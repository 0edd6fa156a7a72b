// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Run identifies one bot invocation for log correlation.
type Run struct {
	ID    string
	Issue int
	Mode  string
}

type runCtxKey struct{}
type attemptCtxKey struct{}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if run, ok := RunFromContext(ctx); ok {
		if run.ID != "" {
			fields = append(fields, zap.String("run.id", run.ID))
		}
		if run.Issue > 0 {
			fields = append(fields, zap.Int("issue", run.Issue))
		}
		if run.Mode != "" {
			fields = append(fields, zap.String("mode", run.Mode))
		}
	}

	if n, ok := ctx.Value(attemptCtxKey{}).(int); ok {
		fields = append(fields, zap.Int("attempt", n))
	}

	return fields
}

// WithRun attaches run identity to ctx.
func WithRun(ctx context.Context, run Run) context.Context {
	return context.WithValue(ctx, runCtxKey{}, run)
}

// RunFromContext returns the run stored by WithRun.
func RunFromContext(ctx context.Context) (Run, bool) {
	r, ok := ctx.Value(runCtxKey{}).(Run)
	return r, ok
}

// WithAttempt records the current fix attempt number.
func WithAttempt(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, attemptCtxKey{}, n)
}
