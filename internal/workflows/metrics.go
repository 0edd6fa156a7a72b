package workflows

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/specforge/internal/workflows"

var (
	activityDuration     metric.Float64Histogram
	activityErrorCounter metric.Int64Counter
)

func initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error
	activityDuration, err = meter.Float64Histogram(
		"specforge.workflows.activity.duration",
		metric.WithDescription("Duration of implementation activity executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity duration: %v", err))
	}

	activityErrorCounter, err = meter.Int64Counter(
		"specforge.workflows.activity.errors",
		metric.WithDescription("Number of activity execution errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity error counter: %v", err))
	}
}

func init() {
	initMetrics()
}

// observe records the duration and outcome of one activity call.
func observe(ctx context.Context, activity string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("activity", activity))
	activityDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		activityErrorCounter.Add(ctx, 1, attrs)
	}
}
