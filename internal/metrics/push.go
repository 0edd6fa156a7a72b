package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/logging"
)

// Pusher sends run summaries to a Pushgateway. A Pusher with an empty URL
// does nothing.
type Pusher struct {
	url    string
	job    string
	logger *logging.Logger
}

// NewPusher returns a Pusher for the gateway at url under job.
func NewPusher(url, job string, logger *logging.Logger) *Pusher {
	if job == "" {
		job = "specforge"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pusher{url: url, job: job, logger: logger}
}

// Enabled reports whether a gateway is configured.
func (p *Pusher) Enabled() bool {
	return p != nil && p.url != ""
}

// Push replaces the metrics of this job and repository grouping with s.
func (p *Pusher) Push(ctx context.Context, s Summary) error {
	if !p.Enabled() {
		return nil
	}

	labels := prometheus.Labels{"mode": s.Mode, "status": s.Status}
	attempts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "specforge_run_attempts",
		Help:        "Test command executions in the last run.",
		ConstLabels: labels,
	})
	maxRetries := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "specforge_run_max_retries",
		Help:        "Configured retry bound of the last run.",
		ConstLabels: labels,
	})
	success := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "specforge_run_success",
		Help:        "1 when the last run ended with passing tests.",
		ConstLabels: labels,
	})
	files := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "specforge_run_files_written",
		Help:        "Files written during the last run.",
		ConstLabels: labels,
	})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "specforge_run_duration_seconds",
		Help:        "Wall time of the last run.",
		ConstLabels: labels,
	})
	completed := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "specforge_run_last_completion_timestamp_seconds",
		Help: "Unix time the last run finished.",
	})

	attempts.Set(float64(s.Attempts))
	maxRetries.Set(float64(s.MaxRetries))
	if s.Status == "SUCCESS" {
		success.Set(1)
	}
	files.Set(float64(s.FilesWritten))
	duration.Set(s.Duration.Seconds())
	completed.SetToCurrentTime()

	pusher := push.New(p.url, p.job).
		Collector(attempts).
		Collector(maxRetries).
		Collector(success).
		Collector(files).
		Collector(duration).
		Collector(completed)
	if s.Repository != "" {
		pusher = pusher.Grouping("repository", s.Repository)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push run metrics: %w", err)
	}
	p.logger.Debug(ctx, "pushed run metrics", zap.String("job", p.job), zap.String("status", s.Status))
	return nil
}
