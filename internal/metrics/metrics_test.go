package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/specforge/internal/fileset"
	"github.com/fyrsmithlabs/specforge/internal/orchestrator"
	"github.com/fyrsmithlabs/specforge/internal/telemetry"
)

func failedReport() *orchestrator.Report {
	start := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	return &orchestrator.Report{
		RunID:      "run-1",
		State:      orchestrator.StateFailed,
		Attempts:   3,
		MaxRetries: 3,
		Generations: []orchestrator.Generation{
			{Phase: orchestrator.PhaseStub, Model: "gemini-2.5-pro", Written: []string{"a.go", "b.go"}},
			{Phase: orchestrator.PhaseTests, Model: "gemini-2.5-pro", Written: []string{"a_test.go"}},
			{Phase: orchestrator.PhaseFix, Attempt: 1, Model: "gemini-2.5-flash", Written: []string{"a.go"},
				Rejected: []fileset.Rejection{{Path: "/etc/passwd", Reason: "absolute path"}}},
			{Phase: orchestrator.PhaseFix, Attempt: 2, Model: "gemini-2.5-pro", Written: []string{"b.go"}},
		},
		Runs: []orchestrator.TestRun{
			{Attempt: 1, ExitCode: 1},
			{Attempt: 2, ExitCode: 1},
			{Attempt: 3, ExitCode: 1},
		},
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
	}
}

func TestRecorder_RecordReport(t *testing.T) {
	ctx := context.Background()
	tt := telemetry.NewTestTelemetry()
	rec, err := NewRecorder(tt.Meter(InstrumentationName))
	require.NoError(t, err)

	rec.RecordReport(ctx, "implement", failedReport())

	tests := []struct {
		name string
		want int64
	}{
		{"specforge.runs", 1},
		{"specforge.test_runs", 3},
		{"specforge.generations", 4},
		{"specforge.files_written", 5},
		{"specforge.files_rejected", 1},
	}
	for _, tc := range tests {
		got, ok := tt.CounterValue(ctx, tc.name)
		require.True(t, ok, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var rec *Recorder
	assert.NotPanics(t, func() {
		rec.RecordReport(context.Background(), "implement", failedReport())
	})
}

func TestSummaryFromReport(t *testing.T) {
	s := SummaryFromReport("acme/widgets", "implement", failedReport())

	assert.Equal(t, "acme/widgets", s.Repository)
	assert.Equal(t, "FAILED", s.Status)
	assert.Equal(t, 3, s.Attempts)
	assert.Equal(t, 3, s.MaxRetries)
	assert.Equal(t, 5, s.FilesWritten)
	assert.Equal(t, 90*time.Second, s.Duration)

	empty := SummaryFromReport("acme/widgets", "spec", nil)
	assert.Equal(t, "spec", empty.Mode)
	assert.Zero(t, empty.Attempts)
}

type gatewayRecorder struct {
	mu     sync.Mutex
	method string
	path   string
	body   string
}

func newGateway(t *testing.T, status int) (*httptest.Server, *gatewayRecorder) {
	t.Helper()
	rec := &gatewayRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.body = string(body)
		rec.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestPusher_Push(t *testing.T) {
	srv, rec := newGateway(t, http.StatusOK)
	p := NewPusher(srv.URL, "specforge-ci", nil)
	require.True(t, p.Enabled())

	err := p.Push(context.Background(), SummaryFromReport("acme/widgets", "implement", failedReport()))
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, http.MethodPut, rec.method)
	assert.True(t, strings.HasPrefix(rec.path, "/metrics/job/specforge-ci/repository"), rec.path)
	assert.Contains(t, rec.body, "specforge_run_attempts")
	assert.Contains(t, rec.body, "specforge_run_success")
}

func TestPusher_GatewayError(t *testing.T) {
	srv, _ := newGateway(t, http.StatusInternalServerError)
	p := NewPusher(srv.URL, "", nil)

	err := p.Push(context.Background(), Summary{Mode: "implement", Status: "SUCCESS"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to push run metrics")
}

func TestPusher_DisabledIsNoop(t *testing.T) {
	p := NewPusher("", "specforge", nil)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Push(context.Background(), Summary{}))

	var nilPusher *Pusher
	assert.NoError(t, nilPusher.Push(context.Background(), Summary{}))
}
