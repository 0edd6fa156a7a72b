package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/fyrsmithlabs/specforge/internal/bot"
	"github.com/fyrsmithlabs/specforge/internal/config"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/plan"
	"github.com/fyrsmithlabs/specforge/internal/workflows"
)

const testSecret = "hook-secret"

func newTestServer(starter WorkflowStarter) *Server {
	return NewServer(starter, ServerConfig{
		Secret:         config.Secret(testSecret),
		Repository:     "acme/widgets",
		TaskQueue:      "specforge-implementation",
		MaxRetries:     3,
		TestCommand:    "go test ./...",
		ErrorTailChars: 5000,
		TestTimeout:    10 * time.Minute,
	}, logging.NewTestLogger().Logger)
}

func commentPayload(t *testing.T, action, body, userType, repo string) []byte {
	t.Helper()
	owner, name := "acme", repo
	payload := map[string]any{
		"action": action,
		"issue":  map[string]any{"number": 42},
		"comment": map[string]any{
			"id":   int64(9001),
			"body": body,
			"user": map[string]any{"login": "octocat", "type": userType},
		},
		"repository": map[string]any{
			"name":      name,
			"full_name": owner + "/" + name,
			"owner":     map[string]any{"login": owner},
		},
	}
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return b
}

func signedRequest(event string, payload []byte, secret string) *http.Request {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	req.RemoteAddr = "192.0.2.10:5555"
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["status"]
}

func TestWebhook_StartsSubtaskWorkflow(t *testing.T) {
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("specforge-acme-widgets-issue-42-comment-9001")
	run.On("GetRunID").Return("run-1")

	var (
		gotOptions client.StartWorkflowOptions
		gotInput   workflows.ImplementationInput
	)
	starter := &mocks.Client{}
	starter.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotOptions = args.Get(1).(client.StartWorkflowOptions)
			gotInput = args.Get(3).(workflows.ImplementationInput)
		}).
		Return(run, nil).Once()

	s := newTestServer(starter)
	payload := commentPayload(t, "created", "Looks good.\n/implement 2", "User", "widgets")
	rec := serve(s, signedRequest("issue_comment", payload, testSecret))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "started", decodeStatus(t, rec))
	starter.AssertExpectations(t)

	assert.Equal(t, "specforge-acme-widgets-issue-42-comment-9001", gotOptions.ID)
	assert.Equal(t, "specforge-implementation", gotOptions.TaskQueue)
	assert.Equal(t, "acme/widgets", gotInput.Repository)
	assert.Equal(t, 42, gotInput.IssueNumber)
	assert.Equal(t, "Looks good.\n/implement 2", gotInput.CommentBody)
	assert.True(t, gotInput.RequireSelector)
	assert.Equal(t, 3, gotInput.MaxRetries)
	assert.Equal(t, "go test ./...", gotInput.TestCommand)
	assert.Equal(t, 10*time.Minute, gotInput.TestTimeout)
	assert.Zero(t, gotInput.StepTimeout)
}

func TestWebhook_PlainImplementDoesNotRequireSelector(t *testing.T) {
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("wf")
	run.On("GetRunID").Return("run")

	var gotInput workflows.ImplementationInput
	starter := &mocks.Client{}
	starter.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotInput = args.Get(3).(workflows.ImplementationInput)
		}).
		Return(run, nil).Once()

	s := newTestServer(starter)
	rec := serve(s, signedRequest("issue_comment", commentPayload(t, "created", "/implement", "User", "widgets"), testSecret))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, gotInput.RequireSelector)
}

func TestWebhook_IgnoredComments(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		body     string
		userType string
		repo     string
	}{
		{"edited comment", "edited", "/implement 1", "User", "widgets"},
		{"no trigger", "created", "looks good", "User", "widgets"},
		{"bot author", "created", "/implement 1", "Bot", "widgets"},
		{"other repository", "created", "/implement 1", "User", "gadgets"},
		{"mid-sentence mention", "created", "you can comment /implement 2 later", "User", "widgets"},
		{"own plan comment", "created", renderedPlan(t), "User", "widgets"},
		{"own summary comment", "created", bot.SummaryMarker + "\n/implement 1", "User", "widgets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starter := &mocks.Client{}
			s := newTestServer(starter)

			payload := commentPayload(t, tt.action, tt.body, tt.userType, tt.repo)
			rec := serve(s, signedRequest("issue_comment", payload, testSecret))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "ignored", decodeStatus(t, rec))
			starter.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func renderedPlan(t *testing.T) string {
	t.Helper()
	body, err := plan.Render(&plan.Plan{Tasks: []plan.Task{{Title: "Parser"}, {Title: "Writer"}}})
	require.NoError(t, err)
	return body
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	starter := &mocks.Client{}
	s := newTestServer(starter)

	payload := commentPayload(t, "created", "/implement 1", "User", "widgets")
	rec := serve(s, signedRequest("issue_comment", payload, "wrong-secret"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	starter.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhook_StartFailureIsServerError(t *testing.T) {
	starter := &mocks.Client{}
	starter.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError).Once()

	s := newTestServer(starter)
	rec := serve(s, signedRequest("issue_comment", commentPayload(t, "created", "/implement 1", "User", "widgets"), testSecret))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhook_Ping(t *testing.T) {
	s := newTestServer(&mocks.Client{})
	rec := serve(s, signedRequest("ping", []byte(`{"zen":"Keep it logically awesome."}`), testSecret))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", decodeStatus(t, rec))
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	s := newTestServer(&mocks.Client{})
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebhook_RateLimitsPerIP(t *testing.T) {
	s := newTestServer(&mocks.Client{})
	payload := []byte(`{"zen":"hi"}`)

	codes := map[int]int{}
	for i := 0; i < 15; i++ {
		rec := serve(s, signedRequest("ping", payload, testSecret))
		codes[rec.Code]++
	}
	assert.Equal(t, 10, codes[http.StatusOK])
	assert.Equal(t, 5, codes[http.StatusTooManyRequests])

	other := signedRequest("ping", payload, testSecret)
	other.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	assert.Equal(t, http.StatusOK, serve(s, other).Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(&mocks.Client{})
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeStatus(t, rec))
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	assert.Equal(t, "203.0.113.5", getClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.1")
	assert.Equal(t, "198.51.100.1", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "192.0.2.1, 10.0.0.2")
	assert.Equal(t, "192.0.2.1", getClientIP(req))
}
