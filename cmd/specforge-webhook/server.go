package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/specforge/internal/bot"
	"github.com/fyrsmithlabs/specforge/internal/config"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/workflows"
)

const maxPayloadBytes = 1 << 20

var validNameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// WorkflowStarter is the part of client.Client the server uses.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// ServerConfig holds webhook server settings.
type ServerConfig struct {
	Secret     config.Secret
	Repository string // owner/name served by the worker
	TaskQueue  string

	MaxRetries     int
	TestCommand    string
	ErrorTailChars int
	// TestTimeout is the worker runner's test command timeout.
	TestTimeout time.Duration
}

// Server receives GitHub webhooks.
type Server struct {
	starter WorkflowStarter
	cfg     ServerConfig
	logger  *logging.Logger

	mu           sync.Mutex
	rateLimiters map[string]*rate.Limiter
	lastCleanup  time.Time
	now          func() time.Time
}

// NewServer creates a Server starting workflows through starter.
func NewServer(starter WorkflowStarter, cfg ServerConfig, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		starter: starter,
		cfg:     cfg,
		logger:  logger.Named("webhook"),
		now:     time.Now,
	}
}

// Routes returns the server's HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/health", handleHealth)
	return mux
}

// getRateLimiter returns the limiter for ip: 1 request per second with a
// burst of 10. Limiters are dropped hourly.
func (s *Server) getRateLimiter(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rateLimiters == nil || s.now().Sub(s.lastCleanup) > time.Hour {
		s.rateLimiters = make(map[string]*rate.Limiter)
		s.lastCleanup = s.now()
	}

	limiter, ok := s.rateLimiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(1), 10)
		s.rateLimiters[ip] = limiter
	}
	return limiter
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := getClientIP(r)
	if !s.getRateLimiter(clientIP).Allow() {
		s.logger.Warn(ctx, "rate limit exceeded", zap.String("ip", clientIP))
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadBytes)

	payload, err := github.ValidatePayload(r, []byte(s.cfg.Secret.Value()))
	if err != nil {
		s.logger.Warn(ctx, "invalid webhook signature", zap.Error(err))
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		s.logger.Warn(ctx, "failed to parse webhook", zap.Error(err))
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	status := "ignored"
	switch e := event.(type) {
	case *github.IssueCommentEvent:
		started, err := s.handleIssueComment(ctx, e)
		if err != nil {
			s.logger.Error(ctx, "error handling issue comment", zap.Error(err))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		if started != "" {
			status = "started"
		}
	case *github.PingEvent:
		status = "pong"
	default:
		s.logger.Debug(ctx, "ignoring event type", zap.String("type", fmt.Sprintf("%T", event)))
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// validateCommentEvent rejects events whose identifiers could not have come
// from GitHub.
func validateCommentEvent(e *github.IssueCommentEvent) error {
	if e.GetIssue().GetNumber() <= 0 {
		return fmt.Errorf("invalid issue number")
	}
	if e.GetComment().GetID() <= 0 {
		return fmt.Errorf("invalid comment id")
	}
	if !validNameRegex.MatchString(e.GetRepo().GetOwner().GetLogin()) {
		return fmt.Errorf("invalid repository owner format")
	}
	if !validNameRegex.MatchString(e.GetRepo().GetName()) {
		return fmt.Errorf("invalid repository name format")
	}
	return nil
}

// handleIssueComment starts a workflow for a new /implement comment and
// returns its workflow ID, or "" when the comment is not a trigger.
func (s *Server) handleIssueComment(ctx context.Context, e *github.IssueCommentEvent) (string, error) {
	if e.GetAction() != "created" {
		s.logger.Debug(ctx, "ignoring comment action", zap.String("action", e.GetAction()))
		return "", nil
	}
	body := e.GetComment().GetBody()
	selector, triggered := bot.ParseTrigger(body)
	if !triggered {
		return "", nil
	}
	if e.GetComment().GetUser().GetType() == "Bot" {
		s.logger.Debug(ctx, "ignoring comment from bot", zap.String("user", e.GetComment().GetUser().GetLogin()))
		return "", nil
	}
	if err := validateCommentEvent(e); err != nil {
		s.logger.Warn(ctx, "invalid comment event data", zap.Error(err))
		return "", fmt.Errorf("invalid comment event: %w", err)
	}

	owner := e.GetRepo().GetOwner().GetLogin()
	name := e.GetRepo().GetName()
	repository := owner + "/" + name
	if !strings.EqualFold(repository, s.cfg.Repository) {
		s.logger.Warn(ctx, "ignoring comment for another repository", zap.String("repository", repository))
		return "", nil
	}

	issue := e.GetIssue().GetNumber()
	hasSelector := selector != ""
	mode := bot.ModeImplement
	if hasSelector {
		mode = bot.ModeImplementSubtask
	}

	ctx = logging.WithRun(ctx, logging.Run{Issue: issue, Mode: string(mode)})
	s.logger.Info(ctx, "processing implement comment",
		zap.String("repository", repository),
		zap.Int64("comment_id", e.GetComment().GetID()),
	)

	input := workflows.ImplementationInput{
		Repository:      s.cfg.Repository,
		IssueNumber:     issue,
		CommentBody:     body,
		RequireSelector: hasSelector,
		MaxRetries:      s.cfg.MaxRetries,
		TestCommand:     s.cfg.TestCommand,
		ErrorTailChars:  s.cfg.ErrorTailChars,
		TestTimeout:     s.cfg.TestTimeout,
	}

	// One workflow per comment; GitHub redeliveries reuse the ID.
	options := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("specforge-%s-%s-issue-%d-comment-%d", owner, name, issue, e.GetComment().GetID()),
		TaskQueue: s.cfg.TaskQueue,
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	we, err := s.starter.ExecuteWorkflow(startCtx, options, workflows.ImplementationWorkflow, input)
	if err != nil {
		return "", fmt.Errorf("failed to start workflow: %w", err)
	}

	s.logger.Info(ctx, "workflow started",
		zap.String("workflow_id", we.GetID()),
		zap.String("run_id", we.GetRunID()),
	)
	return we.GetID(), nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
