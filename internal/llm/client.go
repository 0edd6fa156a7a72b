// Package llm sends prompts to a text generation API, falling back through
// an ordered list of models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/specforge/internal/logging"
)

// ErrAllModelsFailed is returned, joined with each model's error, when no
// model produced a usable response.
var ErrAllModelsFailed = errors.New("all models failed")

// ErrEmptyResponse marks a call that returned no text.
var ErrEmptyResponse = errors.New("empty response")

// Provider performs a single completion against one model.
type Provider interface {
	Name() string
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// Response is a successful generation.
type Response struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// Config configures a Client.
type Config struct {
	// Models are tried in order until one succeeds.
	Models []string
	// RequestsPerMinute paces calls across the chain. Zero disables pacing.
	RequestsPerMinute int
	// Timeout bounds each model attempt. Zero disables it.
	Timeout time.Duration
}

// Client generates text with model fallback.
type Client struct {
	provider Provider
	models   []string
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *logging.Logger
}

// NewClient returns a Client using provider for every model in cfg.Models.
func NewClient(provider Provider, cfg Config, logger *logging.Logger) (*Client, error) {
	if provider == nil {
		return nil, errors.New("provider is required")
	}
	models := dedupe(cfg.Models)
	if len(models) == 0 {
		return nil, errors.New("at least one model is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Client{
		provider: provider,
		models:   models,
		limiter:  rate.NewLimiter(limit, 1),
		timeout:  cfg.Timeout,
		logger:   logger.Named("llm"),
	}, nil
}

// Generate tries each model in order and returns the first non-empty
// response. Each attempt is independent of the ones before it.
func (c *Client) Generate(ctx context.Context, prompt string) (Response, error) {
	var errs []error
	for i, model := range c.models {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, fmt.Errorf("failed to wait for rate limiter: %w", err)
		}

		start := time.Now()
		text, err := c.complete(ctx, model, prompt)
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrEmptyResponse
		}
		if err != nil {
			c.logger.Warn(ctx, "model attempt failed",
				zap.String("provider", c.provider.Name()),
				zap.String("model", model),
				zap.Int("position", i+1),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", model, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		c.logger.Info(ctx, "generation succeeded",
			zap.String("model", model),
			zap.Int("prompt_chars", len(prompt)),
			zap.Int("response_chars", len(text)),
			zap.Duration("duration", time.Since(start)),
		)
		c.logger.Trace(ctx, "generation response", zap.String("text", text))
		return Response{Text: text, Model: model}, nil
	}

	return Response{}, fmt.Errorf("failed to generate: %w", errors.Join(append([]error{ErrAllModelsFailed}, errs...)...))
}

func (c *Client) complete(ctx context.Context, model, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.provider.Complete(ctx, model, prompt)
}

func dedupe(models []string) []string {
	seen := make(map[string]bool, len(models))
	out := make([]string, 0, len(models))
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
