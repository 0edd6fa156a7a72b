package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/logging"
)

// RetryConfig configures retries of GitHub API calls.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// Default: 3
	MaxRetries int

	// InitialBackoff is the first wait. Default: 1 second
	InitialBackoff time.Duration

	// MaxBackoff caps every wait, including rate-limit waits.
	// Default: 30 seconds
	MaxBackoff time.Duration

	// BackoffMultiplier grows the wait between attempts. Default: 2
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the retry settings used when none are given.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	return c
}

// retry calls op until it succeeds, fails with a non-retryable error, or
// the retries run out.
func retry(ctx context.Context, cfg RetryConfig, logger *logging.Logger, name string, op func() (*github.Response, error)) (*github.Response, error) {
	cfg = cfg.withDefaults()
	backoff := cfg.InitialBackoff
	start := time.Now()

	var lastErr error
	var lastResp *github.Response
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		resp, err := op()
		if err == nil {
			if attempt > 0 {
				logger.Info(ctx, "github call recovered after retries",
					zap.String("operation", name),
					zap.Int("retries", attempt),
					zap.Duration("elapsed", time.Since(start)),
				)
			}
			return resp, nil
		}
		lastErr, lastResp = err, resp

		if !isRetryable(err, resp) {
			return resp, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		wait := backoff
		if isRateLimited(err, resp) {
			wait = rateLimitBackoff(resp, cfg.MaxBackoff)
		}
		logger.Warn(ctx, "retrying github call",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Int("status_code", statusCode(resp)),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-timer.C:
		}
		backoff = min(time.Duration(float64(backoff)*cfg.BackoffMultiplier), cfg.MaxBackoff)
	}

	return lastResp, fmt.Errorf("%s failed after %d retries: %w", name, cfg.MaxRetries, lastErr)
}

// isRetryable reports whether a failed call may succeed if repeated.
func isRetryable(err error, resp *github.Response) bool {
	if err == nil {
		return false
	}
	if isRateLimited(err, resp) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code := statusCode(resp)
	if code == 0 {
		// Transport failure before a response arrived.
		return true
	}
	return code >= 500 && code < 600
}

// isRateLimited reports primary and secondary rate limit rejections.
func isRateLimited(err error, resp *github.Response) bool {
	var rle *github.RateLimitError
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &rle) || errors.As(err, &abuse) {
		return true
	}
	switch statusCode(resp) {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Rate.Limit > 0 && resp.Rate.Remaining == 0
	}
	return false
}

// rateLimitBackoff waits until the advertised reset, capped at ceiling.
func rateLimitBackoff(resp *github.Response, ceiling time.Duration) time.Duration {
	if resp == nil || resp.Rate.Reset.IsZero() {
		return ceiling
	}
	wait := time.Until(resp.Rate.Reset.Time) + time.Second
	if wait < time.Second {
		wait = time.Second
	}
	if wait > ceiling {
		wait = ceiling
	}
	return wait
}

func statusCode(resp *github.Response) int {
	if resp != nil && resp.Response != nil {
		return resp.Response.StatusCode
	}
	return 0
}
