package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/specforge/internal/bot"
)

func execute(t *testing.T, fn runFunc, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(fn)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_DispatchesMode(t *testing.T) {
	var got bot.Mode
	_, err := execute(t, func(_ context.Context, m bot.Mode) error {
		got = m
		return nil
	}, "implement-subtask")

	require.NoError(t, err)
	assert.Equal(t, bot.ModeImplementSubtask, got)
}

func TestRootCmd_RejectsBadArgs(t *testing.T) {
	called := false
	fn := func(context.Context, bot.Mode) error {
		called = true
		return nil
	}

	_, err := execute(t, fn)
	assert.Error(t, err)

	_, err = execute(t, fn, "deploy")
	assert.Error(t, err)

	_, err = execute(t, fn, "spec", "plan")
	assert.Error(t, err)

	assert.False(t, called)
}

func TestRootCmd_ReportsRunError(t *testing.T) {
	out, err := execute(t, func(context.Context, bot.Mode) error {
		return bot.ErrRetriesExhausted
	}, "implement")

	assert.ErrorIs(t, err, bot.ErrRetriesExhausted)
	assert.Contains(t, out, "error: tests still failing after all retries")
}

func TestRun_MissingConfigurationIsFatal(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("SPECFORGE_LLM_API_KEY", "")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("SPECFORGE_CONFIG", "")

	err := run(context.Background(), bot.ModeSpec)
	require.Error(t, err)
	assert.False(t, errors.Is(err, bot.ErrRetriesExhausted))
}

func TestRun_MissingIssueIsFatal(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("GITHUB_TOKEN", "token")
	t.Setenv("GITHUB_REPOSITORY", "acme/widgets")
	t.Setenv("ISSUE_NUMBER", "")
	t.Setenv("SPECFORGE_CONFIG", "")

	err := run(context.Background(), bot.ModeSpec)
	assert.EqualError(t, err, "ISSUE_NUMBER not set")
}
