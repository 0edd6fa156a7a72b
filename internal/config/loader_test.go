package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the credentials every binary needs.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("GITHUB_TOKEN", "gh-token")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, ProviderGoogleAI, cfg.LLM.Provider)
	assert.Equal(t, "gemini-key", cfg.LLM.APIKey.Value())
	assert.Equal(t, "gh-token", cfg.GitHub.Token.Value())
	assert.Equal(t, 3, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, 5000, cfg.Orchestrator.ErrorTailChars)
	assert.False(t, cfg.Orchestrator.FailOnExhausted)
	assert.True(t, cfg.Redaction.Enabled)
	assert.Equal(t, []string{"gemini-2.5-pro"}, cfg.LLM.Models)
	assert.Equal(t, 30*time.Minute, cfg.Runner.Timeout.Duration())
}

func TestLoad_WellKnownCIVariables(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GITHUB_REPOSITORY", "acme/widgets")
	t.Setenv("ISSUE_NUMBER", "42")
	t.Setenv("COMMENT_BODY", "/implement 7")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, "acme/widgets", cfg.GitHub.Repository)
	assert.Equal(t, 42, cfg.GitHub.IssueNumber)
	assert.Equal(t, "/implement 7", cfg.GitHub.CommentBody)
	assert.NoError(t, cfg.RequireIssue())
}

func TestLoad_PrefixedOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SPECFORGE_ORCHESTRATOR_MAX_RETRIES", "5")
	t.Setenv("SPECFORGE_ORCHESTRATOR_TEST_COMMAND", "go test ./...")
	t.Setenv("SPECFORGE_ORCHESTRATOR_FAIL_ON_EXHAUSTED", "true")
	t.Setenv("SPECFORGE_LLM_MODELS", "gemini-exp, gemini-2.5-pro")
	t.Setenv("SPECFORGE_RUNNER_TIMEOUT", "90s")
	t.Setenv("SPECFORGE_REDACTION_ENABLED", "false")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, "go test ./...", cfg.Orchestrator.TestCommand)
	assert.True(t, cfg.Orchestrator.FailOnExhausted)
	assert.Equal(t, []string{"gemini-exp", "gemini-2.5-pro"}, cfg.LLM.Models)
	assert.Equal(t, 90*time.Second, cfg.Runner.Timeout.Duration())
	assert.False(t, cfg.Redaction.Enabled)
}

func TestLoad_OpenAIProviderPicksOpenAIKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OPENAI_API_KEY", "openai-key")
	t.Setenv("SPECFORGE_LLM_PROVIDER", "openai")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, "openai-key", cfg.LLM.APIKey.Value())
}

func TestLoad_MissingCredentialsIsFatal(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GITHUB_TOKEN", "gh-token")

	_, err := LoadWithFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APIKey")
}

func TestLoad_InvalidRetryBound(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SPECFORGE_ORCHESTRATOR_MAX_RETRIES", "0")

	_, err := LoadWithFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxRetries")
}

func TestLoadWithFile_YAML(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SPECFORGE_ORCHESTRATOR_MAX_RETRIES", "4")

	path := filepath.Join(t.TempDir(), "specforge.yaml")
	content := `llm:
  models: [gemini-2.0-flash]
  fallback_model: gemini-1.5-pro
orchestrator:
  max_retries: 5
  test_command: make test
report:
  path: out/report.md
  html: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	// Environment wins over the file.
	assert.Equal(t, 4, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, "make test", cfg.Orchestrator.TestCommand)
	assert.Equal(t, "out/report.md", cfg.Report.Path)
	assert.True(t, cfg.Report.HTML)
	assert.Equal(t, []string{"gemini-2.0-flash", "gemini-1.5-pro"}, cfg.LLM.ModelChain())
}

func TestLoadWithFile_RejectsWorldWritable(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "specforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("report:\n  path: r.md\n"), 0o644))
	require.NoError(t, os.Chmod(path, 0o666))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "world-writable")
}

func TestLoadWithFile_MissingFile(t *testing.T) {
	setRequiredEnv(t)
	_, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestRequireIssue(t *testing.T) {
	cfg := Default()
	assert.EqualError(t, cfg.RequireIssue(), "GITHUB_REPOSITORY not set")

	cfg.GitHub.Repository = "acme/widgets"
	assert.EqualError(t, cfg.RequireIssue(), "ISSUE_NUMBER not set")

	cfg.GitHub.IssueNumber = 3
	assert.NoError(t, cfg.RequireIssue())
}

func TestReportPath(t *testing.T) {
	cfg := Default()
	cfg.Runner.WorkDir = filepath.Join("/", "src", "app")

	cfg.Report.Path = "out/report.md"
	assert.Equal(t, filepath.Join("/", "src", "app", "out", "report.md"), cfg.ReportPath())

	abs := filepath.Join(t.TempDir(), "report.md")
	cfg.Report.Path = abs
	assert.Equal(t, abs, cfg.ReportPath())

	cfg.Runner.WorkDir = ""
	cfg.Report.Path = "report.md"
	assert.Equal(t, "report.md", cfg.ReportPath())
}

func TestModelChain(t *testing.T) {
	tests := []struct {
		name     string
		models   []string
		fallback string
		want     []string
	}{
		{"target differs from fallback", []string{"pro"}, "flash", []string{"pro", "flash"}},
		{"target equals fallback", []string{"flash"}, "flash", []string{"flash"}},
		{"no fallback", []string{"a", "b"}, "", []string{"a", "b"}},
		{"duplicates removed", []string{"a", "a", "b"}, "a", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := LLMConfig{Models: tt.models, FallbackModel: tt.fallback}
			assert.Equal(t, tt.want, c.ModelChain())
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("ghp_supersecret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "ghp_supersecret", s.Value())
	assert.True(t, s.IsSet())

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(b))

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("2m")))
	assert.Equal(t, 2*time.Minute, d.Duration())

	require.NoError(t, d.UnmarshalText([]byte("600")))
	assert.Equal(t, 10*time.Minute, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
