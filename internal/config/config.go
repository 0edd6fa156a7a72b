// Package config provides configuration loading for specforge.
//
// Configuration is built once at process start (defaults, optional YAML file,
// environment) and passed by parameter to every component. Nothing reads the
// environment after Load returns.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Provider names accepted in LLMConfig.Provider.
const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
)

// Config holds the complete specforge configuration.
type Config struct {
	LLM          LLMConfig          `koanf:"llm"`
	GitHub       GitHubConfig       `koanf:"github"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Runner       RunnerConfig       `koanf:"runner"`
	Report       ReportConfig       `koanf:"report"`
	Redaction    RedactionConfig    `koanf:"redaction"`
	Logging      LoggingConfig      `koanf:"logging"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	Metrics      MetricsConfig      `koanf:"metrics"`
	Temporal     TemporalConfig     `koanf:"temporal"`
	Webhook      WebhookConfig      `koanf:"webhook"`
}

// LLMConfig configures the generation client.
type LLMConfig struct {
	Provider string `koanf:"provider" validate:"oneof=googleai openai"`
	APIKey   Secret `koanf:"api_key" validate:"required"`
	// Models are tried in order until one succeeds.
	Models []string `koanf:"models" validate:"dive,required"`
	// FallbackModel is the designated stable model appended to Models
	// when it is not already listed.
	FallbackModel     string   `koanf:"fallback_model"`
	BaseURL           string   `koanf:"base_url" validate:"omitempty,url"`
	RequestsPerMinute int      `koanf:"requests_per_minute" validate:"gte=0"`
	Timeout           Duration `koanf:"timeout"`
}

// GitHubConfig identifies the repository and the triggering issue.
type GitHubConfig struct {
	Token       Secret   `koanf:"token" validate:"required"`
	Repository  string   `koanf:"repository"`
	IssueNumber int      `koanf:"issue_number" validate:"gte=0"`
	CommentBody string   `koanf:"comment_body"`
	BaseURL     string   `koanf:"base_url" validate:"omitempty,url"`
	Labels      []string `koanf:"labels"`
}

// OrchestratorConfig configures the fix-retry loop.
type OrchestratorConfig struct {
	MaxRetries      int    `koanf:"max_retries" validate:"min=1,max=10"`
	TestCommand     string `koanf:"test_command"`
	ErrorTailChars  int    `koanf:"error_tail_chars" validate:"gt=0"`
	MaxFileBytes    int    `koanf:"max_file_bytes" validate:"gt=0"`
	FailOnExhausted bool   `koanf:"fail_on_exhausted"`
}

// RunnerConfig configures the command runner.
type RunnerConfig struct {
	WorkDir string `koanf:"work_dir"`
	Shell   string `koanf:"shell"`
	// Timeout bounds a single test command. Zero disables the bound.
	Timeout Duration `koanf:"timeout"`
}

// ReportConfig controls the persisted run report.
type ReportConfig struct {
	Path string `koanf:"path" validate:"required"`
	HTML bool   `koanf:"html"`
}

// RedactionConfig controls scrubbing of test output.
type RedactionConfig struct {
	Enabled bool `koanf:"enabled"`
}

// LoggingConfig holds the subset of logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
	Insecure    bool   `koanf:"insecure"`
}

// MetricsConfig holds Prometheus Pushgateway settings.
type MetricsConfig struct {
	PushgatewayURL string `koanf:"pushgateway_url" validate:"omitempty,url"`
	Job            string `koanf:"job"`
}

// TemporalConfig holds Temporal connection settings for the worker and webhook.
type TemporalConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// WebhookConfig holds webhook server settings.
type WebhookConfig struct {
	Port   string `koanf:"port"`
	Secret Secret `koanf:"secret"`
}

// Default returns a configuration with every optional field populated.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          ProviderGoogleAI,
			FallbackModel:     "gemini-2.5-flash",
			RequestsPerMinute: 15,
			Timeout:           Duration(5 * time.Minute),
		},
		Orchestrator: OrchestratorConfig{
			MaxRetries:     3,
			TestCommand:    "./gradlew test",
			ErrorTailChars: 5000,
			MaxFileBytes:   1 << 20,
		},
		Runner: RunnerConfig{
			WorkDir: ".",
			Shell:   "sh",
			Timeout: Duration(30 * time.Minute),
		},
		Report: ReportConfig{
			Path: "specforge-report.md",
		},
		Redaction: RedactionConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			ServiceName: "specforge",
			Insecure:    true,
		},
		Metrics: MetricsConfig{
			Job: "specforge",
		},
		Temporal: TemporalConfig{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "specforge-implementation",
		},
		Webhook: WebhookConfig{
			Port: "3000",
		},
	}
}

// applyDefaults fills list fields, which cannot be seeded before decoding
// without leaking default elements into shorter user lists.
func applyDefaults(cfg *Config) {
	if len(cfg.LLM.Models) == 0 {
		cfg.LLM.Models = []string{"gemini-2.5-pro"}
	}
	if len(cfg.GitHub.Labels) == 0 {
		cfg.GitHub.Labels = []string{"specforge"}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks settings that every binary needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid configuration: %s fails %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RequireIssue checks the settings the CLI needs to act on a single issue.
func (c *Config) RequireIssue() error {
	if c.GitHub.Repository == "" {
		return errors.New("GITHUB_REPOSITORY not set")
	}
	if c.GitHub.IssueNumber <= 0 {
		return errors.New("ISSUE_NUMBER not set")
	}
	return nil
}

// ReportPath returns the report path. A relative path is resolved against
// the runner's working directory, where the test command runs.
func (c *Config) ReportPath() string {
	if filepath.IsAbs(c.Report.Path) || c.Runner.WorkDir == "" {
		return c.Report.Path
	}
	return filepath.Join(c.Runner.WorkDir, c.Report.Path)
}

// ModelChain returns the ordered, de-duplicated list of models to try.
func (c LLMConfig) ModelChain() []string {
	seen := make(map[string]bool, len(c.Models)+1)
	chain := make([]string, 0, len(c.Models)+1)
	for _, m := range append(append([]string{}, c.Models...), c.FallbackModel) {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		chain = append(chain, m)
	}
	return chain
}
