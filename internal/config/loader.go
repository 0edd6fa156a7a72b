package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every specforge-specific environment variable.
	EnvPrefix = "SPECFORGE_"

	// EnvConfigFile names the optional YAML configuration file.
	EnvConfigFile = EnvPrefix + "CONFIG"
)

// wellKnownEnv maps the variable names CI workflows already export onto
// config keys.
var wellKnownEnv = map[string]string{
	"GITHUB_TOKEN":      "github.token",
	"GITHUB_REPOSITORY": "github.repository",
	"ISSUE_NUMBER":      "github.issue_number",
	"COMMENT_BODY":      "github.comment_body",
}

// listKeys hold comma separated values when set from the environment.
var listKeys = map[string]bool{
	"llm.models":    true,
	"github.labels": true,
}

// Load builds configuration from defaults, the optional YAML file named by
// SPECFORGE_CONFIG and the environment.
//
// Precedence (highest to lowest):
//  1. SPECFORGE_<SECTION>_<FIELD> variables (SPECFORGE_ORCHESTRATOR_MAX_RETRIES)
//  2. Well-known CI variables (GEMINI_API_KEY, GITHUB_TOKEN, ISSUE_NUMBER, ...)
//  3. YAML config file
//  4. Defaults
func Load() (*Config, error) {
	return LoadWithFile(os.Getenv(EnvConfigFile))
}

// LoadWithFile is Load with an explicit YAML path. An empty path skips the file.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Well-known names first so SPECFORGE_ variables can override them.
	// API keys are resolved after decoding, once the provider is known.
	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		if strings.HasPrefix(key, EnvPrefix) {
			return "", nil
		}
		mapped, ok := wellKnownEnv[key]
		if !ok || value == "" {
			return "", nil
		}
		return mapped, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Strategy: split on first underscore only (section.field_name pattern)
	//   SPECFORGE_ORCHESTRATOR_MAX_RETRIES -> orchestrator.max_retries
	//   SPECFORGE_LLM_MODELS=a,b           -> llm.models = [a b]
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		lower := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) != 2 {
			return "", nil
		}
		mapped := parts[0] + "." + parts[1]
		if listKeys[mapped] {
			return mapped, splitList(value)
		}
		return mapped, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(cfg)
	resolveProviderKey(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// providerKeyEnv lists, per provider, the conventional API key variables.
var providerKeyEnv = map[string][]string{
	ProviderGoogleAI: {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	ProviderOpenAI:   {"OPENAI_API_KEY"},
}

// resolveProviderKey picks the API key matching the configured provider
// unless SPECFORGE_LLM_API_KEY was set explicitly.
func resolveProviderKey(cfg *Config) {
	if os.Getenv(EnvPrefix+"LLM_API_KEY") != "" {
		return
	}
	for _, name := range providerKeyEnv[cfg.LLM.Provider] {
		if v := os.Getenv(name); v != "" {
			cfg.LLM.APIKey = Secret(v)
			return
		}
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// readConfigFile opens the file once and validates it through the open
// descriptor to avoid a TOCTOU race between stat and read.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigFileProperties rejects world-writable and oversized files.
// Credentials come from the environment, so world-readable files are fine.
func validateConfigFileProperties(info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", info.Name())
	}
	if info.Mode().Perm()&0o002 != 0 {
		return fmt.Errorf("insecure config file permissions: %v (world-writable)", info.Mode().Perm())
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
