package llm

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/specforge/internal/config"
	"github.com/fyrsmithlabs/specforge/internal/logging"
)

// NewFromConfig builds the configured provider and wraps it in a Client.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig, logger *logging.Logger) (*Client, error) {
	chain := cfg.ModelChain()
	if len(chain) == 0 {
		return nil, fmt.Errorf("no models configured")
	}

	var p Provider
	switch cfg.Provider {
	case config.ProviderGoogleAI:
		g, err := NewGoogleAI(ctx, cfg.APIKey.Value(), chain[0])
		if err != nil {
			return nil, err
		}
		p = g
	case config.ProviderOpenAI:
		p = NewOpenAI(cfg.APIKey.Value(), cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	return NewClient(p, Config{
		Models:            chain,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Timeout:           cfg.Timeout.Duration(),
	}, logger)
}
