package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// GoogleAI calls Gemini models through langchaingo.
type GoogleAI struct {
	model llms.Model
}

// NewGoogleAI creates a Gemini provider. defaultModel is used when a call
// does not name one.
func NewGoogleAI(ctx context.Context, apiKey, defaultModel string) (*GoogleAI, error) {
	m, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(defaultModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create googleai client: %w", err)
	}
	return &GoogleAI{model: m}, nil
}

func (g *GoogleAI) Name() string { return "googleai" }

func (g *GoogleAI) Complete(ctx context.Context, model, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g.model, prompt, llms.WithModel(model))
}
