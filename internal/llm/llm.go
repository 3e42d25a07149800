// Package llm provides the completion client used by the filter. Providers
// are OpenAI and Anthropic; a misconfigured provider is a startup error, not
// a per-message one, because a worker without a working model can only burn
// through redeliveries.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

// Client answers a single prompt with a single completion.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config selects and authenticates the provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
}

type client struct {
	model llms.Model
}

// NewClient builds the provider-specific model. Unknown providers and
// missing API keys fail immediately.
func NewClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm provider %q: api key not configured", cfg.Provider)
	}

	var (
		model llms.Model
		err   error
	)
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		model, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		)
	case "anthropic":
		model, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("llm provider %s: %w", cfg.Provider, err)
	}
	return &client{model: model}, nil
}

func (c *client) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	return strings.TrimSpace(out), nil
}
