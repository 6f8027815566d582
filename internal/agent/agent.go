package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/FeelPulse/skyoracle/internal/config"
	"github.com/FeelPulse/skyoracle/internal/usage"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

// Provider submits a rendered AI request and returns the raw model text
type Provider interface {
	Submit(ctx context.Context, req types.AIRequest) (string, error)
	Name() string
	Model() string
}

// NewProvider creates the provider selected by configuration, wrapped in a
// failover provider when a fallback is configured. Token usage is reported to
// tracker, which may be nil.
func NewProvider(ctx context.Context, cfg *config.Config, tracker *usage.Tracker) (Provider, error) {
	primary, err := newSingleProvider(ctx, cfg, cfg.AI.Provider, cfg.AI.Model, tracker)
	if err != nil {
		return nil, err
	}
	if cfg.AI.FallbackProvider == "" {
		return primary, nil
	}

	fallback, err := newSingleProvider(ctx, cfg, cfg.AI.FallbackProvider, cfg.AI.FallbackModel, tracker)
	if err != nil {
		return nil, fmt.Errorf("fallback provider: %w", err)
	}
	return NewFailoverProvider(primary, fallback), nil
}

func newSingleProvider(ctx context.Context, cfg *config.Config, provider, model string, tracker *usage.Tracker) (Provider, error) {
	switch strings.ToLower(provider) {
	case "gemini", "":
		if cfg.AI.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini API key not configured")
		}
		return NewGeminiProvider(ctx, GeminiOptions{
			APIKey: cfg.AI.GeminiAPIKey,
			Model:  model,
			Usage:  tracker,
		})
	case "openai":
		if cfg.AI.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		return NewOpenAIProvider(OpenAIOptions{
			APIKey:  cfg.AI.OpenAIAPIKey,
			BaseURL: cfg.AI.OpenAIBaseURL,
			Model:   model,
			Usage:   tracker,
		}), nil
	case "anthropic":
		if cfg.AI.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		return NewAnthropicProvider(AnthropicOptions{
			APIKey: cfg.AI.AnthropicAPIKey,
			Model:  model,
			Usage:  tracker,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
