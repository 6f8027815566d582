package agent

import (
	"context"
	"fmt"

	"github.com/FeelPulse/skyoracle/internal/logger"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

// FailoverProvider wraps two providers and falls back to the second when the
// first fails with an error another provider could plausibly avoid
type FailoverProvider struct {
	primary  Provider
	fallback Provider
	log      *logger.Logger
}

// NewFailoverProvider creates a new failover provider
func NewFailoverProvider(primary, fallback Provider) *FailoverProvider {
	return &FailoverProvider{
		primary:  primary,
		fallback: fallback,
		log:      logger.GetDefaultLogger().WithComponent("agent"),
	}
}

// Name returns the provider name
func (f *FailoverProvider) Name() string {
	return fmt.Sprintf("%s (with fallback: %s)", f.primary.Name(), f.fallback.Name())
}

// Model returns the primary model
func (f *FailoverProvider) Model() string {
	return f.primary.Model()
}

// Submit tries the primary first. Malformed responses are returned as-is.
func (f *FailoverProvider) Submit(ctx context.Context, req types.AIRequest) (string, error) {
	raw, err := f.primary.Submit(ctx, req)
	if err == nil {
		return raw, nil
	}
	if KindOf(err) == KindMalformedResponse || ctx.Err() != nil {
		return "", err
	}

	f.log.Warn("⚠️ Primary provider (%s) failed: %v, trying fallback (%s)", f.primary.Name(), err, f.fallback.Name())

	raw, fbErr := f.fallback.Submit(ctx, req)
	if fbErr != nil {
		return "", fmt.Errorf("both primary and fallback failed: %w", fbErr)
	}
	return raw, nil
}
