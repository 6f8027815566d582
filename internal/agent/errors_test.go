package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"

	"github.com/FeelPulse/skyoracle/internal/config"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"genai quota", genai.APIError{Code: 429, Message: "RESOURCE_EXHAUSTED"}, KindRateLimited},
		{"genai auth", fmt.Errorf("wrapped: %w", genai.APIError{Code: 403}), KindUnauthenticated},
		{"genai unavailable", genai.APIError{Code: 503}, KindTransport},
		{"genai bad request", genai.APIError{Code: 400}, KindRejected},
		{"openai auth", &openai.APIError{HTTPStatusCode: 401}, KindUnauthenticated},
		{"openai request error", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, KindTransport},
		{"deadline", context.DeadlineExceeded, KindTransport},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindTransport},
		{"unknown", errors.New("mystery"), KindTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("gemini", tt.err)
			assert.Equal(t, tt.want, KindOf(err))

			var gwErr *Error
			if assert.ErrorAs(t, err, &gwErr) {
				assert.Equal(t, tt.err, gwErr.Err)
				assert.Equal(t, "gemini", gwErr.Provider)
			}
		})
	}
}

func TestClassify_KeepsExisting(t *testing.T) {
	orig := &Error{Kind: KindMalformedResponse, Raw: "oops"}
	assert.Same(t, orig, Classify("openai", orig))
	assert.Nil(t, Classify("openai", nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, (&Error{Kind: KindTransport}).Retryable())
	assert.True(t, (&Error{Kind: KindRateLimited}).Retryable())
	assert.False(t, (&Error{Kind: KindUnauthenticated}).Retryable())
	assert.False(t, (&Error{Kind: KindMalformedResponse}).Retryable())
	assert.False(t, (&Error{Kind: KindRejected}).Retryable())
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindRateLimited, Provider: "gemini", Err: errors.New("quota")}
	assert.Equal(t, "ai rate_limited (gemini): quota", err.Error())
}

func TestNewProvider(t *testing.T) {
	cfg := config.Default()
	cfg.AI.GeminiAPIKey = "gem-key"

	p, err := NewProvider(context.Background(), cfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())

	cfg.AI.FallbackProvider = "openai"
	cfg.AI.OpenAIAPIKey = "sk-test"
	p, err = NewProvider(context.Background(), cfg, nil)
	assert.NoError(t, err)
	assert.IsType(t, &FailoverProvider{}, p)

	cfg.AI.Provider = "anthropic"
	_, err = NewProvider(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg.AI.AnthropicAPIKey = "sk-ant-test"
	p, err = NewProvider(context.Background(), cfg, nil)
	assert.NoError(t, err)
	assert.Contains(t, p.Name(), "anthropic")

	cfg.AI.Provider = "llama"
	_, err = NewProvider(context.Background(), cfg, nil)
	assert.Error(t, err)
}
