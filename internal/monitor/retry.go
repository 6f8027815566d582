package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/FeelPulse/skyoracle/internal/agent"
	"github.com/FeelPulse/skyoracle/internal/channel"
	"github.com/FeelPulse/skyoracle/internal/logger"
)

// RetryPolicy bounds retries of transport-class failures within one stage
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns 3 attempts starting at 1s and doubling
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		Multiplier:      2,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	return b
}

// IsTransient reports whether err is worth retrying: network and server
// failures from the social network, transport and rate-limit failures from
// the AI service.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, channel.ErrTransport) {
		return true
	}
	return agent.IsRetryable(err)
}

// retry runs op until it succeeds, fails with a non-transient error, or the
// policy's attempts are exhausted.
func retry[T any](ctx context.Context, policy RetryPolicy, log *logger.Logger, stage string, op func(context.Context) (T, error)) (T, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn("⚠️ %s attempt %d/%d failed, retrying in %v: %v", stage, attempt, attempts, wait, err)
		}),
	)
}
