package agent

import (
	"context"
	"time"

	"github.com/FeelPulse/skyoracle/internal/cache"
	"github.com/FeelPulse/skyoracle/internal/logger"
	"github.com/FeelPulse/skyoracle/internal/metrics"
	"github.com/FeelPulse/skyoracle/internal/ratelimit"
	"github.com/FeelPulse/skyoracle/internal/textfit"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

const (
	defaultReplyCharCap = 250
	defaultTimeout      = 60 * time.Second
)

// Options configures a Gateway. Throttle and Cache are optional.
type Options struct {
	ReplyCharCap int
	Timeout      time.Duration
	Throttle     *ratelimit.Throttle
	Cache        *cache.Cache[*types.AIResponse]
	Metrics      *metrics.Collector
	Logger       *logger.Logger
	// ShortenLongReplies asks the provider to rewrite a reply that is over
	// the cap before falling back to truncation
	ShortenLongReplies bool
}

// Gateway is the single entry point for AI completions: it throttles remote
// calls, serves repeats from cache, and turns raw model text into a
// validated, cap-respecting response
type Gateway struct {
	provider Provider
	throttle *ratelimit.Throttle
	cache    *cache.Cache[*types.AIResponse]
	metrics  *metrics.Collector
	log      *logger.Logger
	cap      int
	timeout  time.Duration
	shorten  bool
}

// NewGateway creates a gateway over provider
func NewGateway(provider Provider, opts Options) *Gateway {
	g := &Gateway{
		provider: provider,
		throttle: opts.Throttle,
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		cap:      opts.ReplyCharCap,
		timeout:  opts.Timeout,
		shorten:  opts.ShortenLongReplies,
	}
	if g.cap <= 0 {
		g.cap = defaultReplyCharCap
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	if g.log == nil {
		g.log = logger.GetDefaultLogger().WithComponent("agent")
	}
	return g
}

// Provider returns the underlying provider
func (g *Gateway) Provider() Provider {
	return g.provider
}

// ReplyCharCap returns the configured reply length cap
func (g *Gateway) ReplyCharCap() int {
	return g.cap
}

// Complete returns the structured response for req. Errors are *Error.
func (g *Gateway) Complete(ctx context.Context, req types.AIRequest) (*types.AIResponse, error) {
	if g.cache == nil {
		return g.call(ctx, req)
	}

	key := cache.Fingerprint(req)
	resp, cached, err := g.cache.Do(ctx, key, func(ctx context.Context) (*types.AIResponse, error) {
		return g.call(ctx, req)
	})
	if err != nil {
		if KindOf(err) == 0 {
			err = Classify(g.provider.Name(), err)
		}
		return nil, err
	}

	out := *resp
	out.Cached = cached
	if cached {
		g.metrics.IncrementCacheHits()
		g.log.Debug("cache hit for %s request %x", req.Mode, key)
	}
	return &out, nil
}

// call performs one throttled remote round trip, plus a shortening round
// trip when the reply does not fit
func (g *Gateway) call(ctx context.Context, req types.AIRequest) (*types.AIResponse, error) {
	raw, err := g.submit(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := ParseResponse(raw, req.Mode)
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.Provider = g.provider.Name()
		}
		return nil, err
	}

	text := tidyReply(resp.ReplyText)
	if g.shorten && textfit.Len(text) > g.cap {
		text = g.shortenReply(ctx, req, text)
	}
	resp.ReplyText = textfit.Truncate(text, g.cap)
	resp.Model = g.provider.Model()
	return resp, nil
}

// submit waits for the throttle and sends req to the provider
func (g *Gateway) submit(ctx context.Context, req types.AIRequest) (string, error) {
	if g.throttle != nil {
		if err := g.throttle.Wait(ctx); err != nil {
			return "", &Error{Kind: KindTransport, Provider: g.provider.Name(), Err: err}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	raw, err := g.provider.Submit(callCtx, req)
	latency := time.Since(start)
	g.metrics.ObserveAICall(g.provider.Name(), err, latency)
	if err != nil {
		err = Classify(g.provider.Name(), err)
		g.log.Warn("%s call failed after %v: %v", g.provider.Name(), latency.Round(time.Millisecond), err)
		return "", err
	}
	g.log.Debug("%s answered %s request in %v", g.provider.Name(), req.Mode, latency.Round(time.Millisecond))
	return raw, nil
}

// shortenReply asks the provider to rewrite text within the cap. Any failure
// returns text unchanged and leaves the cut to truncation.
func (g *Gateway) shortenReply(ctx context.Context, req types.AIRequest, text string) string {
	raw, err := g.submit(ctx, types.AIRequest{
		Mode:       req.Mode,
		TemplateID: shortenTemplateID,
		Language:   req.Language,
		Prompt:     shortenPrompt(text, g.cap, req.Language),
	})
	if err != nil {
		g.log.Warn("⚠️ Could not shorten %d-character reply, truncating: %v", textfit.Len(text), err)
		return text
	}

	short := tidyReply(shortenedText(raw))
	if short == "" {
		return text
	}
	g.log.Debug("reply shortened from %d to %d characters", textfit.Len(text), textfit.Len(short))
	return short
}
