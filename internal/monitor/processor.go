package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FeelPulse/skyoracle/internal/agent"
	"github.com/FeelPulse/skyoracle/internal/analytics"
	"github.com/FeelPulse/skyoracle/internal/channel"
	"github.com/FeelPulse/skyoracle/internal/logger"
	"github.com/FeelPulse/skyoracle/internal/pipeline"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

// Stage names one step of handling a mention
type Stage string

const (
	StageFetchThread  Stage = "fetch_thread"
	StageBuildRequest Stage = "build_request"
	StageComplete     Stage = "complete"
	StagePostReply    Stage = "post_reply"
)

// StageError tags a failure with the stage that produced it
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the failing stage of err, or "" if it carries none
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// ErrorKind names the class of a processing error for logs and metrics
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, channel.ErrNotFound):
		return "not_found"
	case errors.Is(err, channel.ErrSelfTarget):
		return "self_target"
	case errors.Is(err, channel.ErrDuplicateSuppressed):
		return "duplicate_suppressed"
	case errors.Is(err, channel.ErrAuth):
		return "auth"
	case errors.Is(err, channel.ErrTransport):
		return "transport"
	case errors.Is(err, pipeline.ErrNoMedia):
		return "no_media"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	if kind := agent.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "internal"
}

// Social is the part of the social network client the processor needs
type Social interface {
	FetchThread(ctx context.Context, ref string) (*types.ThreadContext, error)
	PostReply(ctx context.Context, parent types.PostRef, text string, langs ...string) (*types.ReplyRef, error)
}

// Completer answers AI requests
type Completer interface {
	Complete(ctx context.Context, req types.AIRequest) (*types.AIResponse, error)
}

// Recorder receives analytics for completed AI requests
type Recorder interface {
	Emit(resp *types.AIResponse, latency time.Duration, src analytics.Source)
}

// ProcessOptions controls a single run of the processor
type ProcessOptions struct {
	Mode     types.Mode
	Language string
	DryRun   bool
}

// Result describes what happened to one mention
type Result struct {
	Thread   *types.ThreadContext
	Request  *types.AIRequest
	Response *types.AIResponse
	Reply    string
	Posted   *types.ReplyRef
	Latency  time.Duration
}

// Processor runs one mention through fetch, prompt, completion and reply
type Processor struct {
	social   Social
	ai       Completer
	pipeline *pipeline.Pipeline
	recorder Recorder
	policy   RetryPolicy
	log      *logger.Logger
}

// NewProcessor wires a processor. recorder may be nil.
func NewProcessor(social Social, ai Completer, p *pipeline.Pipeline, recorder Recorder, policy RetryPolicy, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.GetDefaultLogger().WithComponent("processor")
	}
	return &Processor{
		social:   social,
		ai:       ai,
		pipeline: p,
		recorder: recorder,
		policy:   policy,
		log:      log,
	}
}

// ProcessMention handles a mention notification
func (p *Processor) ProcessMention(ctx context.Context, m types.Mention, opts ProcessOptions) (*Result, error) {
	return p.Process(ctx, m.ID, opts)
}

// Process evaluates the post identified by ref (a mention URI, an at:// URI
// or a bsky.app URL) and, unless DryRun is set, replies to the target post.
func (p *Processor) Process(ctx context.Context, ref string, opts ProcessOptions) (*Result, error) {
	res := &Result{}

	thread, err := retry(ctx, p.policy, p.log, string(StageFetchThread), func(ctx context.Context) (*types.ThreadContext, error) {
		return p.social.FetchThread(ctx, ref)
	})
	if err != nil {
		return res, &StageError{Stage: StageFetchThread, Err: err}
	}
	res.Thread = thread

	req, err := p.pipeline.BuildRequest(thread, opts.Mode, opts.Language)
	if err != nil {
		return res, &StageError{Stage: StageBuildRequest, Err: err}
	}
	res.Request = req

	start := time.Now()
	resp, err := retry(ctx, p.policy, p.log, string(StageComplete), func(ctx context.Context) (*types.AIResponse, error) {
		return p.ai.Complete(ctx, *req)
	})
	res.Latency = time.Since(start)
	if err != nil {
		if raw := rawOf(err); raw != "" {
			p.log.Warn("⚠️ Malformed AI response for %s: %s", ref, raw)
		}
		return res, &StageError{Stage: StageComplete, Err: err}
	}
	res.Response = resp

	if p.recorder != nil {
		p.recorder.Emit(resp, res.Latency, analytics.Source{
			Text:     thread.Target.Text,
			HasMedia: thread.Target.HasMedia(),
		})
	}

	res.Reply = p.pipeline.RenderReply(resp)
	if opts.DryRun {
		return res, nil
	}

	posted, err := retry(ctx, p.policy, p.log, string(StagePostReply), func(ctx context.Context) (*types.ReplyRef, error) {
		return p.social.PostReply(ctx, thread.Target.Ref, res.Reply, req.Language)
	})
	if err != nil {
		return res, &StageError{Stage: StagePostReply, Err: err}
	}
	res.Posted = posted
	return res, nil
}

func rawOf(err error) string {
	var e *agent.Error
	if errors.As(err, &e) && e.Kind == agent.KindMalformedResponse {
		return e.Raw
	}
	return ""
}
