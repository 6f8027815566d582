// Package monitor polls the bot's notifications and runs each new mention
// through the fact-check pipeline, one at a time.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/FeelPulse/skyoracle/internal/channel"
	"github.com/FeelPulse/skyoracle/internal/logger"
	"github.com/FeelPulse/skyoracle/internal/metrics"
	"github.com/FeelPulse/skyoracle/internal/ratelimit"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

// State is the monitor's position in its poll cycle
type State string

const (
	StateIdle         State = "IDLE"
	StateFetching     State = "FETCHING"
	StateDispatching  State = "DISPATCHING"
	StateErrorBackoff State = "ERROR_BACKOFF"
)

const (
	defaultPollInterval    = 30 * time.Second
	defaultMaxBackoff      = 10 * time.Minute
	defaultShutdownTimeout = 90 * time.Second
	defaultBackfill        = time.Hour
	persistTimeout         = 10 * time.Second
)

// MentionSource lists new mentions of the bot account
type MentionSource interface {
	FetchNewMentions(ctx context.Context, since time.Time) ([]types.Mention, error)
	MarkSeen(ctx context.Context, seenAt time.Time) error
	Self() (did, handle string)
}

// CursorStore persists the timestamp of the newest handled notification
type CursorStore interface {
	LoadCursor() (time.Time, error)
	SaveCursor(cursor time.Time) error
}

// Options configures a Monitor
type Options struct {
	PollInterval time.Duration
	MaxBackoff   time.Duration
	ReplyDelay   time.Duration
	// ShutdownTimeout bounds how long an in-flight dispatch may keep running
	// after the run context is cancelled
	ShutdownTimeout time.Duration
	// MarkSeenAfter records a mention as seen only once it is settled, so
	// transport failures that exhaust their retries are picked up again by a
	// later poll. The default marks before dispatch (at most once).
	MarkSeenAfter bool
	// Backfill is how far back the first poll looks when no cursor is stored
	Backfill time.Duration
	DryRun   bool
	Mode     types.Mode

	Cursor  CursorStore
	Limiter *ratelimit.Limiter
	Metrics *metrics.Collector
	Logger  *logger.Logger
	Now     func() time.Time
}

// Monitor drives the IDLE, FETCHING, DISPATCHING cycle
type Monitor struct {
	source    MentionSource
	processor *Processor
	seen      *SeenSet
	opts      Options
	log       *logger.Logger

	mu     sync.RWMutex
	state  State
	cursor time.Time
}

// New creates a monitor
func New(source MentionSource, processor *Processor, seen *SeenSet, opts Options) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxBackoff < opts.PollInterval {
		opts.MaxBackoff = opts.PollInterval
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if opts.Backfill <= 0 {
		opts.Backfill = defaultBackfill
	}
	if opts.Mode == "" {
		opts.Mode = types.ModeAuto
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetDefaultLogger().WithComponent("monitor")
	}
	if seen == nil {
		seen = NewSeenSet(0, nil)
	}
	return &Monitor{
		source:    source,
		processor: processor,
		seen:      seen,
		opts:      opts,
		log:       opts.Logger,
		state:     StateIdle,
	}
}

// State returns the current cycle state
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Cursor returns the notification cursor
func (m *Monitor) Cursor() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursor
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.opts.Metrics.SetMonitorState(string(s))
}

func (m *Monitor) setCursor(t time.Time) {
	m.mu.Lock()
	m.cursor = t
	m.mu.Unlock()
}

// Run polls until ctx is cancelled. An in-flight dispatch is allowed to
// finish (bounded by ShutdownTimeout) before Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.restore(); err != nil {
		return err
	}

	bo := &backoff.ExponentialBackOff{
		InitialInterval:     2 * m.opts.PollInterval,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         m.opts.MaxBackoff,
	}
	bo.Reset()

	m.log.Info("👀 Monitoring mentions every %v (since %s)", m.opts.PollInterval, m.Cursor().Format(time.RFC3339))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.setState(StateIdle)
			m.log.Info("👀 Monitor stopped")
			return nil
		case <-timer.C:
		}

		wait := m.opts.PollInterval
		if err := m.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait = bo.NextBackOff()
			m.setState(StateErrorBackoff)
			m.log.Warn("⚠️ Failed to fetch mentions, retrying in %v: %v", wait, err)
		} else {
			bo.Reset()
		}
		timer.Reset(wait)
	}
}

func (m *Monitor) restore() error {
	if n, err := m.seen.Load(); err != nil {
		m.log.Warn("⚠️ Failed to load seen mentions: %v", err)
	} else if n > 0 {
		m.log.Debug("Loaded %d seen mentions", n)
	}

	var cursor time.Time
	if m.opts.Cursor != nil {
		stored, err := m.opts.Cursor.LoadCursor()
		if err != nil {
			return err
		}
		cursor = stored
	}
	if cursor.IsZero() {
		cursor = m.opts.Now().Add(-m.opts.Backfill)
	}
	m.setCursor(cursor)
	return nil
}

// Poll runs one fetch and dispatch cycle. It returns an error only when the
// fetch itself fails; per-mention failures are logged and absorbed.
func (m *Monitor) Poll(ctx context.Context) error {
	m.setState(StateFetching)
	since := m.Cursor()
	mentions, err := m.source.FetchNewMentions(ctx, since)
	m.opts.Metrics.MarkPoll(m.opts.Now())
	// A truncated backlog still carries mentions, but the cursor must stay
	// put until the older pages have been read
	truncated := errors.Is(err, channel.ErrBacklogTruncated)
	if err != nil && !truncated {
		m.opts.Metrics.IncrementPollErrors()
		return err
	}
	if truncated {
		m.log.Warn("⚠️ Mention backlog not fully read, holding cursor at %s", since.Format(time.RFC3339))
	}

	if len(mentions) == 0 {
		m.log.Debug("No new mentions")
		m.setState(StateIdle)
		return nil
	}

	m.setState(StateDispatching)
	m.log.Info("📬 Found %d new mentions", len(mentions))
	latest := m.dispatchBatch(ctx, mentions)

	if latest.After(since) && !truncated {
		m.commitCursor(latest)
	}
	m.setState(StateIdle)
	return nil
}

// dispatchBatch handles mentions in order and returns the cursor the batch
// may advance to
func (m *Monitor) dispatchBatch(ctx context.Context, mentions []types.Mention) time.Time {
	latest := m.Cursor()
	held := false
	dispatched := 0

	for _, mention := range mentions {
		if ctx.Err() != nil {
			m.log.Info("Stopping batch: shutdown requested")
			break
		}
		m.opts.Metrics.IncrementMentions(metrics.MentionSeen)

		if m.skip(mention) {
			if !held {
				latest = mention.ReceivedAt
			}
			continue
		}

		if dispatched > 0 && m.opts.ReplyDelay > 0 {
			if !sleep(ctx, m.opts.ReplyDelay) {
				break
			}
		}
		dispatched++

		if m.dispatch(ctx, mention) {
			held = true
		}
		if !held {
			latest = mention.ReceivedAt
		}
	}
	return latest
}

// skip reports whether mention needs no dispatch, recording why
func (m *Monitor) skip(mention types.Mention) bool {
	if m.seen.Contains(mention.ID) {
		m.opts.Metrics.IncrementMentions(metrics.MentionSkippedSeen)
		return true
	}

	selfDID, _ := m.source.Self()
	if selfDID != "" && mention.RequesterDID == selfDID {
		m.opts.Metrics.IncrementMentions(metrics.MentionSkippedSelf)
		m.markSeen(mention.ID)
		return true
	}

	if m.opts.Limiter != nil && !m.opts.Limiter.Allow(mention.RequesterDID) {
		m.opts.Metrics.IncrementMentions(metrics.MentionRateLimited)
		m.log.Warn("⚠️ Requester %s over limit, skipping %s", mention.RequesterHandle, mention.ID)
		m.markSeen(mention.ID)
		return true
	}
	return false
}

// dispatch processes one mention. It returns true when the mention was left
// unsettled and must be fetched again.
func (m *Monitor) dispatch(ctx context.Context, mention types.Mention) bool {
	if !m.opts.MarkSeenAfter {
		m.markSeen(mention.ID)
	}

	// Detach from ctx so shutdown lets the in-flight mention finish, but only
	// for ShutdownTimeout.
	dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		grace := time.NewTimer(m.opts.ShutdownTimeout)
		defer grace.Stop()
		select {
		case <-grace.C:
			cancel()
		case <-dctx.Done():
		}
	})
	defer stop()

	m.log.Info("Processing mention %s from @%s", mention.ID, mention.RequesterHandle)
	res, err := m.processor.ProcessMention(dctx, mention, ProcessOptions{Mode: m.opts.Mode, DryRun: m.opts.DryRun})

	switch {
	case err == nil:
		if m.opts.DryRun {
			m.opts.Metrics.IncrementMentions(metrics.MentionDryRun)
			m.log.Info("Dry run reply for %s: %s", mention.ID, res.Reply)
		} else {
			m.opts.Metrics.IncrementMentions(metrics.MentionReplied)
			m.opts.Metrics.IncrementRepliesPosted()
			m.log.Info("✅ Replied to %s with %s", res.Thread.Target.Ref.URI, res.Posted.URI)
		}
	case errors.Is(err, channel.ErrDuplicateSuppressed):
		m.log.Info("Reply for %s already posted", mention.ID)
	default:
		stage, kind := StageOf(err), ErrorKind(err)
		m.opts.Metrics.IncrementMentions(metrics.MentionFailed)
		m.opts.Metrics.IncrementStageFailure(string(stage), kind)
		m.log.With("mention", mention.ID, "stage", string(stage), "kind", kind).Warn("⚠️ Mention failed: %v", err)

		if m.opts.MarkSeenAfter && IsTransient(err) {
			return true
		}
	}

	if m.opts.MarkSeenAfter {
		m.markSeen(mention.ID)
	}
	return false
}

func (m *Monitor) markSeen(id string) {
	if err := m.seen.Add(id); err != nil {
		m.log.Warn("⚠️ Failed to persist seen mention %s: %v", id, err)
	}
}

func (m *Monitor) commitCursor(cursor time.Time) {
	m.setCursor(cursor)
	if m.opts.Cursor != nil {
		if err := m.opts.Cursor.SaveCursor(cursor); err != nil {
			m.log.Warn("⚠️ Failed to save cursor: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.source.MarkSeen(ctx, cursor); err != nil {
		m.log.Debug("Failed to update notification seen marker: %v", err)
	}
}

// Prune drops expired entries from the seen set
func (m *Monitor) Prune() (int, error) {
	return m.seen.Prune()
}

// SeenCount returns the number of remembered mention ids
func (m *Monitor) SeenCount() int {
	return m.seen.Len()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
