// Package analytics records anonymized classification metrics for every
// completed AI request. Emission is fire-and-forget: a full queue or a
// failing sink never slows down or fails a reply.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/FeelPulse/skyoracle/internal/logger"
	"github.com/FeelPulse/skyoracle/internal/metrics"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 10 * time.Second
)

// Sink stores analytics records
type Sink interface {
	WriteRecord(ctx context.Context, r types.AnalyticsRecord) error
	Name() string
}

// Options configures an Emitter
type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
	Logger       *logger.Logger
	Metrics      *metrics.Collector
	Now          func() time.Time
}

// Emitter queues records and writes them to a Sink from a single worker
type Emitter struct {
	sink         Sink
	queue        chan types.AnalyticsRecord
	writeTimeout time.Duration
	log          *logger.Logger
	metrics      *metrics.Collector
	now          func() time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewEmitter starts an emitter writing to sink. A nil sink yields a disabled
// emitter whose Emit is a no-op.
func NewEmitter(sink Sink, opts Options) *Emitter {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetDefaultLogger().WithComponent("analytics")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	e := &Emitter{
		sink:         sink,
		writeTimeout: timeout,
		log:          log,
		metrics:      opts.Metrics,
		now:          now,
		done:         make(chan struct{}),
	}
	if sink == nil {
		close(e.done)
		return e
	}

	e.queue = make(chan types.AnalyticsRecord, size)
	go e.run()
	return e
}

// Enabled reports whether records go anywhere
func (e *Emitter) Enabled() bool {
	return e.sink != nil
}

// Emit builds a record from resp and enqueues it without blocking
func (e *Emitter) Emit(resp *types.AIResponse, latency time.Duration, src Source) {
	if e.sink == nil || resp == nil {
		return
	}
	record := BuildRecord(resp, latency, src, e.now())

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.queue <- record:
	default:
		e.log.Warn("⚠️ Analytics queue full, dropping record")
		e.metrics.IncrementAnalytics(false)
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	for record := range e.queue {
		ctx, cancel := context.WithTimeout(context.Background(), e.writeTimeout)
		err := e.sink.WriteRecord(ctx, record)
		cancel()

		if err != nil {
			e.log.Warn("⚠️ Analytics write to %s failed: %v", e.sink.Name(), err)
			e.metrics.IncrementAnalytics(false)
			continue
		}
		e.metrics.IncrementAnalytics(true)
	}
}

// Close stops accepting records and waits for the queue to drain or ctx to
// expire, whichever comes first.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		if e.queue != nil {
			close(e.queue)
		}
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		e.log.Warn("⚠️ Analytics drain interrupted with %d records pending", len(e.queue))
		return ctx.Err()
	}
}
