package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Mention outcomes
const (
	MentionSeen        = "seen"
	MentionReplied     = "replied"
	MentionDryRun      = "dry_run"
	MentionSkippedSeen = "skipped_seen"
	MentionSkippedSelf = "skipped_self"
	MentionRateLimited = "rate_limited"
	MentionFailed      = "failed"
)

// counterVec is a counter family keyed by a rendered label set
type counterVec struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
}

func newCounterVec() *counterVec {
	return &counterVec{counters: make(map[string]*atomic.Int64)}
}

func (v *counterVec) inc(labels string) {
	v.mu.RLock()
	counter, ok := v.counters[labels]
	v.mu.RUnlock()
	if !ok {
		v.mu.Lock()
		counter, ok = v.counters[labels]
		if !ok {
			counter = &atomic.Int64{}
			v.counters[labels] = counter
		}
		v.mu.Unlock()
	}
	counter.Add(1)
}

func (v *counterVec) snapshot() map[string]int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	result := make(map[string]int64, len(v.counters))
	for k, counter := range v.counters {
		result[k] = counter.Load()
	}
	return result
}

// Collector holds all bot metrics. A nil *Collector discards updates.
type Collector struct {
	mentions        *counterVec // by outcome
	stageFailures   *counterVec // by stage and error kind
	aiCalls         *counterVec // by provider and outcome
	cacheHits       atomic.Int64
	repliesPosted   atomic.Int64
	pollErrors      atomic.Int64
	analyticsOK     atomic.Int64
	analyticsDrop   atomic.Int64
	lastPollUnix    atomic.Int64
	monitorState    atomic.Value // string
	aiLatencyMillis atomic.Int64 // cumulative, paired with ai call count
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	c := &Collector{
		mentions:      newCounterVec(),
		stageFailures: newCounterVec(),
		aiCalls:       newCounterVec(),
	}
	c.monitorState.Store("idle")
	return c
}

func label(pairs ...string) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, fmt.Sprintf("%s=%q", pairs[i], pairs[i+1]))
	}
	return strings.Join(parts, ",")
}

// IncrementMentions counts a mention outcome
func (c *Collector) IncrementMentions(outcome string) {
	if c == nil {
		return
	}
	c.mentions.inc(label("outcome", outcome))
}

// IncrementStageFailure counts a failed pipeline stage
func (c *Collector) IncrementStageFailure(stage, kind string) {
	if c == nil {
		return
	}
	c.stageFailures.inc(label("stage", stage, "kind", kind))
}

// ObserveAICall records a remote AI call
func (c *Collector) ObserveAICall(provider string, err error, latency time.Duration) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.aiCalls.inc(label("provider", provider, "outcome", outcome))
	c.aiLatencyMillis.Add(latency.Milliseconds())
}

// IncrementCacheHits counts an AI response served from cache
func (c *Collector) IncrementCacheHits() {
	if c == nil {
		return
	}
	c.cacheHits.Add(1)
}

// IncrementRepliesPosted counts a reply published to the network
func (c *Collector) IncrementRepliesPosted() {
	if c == nil {
		return
	}
	c.repliesPosted.Add(1)
}

// IncrementPollErrors counts a failed notification fetch
func (c *Collector) IncrementPollErrors() {
	if c == nil {
		return
	}
	c.pollErrors.Add(1)
}

// IncrementAnalytics counts an analytics record as written or dropped
func (c *Collector) IncrementAnalytics(written bool) {
	if c == nil {
		return
	}
	if written {
		c.analyticsOK.Add(1)
	} else {
		c.analyticsDrop.Add(1)
	}
}

// SetMonitorState records the monitor's current state
func (c *Collector) SetMonitorState(state string) {
	if c == nil {
		return
	}
	c.monitorState.Store(state)
}

// MarkPoll records the time of the last completed poll
func (c *Collector) MarkPoll(t time.Time) {
	if c == nil {
		return
	}
	c.lastPollUnix.Store(t.Unix())
}

// Snapshot is a point-in-time copy of the collector, used for status lines and /health
type Snapshot struct {
	Mentions       map[string]int64 `json:"mentions"`
	StageFailures  map[string]int64 `json:"stageFailures"`
	AICalls        map[string]int64 `json:"aiCalls"`
	CacheHits      int64            `json:"cacheHits"`
	RepliesPosted  int64            `json:"repliesPosted"`
	PollErrors     int64            `json:"pollErrors"`
	AnalyticsOK    int64            `json:"analyticsWritten"`
	AnalyticsDrop  int64            `json:"analyticsDropped"`
	LastPoll       time.Time        `json:"lastPoll"`
	MonitorState   string           `json:"monitorState"`
	AILatencyTotal time.Duration    `json:"-"`
}

// Snapshot returns the current counter values
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		Mentions:       c.mentions.snapshot(),
		StageFailures:  c.stageFailures.snapshot(),
		AICalls:        c.aiCalls.snapshot(),
		CacheHits:      c.cacheHits.Load(),
		RepliesPosted:  c.repliesPosted.Load(),
		PollErrors:     c.pollErrors.Load(),
		AnalyticsOK:    c.analyticsOK.Load(),
		AnalyticsDrop:  c.analyticsDrop.Load(),
		MonitorState:   c.monitorState.Load().(string),
		AILatencyTotal: time.Duration(c.aiLatencyMillis.Load()) * time.Millisecond,
	}
	if ts := c.lastPollUnix.Load(); ts > 0 {
		s.LastPoll = time.Unix(ts, 0).UTC()
	}
	return s
}

// MentionCount returns the count for one mention outcome
func (s Snapshot) MentionCount(outcome string) int64 {
	return s.Mentions[label("outcome", outcome)]
}

// AICallCount returns the total number of remote AI calls
func (s Snapshot) AICallCount() int64 {
	var n int64
	for _, v := range s.AICalls {
		n += v
	}
	return n
}

func writeFamily(w io.Writer, name, help, kind string, values map[string]int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	for _, k := range sortedKeys(values) {
		if k == "" {
			fmt.Fprintf(w, "%s %d\n", name, values[k])
		} else {
			fmt.Fprintf(w, "%s{%s} %d\n", name, k, values[k])
		}
	}
	fmt.Fprintln(w)
}

// WritePrometheus writes metrics in Prometheus text format
func (c *Collector) WritePrometheus(w io.Writer) {
	s := c.Snapshot()

	writeFamily(w, "skyoracle_mentions_total", "Mentions by outcome", "counter", s.Mentions)
	writeFamily(w, "skyoracle_stage_failures_total", "Failed pipeline stages by stage and error kind", "counter", s.StageFailures)
	writeFamily(w, "skyoracle_ai_calls_total", "Remote AI calls by provider and outcome", "counter", s.AICalls)
	writeFamily(w, "skyoracle_ai_latency_ms_total", "Cumulative remote AI latency in milliseconds", "counter", map[string]int64{"": s.AILatencyTotal.Milliseconds()})
	writeFamily(w, "skyoracle_ai_cache_hits_total", "AI responses served from cache", "counter", map[string]int64{"": s.CacheHits})
	writeFamily(w, "skyoracle_replies_posted_total", "Replies posted", "counter", map[string]int64{"": s.RepliesPosted})
	writeFamily(w, "skyoracle_poll_errors_total", "Failed notification polls", "counter", map[string]int64{"": s.PollErrors})
	writeFamily(w, "skyoracle_analytics_records_total", "Analytics records by result", "counter", map[string]int64{
		label("result", "written"): s.AnalyticsOK,
		label("result", "dropped"): s.AnalyticsDrop,
	})
	writeFamily(w, "skyoracle_last_poll_timestamp_seconds", "Unix time of the last completed poll", "gauge", map[string]int64{"": c.lastPollUnix.Load()})
	writeFamily(w, "skyoracle_monitor_state", "Current monitor state", "gauge", map[string]int64{label("state", s.MonitorState): 1})
}

// sortedKeys returns sorted keys of a map
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Handler returns an HTTP handler for the metrics endpoint
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		c.WritePrometheus(w)
	}
}
