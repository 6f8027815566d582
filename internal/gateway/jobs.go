package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/FeelPulse/skyoracle/internal/metrics"
	"github.com/FeelPulse/skyoracle/internal/scheduler"
	"github.com/FeelPulse/skyoracle/internal/usage"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

const statusWindow = 24 * time.Hour

// maintenance prunes expired state: seen mentions, cached AI responses and
// idle requester windows
func (gw *Gateway) maintenance(ctx context.Context) (string, error) {
	var errs []error

	pruned, err := gw.monitor.Prune()
	if err != nil {
		errs = append(errs, fmt.Errorf("prune seen mentions: %w", err))
	}
	purged := 0
	if gw.cache != nil {
		purged = gw.cache.Purge()
	}
	swept := gw.limiter.Sweep()

	summary := fmt.Sprintf("pruned %d seen mentions, purged %d cached responses, swept %d requesters", pruned, purged, swept)
	return summary, errors.Join(errs...)
}

// statusReport summarizes activity for the log
func (gw *Gateway) statusReport(ctx context.Context) (string, error) {
	var counts map[types.Status]int
	if gw.db != nil {
		c, err := gw.db.StatusCounts(time.Now().Add(-statusWindow))
		if err != nil {
			return "", err
		}
		counts = c
	}
	return statusLine(gw.metrics.Snapshot(), gw.usage.Global(), gw.monitor.SeenCount(), counts, time.Since(gw.startTime)), nil
}

// statusLine renders one log line from a metrics snapshot and the last day's
// verdict counts
func statusLine(snap metrics.Snapshot, ai *usage.Stats, seen int, counts map[types.Status]int, uptime time.Duration) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s up %s, replied %d, failed %d, skipped %d, seen %d, ai calls %d (cache hits %d, tokens %d), poll errors %d",
		snap.MonitorState,
		scheduler.FormatDuration(uptime),
		snap.MentionCount(metrics.MentionReplied),
		snap.MentionCount(metrics.MentionFailed),
		snap.MentionCount(metrics.MentionSkippedSeen)+snap.MentionCount(metrics.MentionSkippedSelf)+snap.MentionCount(metrics.MentionRateLimited),
		seen,
		snap.AICallCount(),
		snap.CacheHits,
		ai.TotalTokens,
		snap.PollErrors,
	)

	if len(counts) > 0 {
		statuses := make([]string, 0, len(counts))
		for status := range counts {
			statuses = append(statuses, string(status))
		}
		sort.Strings(statuses)

		parts := make([]string, 0, len(statuses))
		for _, s := range statuses {
			parts = append(parts, fmt.Sprintf("%s=%d", s, counts[types.Status(s)]))
		}
		fmt.Fprintf(&sb, "; last 24h: %s", strings.Join(parts, " "))
	}
	return sb.String()
}
