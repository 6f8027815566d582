// Package usage accounts AI token consumption per provider and model.
package usage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stats holds token usage for one provider/model pair, or the total
type Stats struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	RequestCount int
	ModelsUsed   map[string]int
	FirstRequest time.Time
	LastRequest  time.Time
}

// String returns a one-line summary of usage
func (s *Stats) String() string {
	if s.RequestCount == 0 {
		return "no AI usage recorded yet"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d requests, %d tokens (%d in, %d out)", s.RequestCount, s.TotalTokens, s.InputTokens, s.OutputTokens)

	if len(s.ModelsUsed) > 0 {
		models := make([]string, 0, len(s.ModelsUsed))
		for model := range s.ModelsUsed {
			models = append(models, model)
		}
		sort.Strings(models)
		parts := make([]string, 0, len(models))
		for _, model := range models {
			parts = append(parts, fmt.Sprintf("%s=%d", model, s.ModelsUsed[model]))
		}
		fmt.Fprintf(&sb, " [%s]", strings.Join(parts, " "))
	}

	if !s.FirstRequest.IsZero() {
		sb.WriteString(" over " + formatDuration(s.LastRequest.Sub(s.FirstRequest)))
	}
	return sb.String()
}

// Tracker accumulates usage per provider/model. A nil Tracker ignores
// records.
type Tracker struct {
	stats map[string]*Stats
	mu    sync.RWMutex
	now   func() time.Time
}

// NewTracker creates a new usage tracker
func NewTracker() *Tracker {
	return &Tracker{
		stats: make(map[string]*Stats),
		now:   time.Now,
	}
}

func modelKey(provider, model string) string {
	return provider + "/" + model
}

// Record adds one completed request
func (t *Tracker) Record(provider, model string, inputTokens, outputTokens int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	key := modelKey(provider, model)
	stats, exists := t.stats[key]
	if !exists {
		stats = &Stats{FirstRequest: now}
		t.stats[key] = stats
	}

	stats.InputTokens += inputTokens
	stats.OutputTokens += outputTokens
	stats.TotalTokens += inputTokens + outputTokens
	stats.RequestCount++
	stats.LastRequest = now
}

// Get returns a copy of the stats for one provider/model
func (t *Tracker) Get(provider, model string) *Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats, exists := t.stats[modelKey(provider, model)]
	if !exists {
		return &Stats{}
	}
	s := *stats
	return &s
}

// Reset clears all usage
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = make(map[string]*Stats)
}

// Global returns usage aggregated across models. ModelsUsed counts requests
// per provider/model.
func (t *Tracker) Global() *Stats {
	global := &Stats{ModelsUsed: make(map[string]int)}
	if t == nil {
		return global
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	for key, stats := range t.stats {
		global.InputTokens += stats.InputTokens
		global.OutputTokens += stats.OutputTokens
		global.TotalTokens += stats.TotalTokens
		global.RequestCount += stats.RequestCount
		global.ModelsUsed[key] += stats.RequestCount

		if global.FirstRequest.IsZero() || stats.FirstRequest.Before(global.FirstRequest) {
			global.FirstRequest = stats.FirstRequest
		}
		if stats.LastRequest.After(global.LastRequest) {
			global.LastRequest = stats.LastRequest
		}
	}

	return global
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if mins > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dh", hours)
}
