package metrics

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorMentions(t *testing.T) {
	c := NewCollector()

	c.IncrementMentions(MentionSeen)
	c.IncrementMentions(MentionSeen)
	c.IncrementMentions(MentionReplied)

	s := c.Snapshot()
	if got := s.MentionCount(MentionSeen); got != 2 {
		t.Errorf("Expected seen=2, got %d", got)
	}
	if got := s.MentionCount(MentionReplied); got != 1 {
		t.Errorf("Expected replied=1, got %d", got)
	}
	if got := s.MentionCount(MentionFailed); got != 0 {
		t.Errorf("Expected failed=0, got %d", got)
	}
}

func TestCollectorAICalls(t *testing.T) {
	c := NewCollector()

	c.ObserveAICall("gemini", nil, 120*time.Millisecond)
	c.ObserveAICall("gemini", errors.New("503"), 80*time.Millisecond)
	c.IncrementCacheHits()

	s := c.Snapshot()
	if s.AICallCount() != 2 {
		t.Errorf("Expected 2 AI calls, got %d", s.AICallCount())
	}
	if s.AILatencyTotal != 200*time.Millisecond {
		t.Errorf("Expected 200ms cumulative latency, got %v", s.AILatencyTotal)
	}
	if s.CacheHits != 1 {
		t.Errorf("Expected 1 cache hit, got %d", s.CacheHits)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.IncrementMentions(MentionSeen)
	c.IncrementStageFailure("post_reply", "transport")
	c.ObserveAICall("openai", nil, time.Second)
	c.IncrementRepliesPosted()
	c.IncrementPollErrors()
	c.IncrementAnalytics(false)
	c.SetMonitorState("fetching")
	c.MarkPoll(time.Now())
}

func TestWritePrometheus(t *testing.T) {
	c := NewCollector()
	c.IncrementMentions(MentionReplied)
	c.IncrementStageFailure("fetch_thread", "not_found")
	c.ObserveAICall("gemini", nil, time.Second)
	c.IncrementRepliesPosted()
	c.IncrementAnalytics(true)
	c.SetMonitorState("dispatching")

	var buf bytes.Buffer
	c.WritePrometheus(&buf)
	out := buf.String()

	expected := []string{
		`skyoracle_mentions_total{outcome="replied"} 1`,
		`skyoracle_stage_failures_total{stage="fetch_thread",kind="not_found"} 1`,
		`skyoracle_ai_calls_total{provider="gemini",outcome="ok"} 1`,
		`skyoracle_replies_posted_total 1`,
		`skyoracle_analytics_records_total{result="written"} 1`,
		`skyoracle_monitor_state{state="dispatching"} 1`,
		"# TYPE skyoracle_poll_errors_total counter",
	}
	for _, want := range expected {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q\n%s", want, out)
		}
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.IncrementPollErrors()

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("Unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "skyoracle_poll_errors_total 1") {
		t.Errorf("Expected poll error count in body:\n%s", rec.Body.String())
	}
}
