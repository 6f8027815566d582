package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/FeelPulse/skyoracle/internal/cache"
	"github.com/FeelPulse/skyoracle/internal/metrics"
	"github.com/FeelPulse/skyoracle/internal/monitor"
	"github.com/FeelPulse/skyoracle/internal/scheduler"
)

// DashboardData holds data for the status page and /health
type DashboardData struct {
	Status        string           `json:"status"`
	Version       string           `json:"version"`
	Uptime        string           `json:"uptime"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartedAt     string           `json:"started_at"`
	Account       string           `json:"account"`
	Agent         string           `json:"agent"`
	MonitorState  string           `json:"monitor_state"`
	LastPoll      string           `json:"last_poll,omitempty"`
	SeenMentions  int              `json:"seen_mentions"`
	Outcomes      map[string]int64 `json:"outcomes"`
	RepliesPosted int64            `json:"replies_posted"`
	AICalls       int64            `json:"ai_calls"`
	CacheHits     int64            `json:"cache_hits"`
	TokensIn      int              `json:"tokens_in"`
	TokensOut     int              `json:"tokens_out"`
	AIUsage       string           `json:"ai_usage"`
	PollErrors    int64            `json:"poll_errors"`
	Cache         *cache.Stats     `json:"cache,omitempty"`
	Jobs          []string         `json:"jobs"`
}

func (gw *Gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/dashboard", gw.handleDashboard)
	mux.HandleFunc("POST /jobs/{name}/run", gw.handleRunJob)
	mux.Handle(gw.cfg.Metrics.Path, gw.metrics.Handler())
	return mux
}

// collectDashboardData gathers current system state
func (gw *Gateway) collectDashboardData() DashboardData {
	snap := gw.metrics.Snapshot()
	uptime := time.Since(gw.startTime)

	data := DashboardData{
		Status:        "running",
		Version:       gw.version,
		Uptime:        scheduler.FormatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     gw.startTime.Format(time.RFC3339),
		MonitorState:  string(gw.monitor.State()),
		SeenMentions:  gw.monitor.SeenCount(),
		Outcomes:      make(map[string]int64),
		RepliesPosted: snap.RepliesPosted,
		AICalls:       snap.AICallCount(),
		CacheHits:     snap.CacheHits,
		PollErrors:    snap.PollErrors,
	}
	ai := gw.usage.Global()
	data.TokensIn, data.TokensOut, data.AIUsage = ai.InputTokens, ai.OutputTokens, ai.String()
	if data.MonitorState == string(monitor.StateErrorBackoff) {
		data.Status = "degraded"
	}
	if !snap.LastPoll.IsZero() {
		data.LastPoll = snap.LastPoll.Format(time.RFC3339)
	}
	if _, handle := gw.client.Self(); handle != "" {
		data.Account = "@" + handle
	}
	if gw.cache != nil {
		stats := gw.cache.Stats()
		data.Cache = &stats
	}
	if gw.ai != nil {
		data.Agent = fmt.Sprintf("%s/%s", gw.ai.Provider().Name(), gw.ai.Provider().Model())
	}
	for _, outcome := range []string{
		metrics.MentionReplied, metrics.MentionDryRun, metrics.MentionFailed,
		metrics.MentionSkippedSeen, metrics.MentionSkippedSelf, metrics.MentionRateLimited,
	} {
		if n := snap.MentionCount(outcome); n > 0 {
			data.Outcomes[outcome] = n
		}
	}
	for _, job := range gw.scheduler.Jobs() {
		data.Jobs = append(data.Jobs, job.String())
	}
	return data
}

func (gw *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	data := gw.collectDashboardData()

	w.Header().Set("Content-Type", "application/json")
	if data.Status != "running" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(data)
}

// handleRunJob runs a scheduled job immediately and reports its new state
func (gw *Gateway) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := gw.scheduler.RunNow(name); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	for _, job := range gw.scheduler.Jobs() {
		if job.Name == name {
			json.NewEncoder(w).Encode(map[string]any{
				"job":    job.Name,
				"status": job.LastStatus,
				"result": job.LastResult,
				"runs":   job.Runs,
			})
			return
		}
	}
}

// handleDashboard serves the status page
func (gw *Gateway) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(generateDashboardHTML(gw.collectDashboardData())))
}

type outcomeRow struct {
	Name  string
	Count int64
}

// sortedOutcomes orders outcome counters by name for stable rendering
func sortedOutcomes(m map[string]int64) []outcomeRow {
	rows := make([]outcomeRow, 0, len(m))
	for name, n := range m {
		rows = append(rows, outcomeRow{Name: name, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}

var dashboardTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"outcomes": sortedOutcomes,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="refresh" content="30">
    <title>SkyOracle</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #0b1d33 0%, #12325a 100%);
            color: #eee;
            min-height: 100vh;
            padding: 2rem;
        }
        .container { max-width: 1100px; margin: 0 auto; }
        header { display: flex; align-items: center; gap: 1rem; margin-bottom: 2rem; }
        .logo { font-size: 2.5rem; }
        h1 { font-size: 2rem; font-weight: 600; }
        .subtitle { color: #9ab; font-size: 0.9rem; margin-top: 0.25rem; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(240px, 1fr)); gap: 1.5rem; }
        .card { background: rgba(255,255,255,0.05); border-radius: 12px; padding: 1.5rem; border: 1px solid rgba(255,255,255,0.1); }
        .card-title { font-size: 0.85rem; color: #9ab; text-transform: uppercase; letter-spacing: 0.5px; margin-bottom: 0.75rem; }
        .card-value { font-size: 1.8rem; font-weight: 700; }
        .status-running { color: #4ade80; }
        .status-degraded { color: #fbbf24; }
        .small { font-size: 1rem; }
        .full-width { grid-column: 1 / -1; }
        ul { list-style: none; }
        li { padding: 0.4rem 0; border-bottom: 1px solid rgba(255,255,255,0.08); font-size: 0.9rem; }
        li:last-child { border-bottom: none; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <span class="logo">🔮</span>
            <div>
                <h1>SkyOracle</h1>
                <p class="subtitle">v{{.Version}} • {{.Account}} • {{.Agent}}</p>
            </div>
        </header>
        <div class="grid">
            <div class="card">
                <div class="card-title">Status</div>
                <div class="card-value status-{{.Status}}">{{.Status}}</div>
            </div>
            <div class="card">
                <div class="card-title">Monitor</div>
                <div class="card-value small">{{.MonitorState}}</div>
                <div class="subtitle">last poll {{if .LastPoll}}{{.LastPoll}}{{else}}never{{end}}</div>
            </div>
            <div class="card">
                <div class="card-title">Uptime</div>
                <div class="card-value">{{.Uptime}}</div>
            </div>
            <div class="card">
                <div class="card-title">Replies posted</div>
                <div class="card-value">{{.RepliesPosted}}</div>
                <div class="subtitle">{{.AICalls}} AI calls • {{.CacheHits}} cache hits • {{.PollErrors}} poll errors</div>
                <div class="subtitle">{{.AIUsage}}</div>
            </div>
            {{with .Cache}}
            <div class="card">
                <div class="card-title">Response cache</div>
                <div class="card-value">{{.Entries}}</div>
                <div class="subtitle">{{.Hits}} hits • {{.Misses}} misses • {{.Collapsed}} shared • {{.Evictions}} evicted</div>
            </div>
            {{end}}
            <div class="card">
                <div class="card-title">Mentions</div>
                <ul>
                    <li>{{.SeenMentions}} remembered</li>
                    {{range outcomes .Outcomes}}<li>{{.Name}}: {{.Count}}</li>{{end}}
                </ul>
            </div>
            {{if .Jobs}}
            <div class="card full-width">
                <div class="card-title">Jobs</div>
                <ul>{{range .Jobs}}<li>{{.}}</li>{{end}}</ul>
            </div>
            {{end}}
        </div>
    </div>
</body>
</html>`))

// generateDashboardHTML renders the dashboard HTML
func generateDashboardHTML(data DashboardData) string {
	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, data); err != nil {
		return fmt.Sprintf("<html><body>Error: %v</body></html>", template.HTMLEscapeString(err.Error()))
	}
	return buf.String()
}
