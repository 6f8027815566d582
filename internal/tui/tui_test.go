package tui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeelPulse/skyoracle/internal/gateway"
)

func sampleStatus() *gateway.DashboardData {
	return &gateway.DashboardData{
		Status:        "running",
		Version:       "0.1.0",
		Uptime:        "2h5m",
		Account:       "@oracle.test",
		Agent:         "gemini/gemini-2.0-flash",
		MonitorState:  "IDLE",
		LastPoll:      "2025-06-01T12:00:00Z",
		SeenMentions:  12,
		Outcomes:      map[string]int64{"replied": 9, "failed": 1},
		RepliesPosted: 9,
		AICalls:       10,
		CacheHits:     2,
		TokensIn:      4200,
		TokensOut:     600,
		PollErrors:    1,
		Jobs:          []string{"maintenance  0 */15 * * * *  next 12:15:00"},
	}
}

func statusServer(t *testing.T, code int, body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := statusServer(t, http.StatusOK, sampleStatus())

	data, err := Fetch(context.Background(), srv.Client(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "IDLE", data.MonitorState)
	assert.Equal(t, int64(9), data.Outcomes["replied"])
}

func TestFetch_DegradedIsStillStatus(t *testing.T) {
	status := sampleStatus()
	status.Status = "degraded"
	status.MonitorState = "ERROR_BACKOFF"
	srv := statusServer(t, http.StatusServiceUnavailable, status)

	data, err := Fetch(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "degraded", data.Status)
}

func TestFetch_Errors(t *testing.T) {
	srv := statusServer(t, http.StatusInternalServerError, map[string]string{"error": "boom"})
	_, err := Fetch(context.Background(), srv.Client(), srv.URL)
	assert.ErrorContains(t, err, "500")

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer bad.Close()
	_, err = Fetch(context.Background(), bad.Client(), bad.URL)
	assert.ErrorContains(t, err, "invalid status response")
}

func TestRenderStatus(t *testing.T) {
	out := RenderStatus(sampleStatus())

	for _, want := range []string{"IDLE", "gemini/gemini-2.0-flash", "10 (2 cached)", "4200 in / 600 out", "Outcomes", "replied", "maintenance"} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "failed"), strings.Index(out, "replied"), "outcomes are sorted")
}

func TestModel_UpdateStatus(t *testing.T) {
	m := New("http://localhost:9090/", time.Second)
	assert.Equal(t, "http://localhost:9090", m.baseURL)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = next.(Model)
	require.True(t, m.ready)

	next, cmd := m.Update(statusMsg{data: sampleStatus(), at: time.Now()})
	m = next.(Model)
	assert.NotNil(t, cmd, "next refresh is scheduled")
	assert.False(t, m.loading)
	assert.Contains(t, m.View(), "SkyOracle")
	assert.Contains(t, m.View(), "@oracle.test")

	// A failed fetch keeps the last good status and shows the error
	next, _ = m.Update(statusMsg{err: errors.New("connection refused"), at: time.Now()})
	m = next.(Model)
	assert.NotNil(t, m.data)
	assert.Contains(t, m.View(), "connection refused")
}

func TestModel_Quit(t *testing.T) {
	m := New("http://localhost:9090", 0)
	assert.Equal(t, DefaultRefresh, m.refresh)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, next.View())
}
