// Package tui is a terminal view of a running bot's status endpoint.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/FeelPulse/skyoracle/internal/gateway"
)

const (
	// DefaultRefresh is how often the status endpoint is polled
	DefaultRefresh = 2 * time.Second

	fetchTimeout = 5 * time.Second
	chromeLines  = 4 // header, blank, help, error
)

// statusMsg carries the result of one fetch
type statusMsg struct {
	data *gateway.DashboardData
	err  error
	at   time.Time
}

// refreshMsg triggers the next fetch
type refreshMsg struct{}

// Model is the bubbletea model for the status view
type Model struct {
	client   *http.Client
	baseURL  string
	refresh  time.Duration
	spinner  spinner.Model
	viewport viewport.Model

	data      *gateway.DashboardData
	err       error
	fetchedAt time.Time
	loading   bool
	ready     bool
	width     int
	height    int
	quitting  bool
}

// New creates a status view for the endpoint at baseURL (e.g.
// http://localhost:9090)
func New(baseURL string, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = helpStyle

	return Model{
		client:  &http.Client{Timeout: fetchTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		refresh: refresh,
		spinner: s,
		loading: true,
	}
}

// Run starts the full-screen view and blocks until the user quits
func Run(baseURL string, refresh time.Duration) error {
	_, err := tea.NewProgram(New(baseURL, refresh), tea.WithAltScreen()).Run()
	return err
}

// Fetch reads the status endpoint. A degraded bot answers 503 with the
// same body, which is still a valid status.
func Fetch(ctx context.Context, client *http.Client, baseURL string) (*gateway.DashboardData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, fmt.Errorf("status endpoint returned %s", resp.Status)
	}
	var data gateway.DashboardData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("invalid status response: %w", err)
	}
	return &data, nil
}

func (m Model) fetch() tea.Cmd {
	client, url := m.client, m.baseURL
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		data, err := Fetch(ctx, client, url)
		return statusMsg{data: data, err: err, at: time.Now()}
	}
}

func (m Model) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg { return refreshMsg{} })
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if !m.loading {
				m.loading = true
				return m, tea.Batch(m.spinner.Tick, m.fetch())
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		h := msg.Height - chromeLines
		if h < 1 {
			h = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, h)
			m.ready = true
		} else {
			m.viewport.Width, m.viewport.Height = msg.Width, h
		}
		m.viewport.SetContent(m.body())
		return m, nil

	case statusMsg:
		m.loading = false
		m.fetchedAt = msg.at
		m.err = msg.err
		if msg.err == nil {
			m.data = msg.data
		}
		if m.ready {
			m.viewport.SetContent(m.body())
		}
		return m, m.scheduleRefresh()

	case refreshMsg:
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.fetch())

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

// View implements tea.Model
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return m.spinner.View() + " Connecting to " + m.baseURL + "..."
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	help := "q quit • r refresh • ↑/↓ scroll"
	if !m.fetchedAt.IsZero() {
		help += " • updated " + m.fetchedAt.Format("15:04:05")
	}
	if m.loading {
		help = m.spinner.View() + " " + help
	}
	b.WriteString(helpStyle.Render(help))

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(formatError(m.err.Error()))
	}
	return b.String()
}

func (m Model) header() string {
	title := headerStyle.Render("🔮 SkyOracle")
	if m.data == nil {
		return title + " " + m.baseURL
	}
	return title + " " + formatStatus(m.data.Status) + "  " + helpStyle.Render(m.data.Account+" • v"+m.data.Version)
}

func (m Model) body() string {
	if m.data == nil {
		if m.err != nil {
			return "No status yet."
		}
		return "Waiting for the first status..."
	}
	return RenderStatus(m.data)
}

// RenderStatus renders a status snapshot as panels of label/value rows
func RenderStatus(d *gateway.DashboardData) string {
	var b strings.Builder

	rows := []string{
		formatRow("Monitor", d.MonitorState),
		formatRow("Uptime", d.Uptime),
		formatRow("Agent", d.Agent),
	}
	if d.LastPoll != "" {
		rows = append(rows, formatRow("Last poll", d.LastPoll))
	}
	rows = append(rows,
		formatRow("Seen mentions", d.SeenMentions),
		formatRow("Replies posted", d.RepliesPosted),
		formatRow("AI calls", fmt.Sprintf("%d (%d cached)", d.AICalls, d.CacheHits)),
		formatRow("Tokens", fmt.Sprintf("%d in / %d out", d.TokensIn, d.TokensOut)),
		formatRow("Poll errors", d.PollErrors),
	)
	b.WriteString(panelStyle.Render(strings.Join(rows, "\n")))

	if len(d.Outcomes) > 0 {
		names := make([]string, 0, len(d.Outcomes))
		for name := range d.Outcomes {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("Outcomes"))
		for _, name := range names {
			b.WriteString("\n")
			b.WriteString(formatRow(name, d.Outcomes[name]))
		}
	}

	if len(d.Jobs) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("Jobs"))
		for _, job := range d.Jobs {
			b.WriteString("\n  ")
			b.WriteString(job)
		}
	}
	return b.String()
}
