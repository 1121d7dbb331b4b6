// Package monitor renders a live terminal dashboard from a dialogd server's
// stats endpoint.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/dialogd/internal/stats"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30

	// latencyBudget is the turn latency the p95 bar is scaled against.
	latencyBudget = 2.0
)

// Fetcher returns the server's current stats.
type Fetcher interface {
	Fetch(ctx context.Context) (stats.Stats, error)
}

// Model represents the BubbleTea dashboard model
type Model struct {
	serverURL  string
	fetcher    Fetcher
	interval   time.Duration
	lastUpdate time.Time
	err        error
	quitting   bool

	prev  stats.Stats
	cur   stats.Stats
	rates stats.Rates

	turnsHistory    []float64
	latencyHistory  []float64
	bypassHistory   []float64
	sessionsHistory []float64
	sessionsPeak    float64

	latencyProgress  progress.Model
	sessionsProgress progress.Model
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard polling the server at serverURL.
func NewModel(serverURL string, interval time.Duration) Model {
	return NewModelWithFetcher(serverURL, NewStatsClient(serverURL), interval)
}

// NewModelWithFetcher creates a dashboard reading from f.
func NewModelWithFetcher(serverURL string, f Fetcher, interval time.Duration) Model {
	return Model{
		serverURL: serverURL,
		fetcher:   f,
		interval:  interval,
		latencyProgress: progress.New(
			progress.WithGradient("#00ff00", "#ff0000"),
			progress.WithWidth(40),
		),
		sessionsProgress: progress.New(
			progress.WithGradient("#00ffff", "#ff00ff"),
			progress.WithWidth(40),
		),
		turnsHistory:    make([]float64, 0, historySize),
		latencyHistory:  make([]float64, 0, historySize),
		bypassHistory:   make([]float64, 0, historySize),
		sessionsHistory: make([]float64, 0, historySize),
		sessionsPeak:    1.0,
	}
}

// latencyBadge grades p95 turn latency.
func latencyBadge(seconds float64) string {
	switch {
	case seconds < 0.25:
		return healthyStyle.Render("[✓]")
	case seconds < 1:
		return warningStyle.Render("[⚠]")
	default:
		return errorStyle.Render("[✗]")
	}
}

// statusBadge summarizes the window: fail-closed claims or degraded turns
// warn, and timeouts without completed turns are an error.
func statusBadge(r stats.Rates) string {
	switch {
	case r.Timeouts > 0 && r.TurnsPerMin == 0:
		return errorStyle.Render("✗ STALLED")
	case r.FailClosed > 0 || r.DegradedPerMin > 0:
		return warningStyle.Render("⚠ DEGRADED")
	default:
		return healthyStyle.Render("✓ HEALTHY")
	}
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}

type tickMsg time.Time
type statsMsg stats.Stats
type errMsg error

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchStats(m.fetcher),
	)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchStats(f Fetcher) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s, err := f.Fetch(ctx)
		if err != nil {
			return errMsg(err)
		}
		return statsMsg(s)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchStats(m.fetcher)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchStats(m.fetcher),
		)

	case statsMsg:
		m.prev, m.cur = m.cur, stats.Stats(msg)
		m.rates = stats.Between(m.prev, m.cur)

		// The first sample has no window to rate against.
		if m.rates.Interval > 0 {
			m.turnsHistory = appendToHistory(m.turnsHistory, m.rates.TurnsPerMin)
			m.bypassHistory = appendToHistory(m.bypassHistory, m.rates.BypassPerMin)
			m.latencyHistory = appendToHistory(m.latencyHistory, m.rates.LatencyP95*1000)
		}
		m.sessionsHistory = appendToHistory(m.sessionsHistory, m.rates.SessionsActive)
		m.sessionsPeak = max(m.sessionsPeak, m.rates.SessionsActive)

		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render("dialogd Monitor")

	var content string
	content += "\n"
	content += errorStyle.Render("⚠ Cannot reach dialogd") + "\n"
	content += "\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.serverURL) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += dimStyle.Render("Check that dialogd is running and --server points at it.") + "\n"
	content += "\n"
	content += footerStyle.Render("[q] quit  [r] retry") + "\n"

	return containerStyle.Render(header + "\n" + content)
}

func (m Model) renderDashboard() string {
	var content string
	r := m.rates

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}
	window := "first sample"
	if r.Interval > 0 {
		window = r.Interval.Round(time.Second).String()
	}

	content += headerStyle.Render(" dialogd Monitor ") + "\n"
	content += fmt.Sprintf("%s   %s   %s   %s",
		statusBadge(r),
		dimStyle.Render("Window:"),
		valueStyle.Render(window),
		dimStyle.Render(lastUpdateStr)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Turns") + "\n"
	content += labelStyle.Render("  Rate: ") +
		valueStyle.Render(FormatRate(r.TurnsPerMin)) +
		"   " + createSparkline(m.turnsHistory) + "\n"
	content += labelStyle.Render("  Latency (p50): ") +
		valueStyle.Render(FormatLatency(r.LatencyP50)) +
		labelStyle.Render("  (p95): ") +
		valueStyle.Render(FormatLatency(r.LatencyP95)) +
		" " + latencyBadge(r.LatencyP95) +
		"   " + createSparkline(m.latencyHistory) + "\n"
	budget := min(r.LatencyP95/latencyBudget, 1.0)
	content += labelStyle.Render("  Budget: ") +
		m.latencyProgress.ViewAs(budget) +
		" " + dimStyle.Render(FormatPercentage(budget)) + "\n"
	content += labelStyle.Render("  Total: ") +
		valueStyle.Render(FormatCount(m.cur.Turns)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Safety") + "\n"
	content += labelStyle.Render("  Bypass: ") +
		valueStyle.Render(FormatRate(r.BypassPerMin)) +
		"   " + createSparkline(m.bypassHistory) + "\n"
	content += labelStyle.Render("  Fail-closed: ") +
		valueStyle.Render(FormatCount(r.FailClosed)) +
		labelStyle.Render("  Degraded: ") +
		valueStyle.Render(FormatRate(r.DegradedPerMin)) +
		labelStyle.Render("  Timeouts: ") +
		valueStyle.Render(FormatCount(r.Timeouts)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Sessions") + "\n"
	content += labelStyle.Render("  Active: ") +
		valueStyle.Render(FormatCount(r.SessionsActive)) +
		"   " + createSparkline(m.sessionsHistory) + "\n"
	load := 0.0
	if m.sessionsPeak > 0 {
		load = min(r.SessionsActive/m.sessionsPeak, 1.0)
	}
	content += labelStyle.Render("  Of peak: ") +
		m.sessionsProgress.ViewAs(load) +
		" " + dimStyle.Render(FormatPercentage(load)) + "\n"
	content += labelStyle.Render("  Loops converged: ") +
		valueStyle.Render(FormatCount(r.Converged)) + "\n"

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
	content += "\n" + footer

	return containerStyle.Render(content)
}
