// Package tui implements the `conductor watch` live dashboard.
package tui

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/conductor/internal/api"
	"github.com/Iron-Ham/conductor/internal/util"
)

// Fetcher loads a status snapshot. api.Client.Status satisfies it.
type Fetcher func(ctx context.Context) (api.StatusResponse, error)

type panel int

const (
	panelTasks panel = iota
	panelRecent
	panelWorkers
	panelWorkflows
	panelCount
)

var panelNames = [panelCount]string{"Active", "Recent", "Workers", "Workflows"}

// Messages

type statusMsg struct {
	status api.StatusResponse
	err    error
}

type tickMsg time.Time

// Model is the bubbletea model of the dashboard.
type Model struct {
	fetch    Fetcher
	interval time.Duration
	timeout  time.Duration

	status    api.StatusResponse
	loaded    bool
	err       error
	updatedAt time.Time

	panel  panel
	width  int
	height int
}

// NewModel creates a dashboard that refreshes every interval.
func NewModel(fetch Fetcher, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return Model{
		fetch:    fetch,
		interval: interval,
		timeout:  5 * time.Second,
		width:    100,
	}
}

// Commands

func (m Model) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		s, err := m.fetch(ctx)
		return statusMsg{status: s, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the first fetch.
func (m Model) Init() tea.Cmd {
	return m.fetchCmd()
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case statusMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.status = msg.status
			m.loaded = true
			m.updatedAt = msg.status.GeneratedAt
		}
		return m, m.tick()

	case tickMsg:
		return m, m.fetchCmd()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "r":
		return m, m.fetchCmd()
	case "tab", "l", "right":
		m.panel = (m.panel + 1) % panelCount
	case "shift+tab", "h", "left":
		m.panel = (m.panel + panelCount - 1) % panelCount
	case "1", "2", "3", "4":
		m.panel = panel(msg.String()[0] - '1')
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder

	title := titleStyle.Render("conductor")
	if !m.updatedAt.IsZero() {
		title += mutedStyle.Render("  updated " + m.updatedAt.Format("15:04:05"))
	}
	b.WriteString(title)
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(util.TruncateANSI("error: "+m.err.Error(), m.width)))
		b.WriteString("\n")
	}
	if !m.loaded {
		b.WriteString(mutedStyle.Render("connecting..."))
		b.WriteString("\n")
		b.WriteString(m.footer())
		return b.String()
	}

	b.WriteString(renderSummary(m.status))
	b.WriteString("\n\n")
	b.WriteString(m.tabs())
	b.WriteString("\n")
	b.WriteString(box.Width(max(m.width-2, 20)).Render(strings.TrimRight(m.panelBody(), "\n")))
	b.WriteString("\n")
	b.WriteString(m.footer())
	return b.String()
}

func (m Model) tabs() string {
	tabs := make([]string, panelCount)
	for i, name := range panelNames {
		if panel(i) == m.panel {
			tabs[i] = tabActive.Render(name)
		} else {
			tabs[i] = tabInactive.Render(name)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) panelBody() string {
	width := max(m.width-6, 20)
	s := m.status
	switch m.panel {
	case panelRecent:
		return renderTasks(s.Recent, s.GeneratedAt, width)
	case panelWorkers:
		return renderWorkers(s, width)
	case panelWorkflows:
		return renderExecutions(s.Executions, s.GeneratedAt, width)
	default:
		return renderTasks(s.Active, s.GeneratedAt, width)
	}
}

func (m Model) footer() string {
	help := "tab/1-4 switch panel · r refresh · q quit"
	if m.err != nil && m.loaded {
		help = warningStyle.Render("showing last good snapshot") + mutedStyle.Render(" · ") + mutedStyle.Render(help)
		return help
	}
	return mutedStyle.Render(help)
}

// Run starts the dashboard and blocks until the user quits or ctx ends.
func Run(ctx context.Context, fetch Fetcher, interval time.Duration) error {
	_, err := tea.NewProgram(
		NewModel(fetch, interval),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
