package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"httpbench/internal/runner"
	"httpbench/internal/stats"
	"httpbench/internal/tui/styles"
)

// Model is the live run dashboard: counters, latency quantiles and a
// completion progress bar, fed by the runner's snapshot channel.
type Model struct {
	Stats    stats.Snapshot
	Progress progress.Model

	// Quota is the total request count, or 0 in duration mode.
	Quota     int
	Deadline  time.Duration
	StartTime time.Time

	Done bool

	Width  int
	Height int

	updates runner.SnapshotChan
}

// runFinishedMsg signals the run goroutine has completed.
type runFinishedMsg struct{}

// RunFinished wraps the completion signal for the program.
func RunFinished() tea.Msg { return runFinishedMsg{} }

func NewModel(updates runner.SnapshotChan, quota int, deadline time.Duration) Model {
	return Model{
		Progress:  progress.New(progress.WithDefaultGradient()),
		Quota:     quota,
		Deadline:  deadline,
		StartTime: time.Now(),
		updates:   updates,
	}
}

func (m Model) Init() tea.Cmd {
	return m.waitForSnapshot()
}

func (m Model) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stats.Snapshot:
		m.Stats = msg
		cmd := m.Progress.SetPercent(m.pct())
		return m, tea.Batch(cmd, m.waitForSnapshot())

	case runFinishedMsg:
		m.Done = true
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 4
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m Model) pct() float64 {
	var pct float64
	if m.Quota > 0 {
		pct = float64(m.Stats.Done) / float64(m.Quota)
	} else if m.Deadline > 0 {
		pct = float64(time.Since(m.StartTime)) / float64(m.Deadline)
	}
	if pct > 1.0 {
		pct = 1.0
	}
	return pct
}

func (m Model) View() string {
	s := strings.Builder{}

	s.WriteString(styles.Title.Render("httpbench"))
	s.WriteString("\n\n")

	errRate := 0.0
	if m.Stats.Done > 0 {
		errRate = float64(m.Stats.Failed) / float64(m.Stats.Done) * 100
	}

	errStyle := styles.Success
	if errRate > 1.0 {
		errStyle = styles.Warn
	}
	if errRate > 5.0 {
		errStyle = styles.Error
	}

	col1 := fmt.Sprintf("DONE: %d\nINF: %d", m.Stats.Done, m.Stats.Inflight)
	col2 := fmt.Sprintf("OK: %d\nFAIL: %d", m.Stats.Succeeded, m.Stats.Failed)
	col3 := fmt.Sprintf("ERR: %s\nELAPSED: %s",
		errStyle.Render(fmt.Sprintf("%.2f%%", errRate)),
		time.Since(m.StartTime).Round(time.Second),
	)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(col2),
		styles.Box.Render(col3),
	))
	s.WriteString("\n\n")

	latencies := fmt.Sprintf(
		"P50: %.2f ms  |  P90: %.2f ms  |  P99: %.2f ms  |  Max: %d ms",
		m.Stats.P50TotalMs,
		m.Stats.P90TotalMs,
		m.Stats.P99TotalMs,
		m.Stats.MaxTotalMs,
	)
	s.WriteString(styles.Box.Render(latencies))
	s.WriteString("\n\n")

	s.WriteString(m.Progress.View())
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render("press q to abort"))

	return s.String()
}
