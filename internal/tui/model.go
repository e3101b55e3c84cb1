// Package tui implements the full-screen run monitor.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/engine"
	"github.com/pablasso/phasegate/internal/status"
	"github.com/pablasso/phasegate/internal/tui/styles"
)

// runState represents the current state of the monitor.
type runState int

const (
	stateRunning runState = iota
	stateCancelling
	stateDone
)

// maxLogLines bounds the finished-task log kept on screen.
const maxLogLines = 200

// TaskDisplay holds display information for a task.
type TaskDisplay struct {
	Title   string
	Status  status.Status
	Message string
}

// PhaseDisplay holds display information for a phase.
type PhaseDisplay struct {
	Name    string
	Status  status.Status
	Message string
	Tasks   []TaskDisplay
}

// Model is the Bubble Tea model of the run monitor.
type Model struct {
	state      runState
	name       string
	phases     []PhaseDisplay
	totalTasks int
	current    int // 1-indexed task counter across the checklist
	phase      string
	task       string
	startTime  time.Time
	now        time.Time

	spinner spinner.Model
	cancel  context.CancelFunc
	log     []string

	outcome  engine.Outcome
	duration time.Duration
	err      error

	width  int
	height int
}

// NewModel builds a monitor for cl. Statuses start from doc so a resumed
// run shows the tasks a previous run already completed.
func NewModel(cl *checklist.Checklist, doc status.Document, cancel context.CancelFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.PhaseStyle

	name := cl.Name
	if name == "" {
		name = cl.ID
	}

	m := Model{
		state:      stateRunning,
		name:       name,
		totalTasks: cl.TaskCount(),
		spinner:    s,
		cancel:     cancel,
		startTime:  time.Now(),
	}
	m.now = m.startTime
	m.phases = phasesFrom(cl, doc)
	return m
}

func phasesFrom(cl *checklist.Checklist, doc status.Document) []PhaseDisplay {
	phases := make([]PhaseDisplay, 0, len(cl.Phases))
	for _, p := range cl.Phases {
		pd := PhaseDisplay{Name: p.Name, Status: doc.PhaseStatus(p.Name)}
		for _, t := range p.Tasks {
			pd.Tasks = append(pd.Tasks, TaskDisplay{
				Title:  t.Description,
				Status: doc.TaskStatus(p.Name, t.Description),
			})
		}
		phases = append(phases, pd)
	}
	return phases
}

type tickMsg time.Time

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case spinner.TickMsg:
		if m.state == stateDone {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		m.now = time.Time(msg)
		if m.state == stateDone {
			return m, nil
		}
		return m, tickCmd()

	case RunStartedMsg:
		m.phases = phasesFrom(msg.Checklist, msg.Doc)
		m.totalTasks = msg.Checklist.TaskCount()
		if len(msg.Reset) > 0 {
			m.appendLog(styles.SubtleStyle.Render(fmt.Sprintf("resumed: %d task(s) restarted", len(msg.Reset))))
		}
		return m, nil

	case PhaseStartedMsg:
		m.phase = msg.Phase
		if p := m.findPhase(msg.Phase); p != nil {
			p.Status = status.InProgress
		}
		return m, nil

	case TaskStartedMsg:
		m.phase = msg.Phase
		m.task = msg.Task
		m.current = msg.TaskNum
		if t := m.findTask(msg.Phase, msg.Task); t != nil {
			t.Status = status.InProgress
		}
		return m, nil

	case TaskFinishedMsg:
		r := msg.Report
		if t := m.findTask(r.Phase, r.Task); t != nil {
			t.Status = r.Status
			t.Message = r.Message
		}
		line := fmt.Sprintf("%s %s/%s", styles.ForStatus(r.Status).Render(styles.Indicator(r.Status)), r.Phase, r.Task)
		if r.Message != "" && r.Status != status.Completed {
			line += styles.SubtleStyle.Render(": " + r.Message)
		}
		m.appendLog(line)
		return m, nil

	case PhaseFinishedMsg:
		if p := m.findPhase(msg.Phase); p != nil {
			p.Status = msg.Status
			p.Message = msg.Message
		}
		return m, nil

	case RunFinishedMsg:
		m.state = stateDone
		m.outcome = msg.Outcome
		m.duration = msg.Duration
		return m, nil

	case RunErrorMsg:
		m.state = stateDone
		m.err = msg.Err
		return m, nil
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if m.state == stateDone {
			return m, tea.Quit
		}
		if m.state == stateRunning {
			m.state = stateCancelling
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil
	case "enter":
		if m.state == stateDone {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (m *Model) findPhase(name string) *PhaseDisplay {
	for i := range m.phases {
		if m.phases[i].Name == name {
			return &m.phases[i]
		}
	}
	return nil
}

func (m *Model) findTask(phase, task string) *TaskDisplay {
	p := m.findPhase(phase)
	if p == nil {
		return nil
	}
	for i := range p.Tasks {
		if p.Tasks[i].Title == task {
			return &p.Tasks[i]
		}
	}
	return nil
}

// View implements tea.Model.
func (m Model) View() string {
	width := m.width
	if width == 0 {
		width = 80
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	leftWidth := width*45/100 - 2
	rightWidth := width - leftWidth - 6
	if leftWidth < 20 {
		leftWidth = 20
	}
	if rightWidth < 20 {
		rightWidth = 20
	}

	height := m.height - 4
	if height < 5 {
		height = 5
	}

	left := styles.BoxStyle.Width(leftWidth).Height(height - 2).Render(m.renderPhases(height - 2))
	right := styles.BoxStyle.Width(rightWidth).Height(height - 2).Render(m.renderLog(height - 2))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar(width))
	return b.String()
}

func (m Model) renderHeader() string {
	switch {
	case m.err != nil:
		return styles.ErrorStyle.Render(fmt.Sprintf("%s: %v", m.name, m.err))
	case m.state == stateDone:
		return m.renderOutcome()
	}

	task := "waiting"
	if m.current > 0 {
		task = fmt.Sprintf("Task %d/%d: %s", m.current, m.totalTasks, m.task)
	}
	elapsed := m.now.Sub(m.startTime)
	return fmt.Sprintf("%s %s │ %s │ %s │ ⏱ %s",
		m.spinner.View(), styles.TitleStyle.UnsetMarginBottom().Render(m.name), m.phase, task, formatDuration(elapsed))
}

func (m Model) renderOutcome() string {
	o := m.outcome
	d := formatDuration(m.duration)
	switch o.Result {
	case engine.ResultCompleted:
		return styles.SuccessStyle.Render(fmt.Sprintf("✓ %s completed in %s", m.name, d))
	case engine.ResultCancelled:
		return styles.SubtleStyle.Render(fmt.Sprintf("%s cancelled after %s", m.name, d))
	case engine.ResultBlocked:
		return styles.WarningStyle.Render(fmt.Sprintf("⊘ %s blocked after %s: %s", m.name, d, o.Message))
	default:
		return styles.ErrorStyle.Render(fmt.Sprintf("✗ %s failed after %s: %s", m.name, d, o.Message))
	}
}

func (m Model) renderPhases(maxLines int) string {
	var lines []string
	for _, p := range m.phases {
		lines = append(lines, styles.ForStatus(p.Status).Bold(true).Render(styles.Indicator(p.Status)+" "+p.Name))
		for _, t := range p.Tasks {
			ind := styles.ForStatus(t.Status).Render(styles.Indicator(t.Status))
			if t.Status == status.InProgress && m.state != stateDone {
				ind = m.spinner.View()
			}
			lines = append(lines, "  "+ind+" "+t.Title)
		}
		if p.Message != "" {
			lines = append(lines, styles.SubtleStyle.Render("    "+p.Message))
		}
	}
	return tail(lines, maxLines)
}

func (m Model) renderLog(maxLines int) string {
	if len(m.log) == 0 {
		return styles.SubtleStyle.Render("no tasks finished yet")
	}
	return tail(m.log, maxLines)
}

func (m Model) renderStatusBar(width int) string {
	var items []string
	switch m.state {
	case stateRunning:
		items = []string{"Running...", "q/Ctrl+C Cancel"}
	case stateCancelling:
		items = []string{"Stopping...", "Waiting for the current task"}
	default:
		items = []string{"Enter/q Quit"}
		if m.outcome.PersistenceErrors > 0 {
			items = append(items, fmt.Sprintf("%d status write(s) failed", m.outcome.PersistenceErrors))
		}
	}
	return styles.StatusBarStyle.Width(width).Render(strings.Join(items, " • "))
}

func tail(lines []string, n int) string {
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
