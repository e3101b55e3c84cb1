package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/engine"
	"github.com/pablasso/phasegate/internal/status"
)

// RunStartedMsg is sent once the engine holds the run lock.
type RunStartedMsg struct {
	Checklist *checklist.Checklist
	Doc       status.Document
	Reset     []string
}

// PhaseStartedMsg is sent when a phase begins.
type PhaseStartedMsg struct {
	Phase        string
	Index, Total int
}

// TaskStartedMsg is sent before a task's blockers are checked.
type TaskStartedMsg struct {
	Phase   string
	Task    string
	TaskNum int
	Total   int
}

// TaskFinishedMsg is sent when a task reaches a terminal status.
type TaskFinishedMsg struct {
	Report engine.TaskReport
}

// PhaseFinishedMsg is sent when a phase reaches a terminal status.
type PhaseFinishedMsg struct {
	Phase   string
	Status  status.Status
	Message string
}

// RunFinishedMsg carries the run outcome.
type RunFinishedMsg struct {
	Outcome  engine.Outcome
	Duration time.Duration
}

// RunErrorMsg is sent when the engine returned before producing an outcome,
// for example because the checklist is already running.
type RunErrorMsg struct {
	Err error
}

// sender is the part of *tea.Program the events bridge needs.
type sender interface {
	Send(msg tea.Msg)
}

// ProgramEvents forwards engine callbacks to a Bubble Tea program.
type ProgramEvents struct {
	program sender
}

// NewProgramEvents creates an engine.Events implementation that sends
// messages to the given program.
func NewProgramEvents(program *tea.Program) *ProgramEvents {
	return &ProgramEvents{program: program}
}

// OnRunStart implements engine.Events.
func (e *ProgramEvents) OnRunStart(cl *checklist.Checklist, doc status.Document, reset []string) {
	e.program.Send(RunStartedMsg{Checklist: cl, Doc: doc, Reset: reset})
}

// OnPhaseStart implements engine.Events.
func (e *ProgramEvents) OnPhaseStart(phase string, index, total int) {
	e.program.Send(PhaseStartedMsg{Phase: phase, Index: index, Total: total})
}

// OnTaskStart implements engine.Events.
func (e *ProgramEvents) OnTaskStart(phase, task string, taskNum, total int) {
	e.program.Send(TaskStartedMsg{Phase: phase, Task: task, TaskNum: taskNum, Total: total})
}

// OnTaskFinished implements engine.Events.
func (e *ProgramEvents) OnTaskFinished(report engine.TaskReport) {
	e.program.Send(TaskFinishedMsg{Report: report})
}

// OnPhaseFinished implements engine.Events.
func (e *ProgramEvents) OnPhaseFinished(phase string, st status.Status, message string) {
	e.program.Send(PhaseFinishedMsg{Phase: phase, Status: st, Message: message})
}

// OnRunFinished implements engine.Events.
func (e *ProgramEvents) OnRunFinished(outcome engine.Outcome, duration time.Duration) {
	e.program.Send(RunFinishedMsg{Outcome: outcome, Duration: duration})
}

var _ engine.Events = (*ProgramEvents)(nil)
