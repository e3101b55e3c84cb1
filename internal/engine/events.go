package engine

import (
	"time"

	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/status"
)

// TaskReport describes a task that reached a terminal status.
type TaskReport struct {
	Phase    string
	Task     string
	Status   status.Status
	Message  string
	Duration time.Duration
	Metrics  map[string]float64
}

// Events receives callbacks during checklist execution.
// The display, the TUI and the metrics collector implement it.
type Events interface {
	// OnRunStart is called once the run lock is held and the document is
	// ready. reset lists the "phase/task" keys restarted from a previous run.
	OnRunStart(cl *checklist.Checklist, doc status.Document, reset []string)

	// OnPhaseStart is called when a phase that is not yet completed begins.
	OnPhaseStart(phase string, index, total int)

	// OnTaskStart is called before a task's blockers are checked.
	// taskNum counts every task of the checklist, skipped ones included.
	OnTaskStart(phase, task string, taskNum, total int)

	// OnTaskFinished is called when a task reaches a terminal status.
	OnTaskFinished(report TaskReport)

	// OnPhaseFinished is called when a phase reaches a terminal status.
	OnPhaseFinished(phase string, st status.Status, message string)

	// OnRunFinished is called last, whatever the outcome.
	OnRunFinished(outcome Outcome, duration time.Duration)
}

// NopEvents ignores every callback.
type NopEvents struct{}

func (NopEvents) OnRunStart(*checklist.Checklist, status.Document, []string) {}
func (NopEvents) OnPhaseStart(string, int, int)                              {}
func (NopEvents) OnTaskStart(string, string, int, int)                       {}
func (NopEvents) OnTaskFinished(TaskReport)                                  {}
func (NopEvents) OnPhaseFinished(string, status.Status, string)              {}
func (NopEvents) OnRunFinished(Outcome, time.Duration)                       {}

// MultiEvents fans every callback out to each sink in order.
type MultiEvents []Events

func (m MultiEvents) OnRunStart(cl *checklist.Checklist, doc status.Document, reset []string) {
	for _, e := range m {
		e.OnRunStart(cl, doc, reset)
	}
}

func (m MultiEvents) OnPhaseStart(phase string, index, total int) {
	for _, e := range m {
		e.OnPhaseStart(phase, index, total)
	}
}

func (m MultiEvents) OnTaskStart(phase, task string, taskNum, total int) {
	for _, e := range m {
		e.OnTaskStart(phase, task, taskNum, total)
	}
}

func (m MultiEvents) OnTaskFinished(report TaskReport) {
	for _, e := range m {
		e.OnTaskFinished(report)
	}
}

func (m MultiEvents) OnPhaseFinished(phase string, st status.Status, message string) {
	for _, e := range m {
		e.OnPhaseFinished(phase, st, message)
	}
}

func (m MultiEvents) OnRunFinished(outcome Outcome, duration time.Duration) {
	for _, e := range m {
		e.OnRunFinished(outcome, duration)
	}
}
