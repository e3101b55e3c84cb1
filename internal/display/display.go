// Package display renders checklist progress on a plain terminal.
package display

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/engine"
	"github.com/pablasso/phasegate/internal/status"
)

// State holds the current display state.
type State struct {
	Phase      string
	TaskNum    int
	TotalTasks int
	TaskTitle  string
	Status     status.Status
	StartTime  time.Time
}

// Display manages the terminal status line. It implements engine.Events.
type Display struct {
	mu       sync.Mutex
	writeMu  sync.Mutex
	writer   io.Writer
	state    State
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
	wg       sync.WaitGroup // Ensures goroutine exits before Stop() returns
	active   bool
	lastLine string
}

// New creates a new Display writing to the given writer.
func New(w io.Writer) *Display {
	return &Display{
		writer:   w,
		interval: time.Second,
		done:     make(chan struct{}),
	}
}

// Start begins the display update loop.
func (d *Display) Start() {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return
	}
	d.active = true
	d.state.StartTime = time.Now()
	d.ticker = time.NewTicker(d.interval)
	d.wg.Add(1)
	d.mu.Unlock()

	go d.updateLoop()
}

// Stop halts the display update loop and clears the status line.
// Blocks until the update goroutine has exited.
func (d *Display) Stop() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.mu.Unlock()

	d.ticker.Stop()
	close(d.done)
	d.wg.Wait()
	d.clearLine()
}

// UpdateTask updates the current task information.
func (d *Display) UpdateTask(phase string, taskNum, totalTasks int, title string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Phase = phase
	d.state.TaskNum = taskNum
	d.state.TotalTasks = totalTasks
	d.state.TaskTitle = title
	d.state.Status = status.InProgress
}

// UpdateStatus updates the execution status.
func (d *Display) UpdateStatus(st status.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Status = st
}

func (d *Display) updateLoop() {
	defer d.wg.Done()
	d.render()
	for {
		select {
		case <-d.ticker.C:
			d.render()
		case <-d.done:
			return
		}
	}
}

// render draws the current status line if it changed.
func (d *Display) render() {
	d.mu.Lock()
	line := formatLine(d.state, time.Since(d.state.StartTime))
	if line == d.lastLine {
		d.mu.Unlock()
		return
	}
	d.lastLine = line
	d.mu.Unlock()

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	fmt.Fprintf(d.writer, "\r\033[K%s", line)
}

// formatLine creates the status line string.
func formatLine(state State, elapsed time.Duration) string {
	if state.TotalTasks == 0 {
		return ""
	}

	title := truncate(state.TaskTitle, 40)
	phase := truncate(state.Phase, 24)

	return fmt.Sprintf("%s │ Task %d/%d: %s │ ⏱ %s │ %s",
		phase,
		state.TaskNum,
		state.TotalTasks,
		title,
		formatDuration(elapsed),
		state.Status)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func (d *Display) clearLine() {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	fmt.Fprintf(d.writer, "\r\033[K")
}

// PrintAbove prints a message above the status line.
func (d *Display) PrintAbove(format string, args ...interface{}) {
	d.writeMu.Lock()
	fmt.Fprintf(d.writer, "\r\033[K"+format+"\n", args...)
	d.writeMu.Unlock()

	// Force the next render to redraw the line we just cleared.
	d.mu.Lock()
	d.lastLine = ""
	active := d.active
	d.mu.Unlock()
	if active {
		d.render()
	}
}

// formatDuration formats a duration as MM:SS or HH:MM:SS.
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

// OnRunStart implements engine.Events.
func (d *Display) OnRunStart(cl *checklist.Checklist, _ status.Document, reset []string) {
	name := cl.Name
	if name == "" {
		name = cl.ID
	}
	d.PrintAbove("Running checklist %s (%d phases, %d tasks)", name, len(cl.Phases), cl.TaskCount())
	if len(reset) > 0 {
		d.PrintAbove("Resuming: %d task(s) restarted from a previous run", len(reset))
	}
}

// OnPhaseStart implements engine.Events.
func (d *Display) OnPhaseStart(phase string, index, total int) {
	d.PrintAbove("Phase %d/%d: %s", index, total, phase)
}

// OnTaskStart implements engine.Events.
func (d *Display) OnTaskStart(phase, task string, taskNum, total int) {
	d.UpdateTask(phase, taskNum, total, task)
}

// OnTaskFinished implements engine.Events.
func (d *Display) OnTaskFinished(r engine.TaskReport) {
	d.UpdateStatus(r.Status)
	line := fmt.Sprintf("  %s %s (%s)", indicator(r.Status), r.Task, formatDuration(r.Duration))
	if r.Message != "" && r.Status != status.Completed {
		line += ": " + r.Message
	}
	d.PrintAbove("%s", line)
}

// OnPhaseFinished implements engine.Events.
func (d *Display) OnPhaseFinished(phase string, st status.Status, message string) {
	if message != "" {
		d.PrintAbove("%s %s: %s", indicator(st), phase, message)
		return
	}
	d.PrintAbove("%s %s %s", indicator(st), phase, st)
}

// OnRunFinished implements engine.Events.
func (d *Display) OnRunFinished(o engine.Outcome, duration time.Duration) {
	switch o.Result {
	case engine.ResultCompleted:
		d.PrintAbove("Checklist completed in %s", formatDuration(duration))
	case engine.ResultCancelled:
		d.PrintAbove("Run cancelled after %s", formatDuration(duration))
	default:
		d.PrintAbove("Checklist %s after %s: %s", o.Result, formatDuration(duration), o.Message)
	}
	if o.PersistenceErrors > 0 {
		d.PrintAbove("Warning: %d status write(s) failed; the status file may be stale", o.PersistenceErrors)
	}
}

func indicator(st status.Status) string {
	switch st {
	case status.Completed:
		return "✓"
	case status.Failed:
		return "✗"
	case status.Blocked:
		return "⊘"
	default:
		return "•"
	}
}

var _ engine.Events = (*Display)(nil)
