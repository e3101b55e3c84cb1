package display

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/engine"
	"github.com/pablasso/phasegate/internal/status"
	"go.uber.org/goleak"
)

// syncBuffer guards a bytes.Buffer so the update goroutine and the test can
// share it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{name: "zero duration", duration: 0, expected: "00:00"},
		{name: "seconds only", duration: 45 * time.Second, expected: "00:45"},
		{name: "minutes and seconds", duration: 5*time.Minute + 30*time.Second, expected: "05:30"},
		{name: "59 minutes 59 seconds", duration: 59*time.Minute + 59*time.Second, expected: "59:59"},
		{name: "one hour", duration: time.Hour, expected: "01:00:00"},
		{name: "hours minutes seconds", duration: 2*time.Hour + 34*time.Minute + 56*time.Second, expected: "02:34:56"},
		{name: "rounds to nearest second", duration: 5*time.Minute + 30*time.Second + 500*time.Millisecond, expected: "05:31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatLine(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		elapsed  time.Duration
		expected string
	}{
		{
			name: "running task",
			state: State{
				Phase:      "Setup",
				TaskNum:    1,
				TotalTasks: 5,
				TaskTitle:  "Check git",
				Status:     status.InProgress,
			},
			elapsed:  time.Minute + 30*time.Second,
			expected: "Setup │ Task 1/5: Check git │ ⏱ 01:30 │ in_progress",
		},
		{
			name:     "zero total tasks returns empty",
			state:    State{},
			expected: "",
		},
		{
			name: "failed task",
			state: State{
				Phase:      "Deploy",
				TaskNum:    2,
				TotalTasks: 4,
				TaskTitle:  "Push image",
				Status:     status.Failed,
			},
			elapsed:  10 * time.Minute,
			expected: "Deploy │ Task 2/4: Push image │ ⏱ 10:00 │ failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatLine(tt.state, tt.elapsed)
			if result != tt.expected {
				t.Errorf("formatLine() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestFormatLine_LongTitle(t *testing.T) {
	tests := []struct {
		name           string
		title          string
		expectedInLine string
	}{
		{"exactly 40 chars", strings.Repeat("a", 40), strings.Repeat("a", 40)},
		{"41 chars truncated", strings.Repeat("a", 41), strings.Repeat("a", 37) + "..."},
		{"short title unchanged", "Short title", "Short title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := State{Phase: "P", TaskNum: 1, TotalTasks: 5, TaskTitle: tt.title, Status: status.InProgress}
			result := formatLine(state, time.Minute)

			expectedPrefix := "P │ Task 1/5: " + tt.expectedInLine + " │"
			if !strings.HasPrefix(result, expectedPrefix) {
				t.Errorf("formatLine() with title %q:\ngot:  %q\nwant prefix: %q", tt.title, result, expectedPrefix)
			}
		})
	}
}

func TestDisplay_StartStopDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	buf := &syncBuffer{}
	d := New(buf)
	d.interval = 10 * time.Millisecond

	d.Start()
	d.Start() // second start is a no-op
	d.UpdateTask("Setup", 1, 2, "Check git")
	time.Sleep(50 * time.Millisecond)
	d.Stop()
	d.Stop()

	if !strings.Contains(buf.String(), "Task 1/2: Check git") {
		t.Errorf("status line never rendered, output: %q", buf.String())
	}
	if !strings.HasSuffix(buf.String(), "\r\033[K") {
		t.Errorf("Stop() should clear the status line, output: %q", buf.String())
	}
}

func TestDisplay_Events(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)

	cl := &checklist.Checklist{
		ID:   "release",
		Name: "Release",
		Phases: []checklist.Phase{
			{Name: "Setup", Tasks: []checklist.Task{{Description: "a"}, {Description: "b"}}},
		},
	}

	d.OnRunStart(cl, status.NewDocument(cl), []string{"Setup/a"})
	d.OnPhaseStart("Setup", 1, 1)
	d.OnTaskStart("Setup", "a", 1, 2)
	d.OnTaskFinished(engine.TaskReport{Phase: "Setup", Task: "a", Status: status.Completed, Duration: 2 * time.Second})
	d.OnTaskStart("Setup", "b", 2, 2)
	d.OnTaskFinished(engine.TaskReport{Phase: "Setup", Task: "b", Status: status.Failed, Message: "command failed: exit status 1"})
	d.OnPhaseFinished("Setup", status.Failed, "")
	d.OnRunFinished(engine.Outcome{Result: engine.ResultFailed, Message: "task b failed", PersistenceErrors: 2}, 3*time.Second)

	out := buf.String()
	for _, want := range []string{
		"Running checklist Release (1 phases, 2 tasks)",
		"1 task(s) restarted",
		"Phase 1/1: Setup",
		"✓ a (00:02)",
		"✗ b (00:00): command failed: exit status 1",
		"✗ Setup failed",
		"Checklist failed after 00:03: task b failed",
		"2 status write(s) failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDisplay_PrintAboveKeepsPercentLiteral(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)

	d.OnTaskFinished(engine.TaskReport{Task: "coverage", Status: status.Failed, Message: "below 80%"})

	if !strings.Contains(buf.String(), "below 80%") || strings.Contains(buf.String(), "%!") {
		t.Errorf("message was mangled: %q", buf.String())
	}
}

func TestRenderStatus(t *testing.T) {
	cl := &checklist.Checklist{
		ID:   "release",
		Name: "Release",
		Phases: []checklist.Phase{
			{
				Name:        "Build",
				Tasks:       []checklist.Task{{Description: "compile"}, {Description: "test"}},
				SuccessGate: &checklist.SuccessGate{Metric: "coverage", MinValue: 80},
			},
			{Name: "Ship", Tasks: []checklist.Task{{Description: "tag"}}},
		},
	}
	doc := status.NewDocument(cl)
	if err := doc.SetTask("Build", "compile", status.InProgress); err != nil {
		t.Fatalf("SetTask: %v", err)
	}
	if err := doc.SetTask("Build", "compile", status.Completed); err != nil {
		t.Fatalf("SetTask: %v", err)
	}
	doc.SetTaskMetrics("Build", "compile", map[string]float64{"coverage": 91.5, "lint": 0})

	out := RenderStatus(cl, doc)

	for _, want := range []string{
		"Release",
		"Build",
		"compile",
		"coverage=91.5 lint=0",
		"gate: min(coverage) >= 80",
		"Ship",
		"1/3 tasks completed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderStatus() missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Build") > strings.Index(out, "Ship") {
		t.Error("phases should follow checklist order")
	}
}
