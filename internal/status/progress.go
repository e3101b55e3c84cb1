package status

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Journal event names.
const (
	EventRunStarted    = "run_started"
	EventTaskStarted   = "task_started"
	EventTaskFinished  = "task_finished"
	EventPhaseFinished = "phase_finished"
	EventRunFinished   = "run_finished"
)

// ProgressEvent is one line of the progress journal.
type ProgressEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// ProgressLogger appends run events to <id>_progress.log as JSON lines.
type ProgressLogger struct {
	path  string
	runID string

	mu sync.Mutex
}

// NewProgressLogger creates a journal for checklist id inside dir.
// Every logger gets a fresh run id.
func NewProgressLogger(dir, id string) *ProgressLogger {
	return &ProgressLogger{
		path:  filepath.Join(dir, sanitizeID(id)+"_progress.log"),
		runID: uuid.NewString(),
	}
}

// Path returns the journal location.
func (p *ProgressLogger) Path() string {
	return p.path
}

// RunID identifies the run this logger records.
func (p *ProgressLogger) RunID() string {
	return p.runID
}

// Log appends a single event.
func (p *ProgressLogger) Log(event string, data map[string]any) error {
	line, err := json.Marshal(ProgressEvent{
		Timestamp: time.Now().UTC(),
		RunID:     p.runID,
		Event:     event,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode progress event: %w", err)
	}
	line = append(line, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open progress log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to write progress log: %w", err)
	}
	return nil
}

func (p *ProgressLogger) RunStarted(checklistID string, reset []string) error {
	return p.Log(EventRunStarted, map[string]any{
		"checklist": checklistID,
		"reset":     reset,
	})
}

func (p *ProgressLogger) TaskStarted(phase, task string) error {
	return p.Log(EventTaskStarted, map[string]any{
		"phase": phase,
		"task":  task,
	})
}

func (p *ProgressLogger) TaskFinished(phase, task string, st Status, message string) error {
	data := map[string]any{
		"phase":  phase,
		"task":   task,
		"status": string(st),
	}
	if message != "" {
		data["message"] = message
	}
	return p.Log(EventTaskFinished, data)
}

func (p *ProgressLogger) PhaseFinished(phase string, st Status) error {
	return p.Log(EventPhaseFinished, map[string]any{
		"phase":  phase,
		"status": string(st),
	})
}

func (p *ProgressLogger) RunFinished(result string, duration time.Duration) error {
	return p.Log(EventRunFinished, map[string]any{
		"result":      result,
		"duration_ms": duration.Milliseconds(),
	})
}

// ReadProgress returns every event in the journal at path, oldest first.
func ReadProgress(path string) ([]ProgressEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read progress log: %w", err)
	}

	var events []ProgressEvent
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var ev ProgressEvent
		if err := dec.Decode(&ev); err != nil {
			return events, fmt.Errorf("failed to parse progress log: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}
