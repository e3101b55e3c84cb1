package checklist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const wrappedJSON = `{
  "checklist": {
    "name": "Release",
    "phases": [
      {
        "name": "Setup",
        "success_gate": {"metric": "test_coverage", "min_value": 80},
        "tasks": [
          {
            "description": "Check git",
            "command": "git --version",
            "cursor_prompt": "explain the failure",
            "validation": {"script": "validate_git.py", "artifacts": ["git.log"]},
            "blockers": [
              {"type": "MissingTool", "resolution": {"diagnostics": "which git", "required_experts": ["DevOps"]}}
            ]
          }
        ]
      }
    ]
  }
}`

const bareYAML = `
name: Release
phases:
  - name: Setup
    tasks:
      - description: Check git
        command: git --version
        blockers:
          - type: Flaky
            resolution:
              lmstudio_prompt: is it fixed?
`

const bareTOML = `
name = "Release"

[[phases]]
name = "Setup"

[[phases.tasks]]
description = "Check git"
command = "git --version"
`

func TestParse_WrappedJSON(t *testing.T) {
	cl, err := Parse([]byte(wrappedJSON), FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cl.Name != "Release" {
		t.Errorf("Name = %q, want Release", cl.Name)
	}
	if len(cl.Phases) != 1 || len(cl.Phases[0].Tasks) != 1 {
		t.Fatalf("unexpected shape: %+v", cl.Phases)
	}

	phase := cl.Phases[0]
	if phase.SuccessGate == nil || phase.SuccessGate.Metric != "test_coverage" || phase.SuccessGate.MinValue != 80 {
		t.Errorf("unexpected success gate: %+v", phase.SuccessGate)
	}

	task := phase.Tasks[0]
	if task.Command != "git --version" {
		t.Errorf("Command = %q", task.Command)
	}
	if task.Validation == nil || task.Validation.Script != "validate_git.py" {
		t.Errorf("unexpected validation: %+v", task.Validation)
	}
	if got := task.Blockers[0].Resolution.RequiredExperts; len(got) != 1 || got[0] != "DevOps" {
		t.Errorf("RequiredExperts = %v", got)
	}
	if task.Extra["cursor_prompt"] != "explain the failure" {
		t.Errorf("pass-through field lost: %v", task.Extra)
	}
	if _, ok := task.Extra["command"]; ok {
		t.Error("known field leaked into Extra")
	}
}

func TestParse_BareYAML(t *testing.T) {
	cl, err := Parse([]byte(bareYAML), FormatYAML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := cl.Phases[0].Tasks[0].Blockers[0].Resolution.Prompt()
	if got != "is it fixed?" {
		t.Errorf("Prompt() = %q, want legacy lmstudio_prompt value", got)
	}
}

func TestParse_TOML(t *testing.T) {
	cl, err := Parse([]byte(bareTOML), FormatTOML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cl.TaskCount() != 1 {
		t.Errorf("TaskCount() = %d, want 1", cl.TaskCount())
	}
}

func TestParse_FormatErrors(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		reason string
	}{
		{"missing phases", `{"checklist": {"name": "x"}}`, "missing 'phases'"},
		{"missing tasks", `{"name": "x", "phases": [{"name": "p"}]}`, "missing 'tasks'"},
		{"null tasks", `{"name": "x", "phases": [{"name": "p", "tasks": null}]}`, "missing 'tasks'"},
		{"unnamed phase", `{"phases": [{"tasks": []}]}`, "has no name"},
		{"duplicate phase", `{"phases": [{"name": "p", "tasks": []}, {"name": "p", "tasks": []}]}`, "duplicate phase"},
		{"duplicate task", `{"phases": [{"name": "p", "tasks": [{"description": "a"}, {"description": "a"}]}]}`, "duplicate task"},
		{"task without description", `{"phases": [{"name": "p", "tasks": [{"command": "true"}]}]}`, "no description"},
		{"gate without metric", `{"phases": [{"name": "p", "tasks": [], "success_gate": {"min_value": 1}}]}`, "no metric"},
		{"unknown aggregate", `{"phases": [{"name": "p", "tasks": [], "success_gate": {"metric": "m", "aggregate": "median"}}]}`, "unknown aggregate"},
		{"wrapper not an object", `{"checklist": []}`, "must be an object"},
		{"not json", `{"phases": `, "unexpected end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), FormatJSON)
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FormatError, got %v", err)
			}
			if !strings.Contains(fe.Error(), tt.reason) {
				t.Errorf("error %q does not mention %q", fe.Error(), tt.reason)
			}
		})
	}
}

func TestParse_EmptyTaskListIsValid(t *testing.T) {
	cl, err := Parse([]byte(`{"name": "x", "phases": [{"name": "p", "tasks": []}]}`), FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cl.TaskCount() != 0 {
		t.Errorf("TaskCount() = %d, want 0", cl.TaskCount())
	}
}

func TestLoad_FindsByExtension(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "release.yml"), []byte(bareYAML), 0644); err != nil {
		t.Fatalf("failed to write checklist: %v", err)
	}

	cl, err := Load(dir, "release")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cl.ID != "release" {
		t.Errorf("ID = %q, want release", cl.ID)
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(t.TempDir(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadFile_FormatErrorCarriesSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte(`{"name": "x"}`), 0644); err != nil {
		t.Fatalf("failed to write checklist: %v", err)
	}

	_, err := LoadFile(path)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if fe.Source != path {
		t.Errorf("Source = %q, want %q", fe.Source, path)
	}
}

func TestTask_MarshalKeepsExtra(t *testing.T) {
	task := Task{Description: "d", Extra: map[string]any{"implementation_data": "x"}}

	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var back Task
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back.Description != "d" || back.Extra["implementation_data"] != "x" {
		t.Errorf("unexpected round trip: %+v", back)
	}
}
