package checklist

import (
	"encoding/json"
	"fmt"
)

// Checklist is a named, ordered collection of phases.
type Checklist struct {
	// ID is the identity the checklist was selected by (its file stem).
	// The status document is keyed by it.
	ID     string  `json:"-"`
	Name   string  `json:"name"`
	Phases []Phase `json:"phases"`
}

// Phase groups ordered tasks and an optional success gate.
type Phase struct {
	Name        string       `json:"name"`
	Tasks       []Task       `json:"tasks"`
	SuccessGate *SuccessGate `json:"success_gate,omitempty"`
}

// Task is a single unit of work inside a phase.
type Task struct {
	Description string      `json:"description"`
	Command     string      `json:"command,omitempty"`
	Validation  *Validation `json:"validation,omitempty"`
	Blockers    []Blocker   `json:"blockers,omitempty"`

	// Extra holds every key the checklist declares for the task that phasegate
	// does not interpret. It is handed to the assistant untouched.
	Extra map[string]any `json:"-"`
}

// Validation describes how a task's outcome is validated.
type Validation struct {
	// Validator selects a registered validator. Empty means "script".
	Validator string         `json:"validator,omitempty"`
	Script    string         `json:"script,omitempty"`
	Artifacts []string       `json:"artifacts,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// Blocker is a precondition checked before a task runs.
type Blocker struct {
	Type       string     `json:"type"`
	Resolution Resolution `json:"resolution"`
}

// Resolution describes how a blocker can be resolved automatically.
type Resolution struct {
	Diagnostics     string   `json:"diagnostics,omitempty"`
	RequiredExperts []string `json:"required_experts,omitempty"`
	AssistantPrompt string   `json:"assistant_prompt,omitempty"`
	LMStudioPrompt  string   `json:"lmstudio_prompt,omitempty"`
}

// Prompt returns the assistant prompt, honouring the legacy lmstudio_prompt key.
func (r Resolution) Prompt() string {
	if r.AssistantPrompt != "" {
		return r.AssistantPrompt
	}
	return r.LMStudioPrompt
}

// SuccessGate is a numeric threshold checked once every task in a phase completed.
type SuccessGate struct {
	Metric   string  `json:"metric"`
	MinValue float64 `json:"min_value"`
	// Aggregate selects how values reported by several tasks are combined.
	// Empty means AggregateMin.
	Aggregate string `json:"aggregate,omitempty"`
}

// Gate aggregation rules.
const (
	AggregateMin  = "min"
	AggregateMax  = "max"
	AggregateMean = "mean"
	AggregateSum  = "sum"
	AggregateLast = "last"
)

var knownAggregates = map[string]bool{
	"":            true,
	AggregateMin:  true,
	AggregateMax:  true,
	AggregateMean: true,
	AggregateSum:  true,
	AggregateLast: true,
}

var taskKeys = map[string]bool{
	"description": true,
	"command":     true,
	"validation":  true,
	"blockers":    true,
}

// UnmarshalJSON decodes the known task fields and keeps the rest in Extra.
func (t *Task) UnmarshalJSON(data []byte) error {
	type plainTask Task
	var pt plainTask
	if err := json.Unmarshal(data, &pt); err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if taskKeys[k] {
			continue
		}
		if pt.Extra == nil {
			pt.Extra = make(map[string]any)
		}
		pt.Extra[k] = v
	}

	*t = Task(pt)
	return nil
}

// MarshalJSON writes the known task fields followed by the pass-through ones.
func (t Task) MarshalJSON() ([]byte, error) {
	type plainTask Task
	known, err := json.Marshal(plainTask(t))
	if err != nil {
		return nil, err
	}
	if len(t.Extra) == 0 {
		return known, nil
	}

	merged := make(map[string]any, len(t.Extra)+4)
	for k, v := range t.Extra {
		merged[k] = v
	}
	var fields map[string]any
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Validate checks the structural rules a checklist must satisfy before it can run.
func (c *Checklist) Validate() error {
	if c == nil {
		return &FormatError{Reason: "checklist is empty"}
	}
	if c.Phases == nil {
		return &FormatError{Reason: "missing 'phases' key"}
	}

	seenPhases := make(map[string]bool, len(c.Phases))
	for i, p := range c.Phases {
		if p.Name == "" {
			return &FormatError{Reason: fmt.Sprintf("phase %d has no name", i+1)}
		}
		if seenPhases[p.Name] {
			return &FormatError{Reason: fmt.Sprintf("duplicate phase name %q", p.Name)}
		}
		seenPhases[p.Name] = true

		if p.Tasks == nil {
			return &FormatError{Reason: fmt.Sprintf("phase %q is missing 'tasks' key", p.Name)}
		}

		seenTasks := make(map[string]bool, len(p.Tasks))
		for j, t := range p.Tasks {
			if t.Description == "" {
				return &FormatError{Reason: fmt.Sprintf("task %d in phase %q has no description", j+1, p.Name)}
			}
			if seenTasks[t.Description] {
				return &FormatError{Reason: fmt.Sprintf("duplicate task %q in phase %q", t.Description, p.Name)}
			}
			seenTasks[t.Description] = true

			for k, b := range t.Blockers {
				if b.Type == "" {
					return &FormatError{Reason: fmt.Sprintf("blocker %d of task %q has no type", k+1, t.Description)}
				}
			}
		}

		if g := p.SuccessGate; g != nil {
			if g.Metric == "" {
				return &FormatError{Reason: fmt.Sprintf("success gate of phase %q has no metric", p.Name)}
			}
			if !knownAggregates[g.Aggregate] {
				return &FormatError{Reason: fmt.Sprintf("success gate of phase %q has unknown aggregate %q", p.Name, g.Aggregate)}
			}
		}
	}

	return nil
}

// TaskCount returns the number of tasks across all phases.
func (c *Checklist) TaskCount() int {
	n := 0
	for i := range c.Phases {
		n += len(c.Phases[i].Tasks)
	}
	return n
}

// Phase returns the phase with the given name.
func (c *Checklist) Phase(name string) (*Phase, bool) {
	for i := range c.Phases {
		if c.Phases[i].Name == name {
			return &c.Phases[i], true
		}
	}
	return nil, false
}
