// Package blocker decides whether a task's declared blockers still apply.
package blocker

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/pablasso/phasegate/internal/assistant"
	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/logging"
	"github.com/pablasso/phasegate/internal/proc"
	"go.uber.org/zap"
)

// Rule names which check decided a blocker.
type Rule string

const (
	RuleDiagnostics Rule = "diagnostics"
	RuleAssistant   Rule = "assistant"
	RuleExperts     Rule = "required_experts"
	RuleDefault     Rule = "default"
)

// Decision is the verdict for a single blocker.
type Decision struct {
	Blocker  checklist.Blocker
	Rule     Rule
	Resolved bool
	Reason   string
}

// Resolver applies the resolution rules in fixed precedence: diagnostics
// command, then assistant prompt, then required experts. Only the first rule a
// blocker declares is consulted.
type Resolver struct {
	runner    *proc.Runner
	assistant assistant.Assistant
	log       *logging.Logger
}

// NewResolver creates a resolver. A nil assistant behaves like assistant.Nop.
func NewResolver(runner *proc.Runner, a assistant.Assistant, log *logging.Logger) *Resolver {
	if a == nil {
		a = assistant.Nop{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Resolver{runner: runner, assistant: a, log: log.Named("blocker")}
}

// Resolve returns the blockers that remain unresolved, in declared order.
func (r *Resolver) Resolve(ctx context.Context, phase string, task checklist.Task, blockers []checklist.Blocker) []checklist.Blocker {
	var unresolved []checklist.Blocker
	for _, d := range r.Decide(ctx, phase, task, blockers) {
		if !d.Resolved {
			unresolved = append(unresolved, d.Blocker)
		}
	}
	return unresolved
}

// Decide returns one decision per blocker, in declared order.
func (r *Resolver) Decide(ctx context.Context, phase string, task checklist.Task, blockers []checklist.Blocker) []Decision {
	decisions := make([]Decision, 0, len(blockers))
	for _, b := range blockers {
		d := r.decide(ctx, phase, task, b)
		fields := []zap.Field{
			zap.String("phase", phase),
			zap.String("task", task.Description),
			zap.String("blocker", b.Type),
			zap.String("rule", string(d.Rule)),
		}
		if d.Resolved {
			r.log.Debug(ctx, "blocker resolved", fields...)
		} else {
			r.log.Warn(ctx, "blocker unresolved", append(fields, zap.String("reason", d.Reason))...)
		}
		decisions = append(decisions, d)
	}
	return decisions
}

func (r *Resolver) decide(ctx context.Context, phase string, task checklist.Task, b checklist.Blocker) Decision {
	res := b.Resolution
	switch {
	case res.Diagnostics != "":
		resolved, reason := r.runDiagnostics(ctx, res.Diagnostics)
		return Decision{Blocker: b, Rule: RuleDiagnostics, Resolved: resolved, Reason: reason}

	case res.Prompt() != "":
		resolved, reason := r.ask(ctx, phase, task, res.Prompt())
		return Decision{Blocker: b, Rule: RuleAssistant, Resolved: resolved, Reason: reason}

	case res.RequiredExperts != nil:
		if len(res.RequiredExperts) > 0 {
			return Decision{Blocker: b, Rule: RuleExperts, Reason: "requires " + strings.Join(res.RequiredExperts, ", ")}
		}
		return Decision{Blocker: b, Rule: RuleExperts, Resolved: true}
	}

	return Decision{Blocker: b, Rule: RuleDefault, Resolved: true}
}

// runDiagnostics treats a non-zero exit as unresolved. On a zero exit, a JSON
// object on stdout whose status is not "success" is also unresolved; any
// other output is accepted.
func (r *Resolver) runDiagnostics(ctx context.Context, command string) (bool, string) {
	result := r.runner.Shell(ctx, command)
	if !result.OK() {
		return false, "diagnostics failed: " + result.Failure()
	}

	var report map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(result.Stdout), &report); err != nil {
		return true, ""
	}
	status, ok := report["status"]
	if !ok {
		return true, ""
	}
	if s, _ := status.(string); s == "success" {
		return true, ""
	}
	return false, "diagnostics reported status " + toString(status)
}

func (r *Resolver) ask(ctx context.Context, phase string, task checklist.Task, text string) (bool, string) {
	reply, err := r.assistant.Query(ctx, assistant.Prompt{
		Phase: phase,
		Task:  task.Description,
		Text:  text,
		Extra: task.Extra,
	})
	if err != nil {
		return false, "assistant error: " + err.Error()
	}
	if strings.Contains(strings.ToLower(reply), "resolved") {
		return true, ""
	}
	return false, "assistant: " + truncate(reply, 200)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
