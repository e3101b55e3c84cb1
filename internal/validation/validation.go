// Package validation runs a task's validator and interprets its verdict,
// artifacts and metrics.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pablasso/phasegate/internal/artifact"
	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/logging"
	"github.com/pablasso/phasegate/internal/proc"
	"go.uber.org/zap"
)

// Status is the verdict of a validation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusBlocked Status = "blocked"
	StatusSkipped Status = "skipped"
)

// MetricsArtifact is the artifact whose numeric fields become metrics.
const MetricsArtifact = "metrics.json"

// Result is the outcome of validating one task.
type Result struct {
	Status Status
	// Artifacts maps each declared artifact name to its full content.
	Artifacts map[string][]byte
	Metrics   map[string]float64
	Message   string
	// Reported lists the artifact paths the validator said it produced.
	Reported []string
}

func failure(msg string, artifacts map[string][]byte) Result {
	if artifacts == nil {
		artifacts = map[string][]byte{}
	}
	return Result{Status: StatusFailure, Artifacts: artifacts, Message: msg}
}

// Request is what a validator gets to work with.
type Request struct {
	Phase string
	Task  checklist.Task
	Spec  checklist.Validation
	// ArtifactDir is the task's artifact directory. It exists.
	ArtifactDir string
	// ArtifactRoot is the root every task directory lives under.
	ArtifactRoot string
	// WorkDir is where task commands run.
	WorkDir string
}

// Validator produces a verdict for one task.
type Validator interface {
	Validate(ctx context.Context, req Request) Result
}

// Validator names.
const (
	ValidatorScript = "script"
	ValidatorGit    = "git"
	ValidatorDocs   = "docs"
)

// Pipeline dispatches tasks to a closed set of validators.
type Pipeline struct {
	validators map[string]Validator
	artifacts  *artifact.Store
	workDir    string
	log        *logging.Logger
}

// NewPipeline wires the built-in validators. Scripts run through runner and
// in its working directory.
func NewPipeline(runner *proc.Runner, artifacts *artifact.Store, log *logging.Logger) *Pipeline {
	if log == nil {
		log = logging.Nop()
	}
	return &Pipeline{
		validators: map[string]Validator{
			ValidatorScript: &ScriptValidator{runner: runner},
			ValidatorGit:    &GitValidator{},
			ValidatorDocs:   &DocsValidator{},
		},
		artifacts: artifacts,
		workDir:   runner.Dir,
		log:       log.Named("validation"),
	}
}

// Validators returns the registered validator names, sorted.
func (p *Pipeline) Validators() []string {
	names := make([]string, 0, len(p.validators))
	for name := range p.validators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate runs the validator the task declares.
func (p *Pipeline) Validate(ctx context.Context, phase string, task checklist.Task) Result {
	if task.Validation == nil {
		return Result{
			Status:    StatusSkipped,
			Artifacts: map[string][]byte{},
			Message:   "no validation configured",
		}
	}

	spec := *task.Validation
	name := spec.Validator
	if name == "" {
		name = ValidatorScript
	}

	v, ok := p.validators[name]
	if !ok {
		return failure(fmt.Sprintf("unknown validator %q", name), nil)
	}

	dir, err := p.artifacts.Ensure(phase, task.Description)
	if err != nil {
		return failure(err.Error(), nil)
	}

	res := v.Validate(ctx, Request{
		Phase:        phase,
		Task:         task,
		Spec:         spec,
		ArtifactDir:  dir,
		ArtifactRoot: p.artifacts.Root(),
		WorkDir:      p.workDir,
	})
	if res.Artifacts == nil {
		res.Artifacts = map[string][]byte{}
	}
	mergeMetrics(&res)

	fields := []zap.Field{
		zap.String("phase", phase),
		zap.String("task", task.Description),
		zap.String("validator", name),
		zap.String("status", string(res.Status)),
		zap.Int("artifacts", len(res.Artifacts)),
	}
	if res.Status == StatusFailure {
		p.log.Warn(ctx, "validation failed", append(fields, zap.String("message", res.Message))...)
	} else {
		p.log.Debug(ctx, "validation finished", fields...)
	}
	return res
}

// mergeMetrics folds the numeric fields of metrics.json into res.Metrics.
// Malformed documents and non-numeric fields are ignored.
func mergeMetrics(res *Result) {
	data, ok := res.Artifacts[MetricsArtifact]
	if !ok {
		return
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return
	}
	for k, v := range doc {
		f, ok := v.(float64)
		if !ok {
			continue
		}
		if res.Metrics == nil {
			res.Metrics = make(map[string]float64)
		}
		res.Metrics[k] = f
	}
}
