// Package engine drives a checklist through its phases and tasks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pablasso/phasegate/internal/artifact"
	"github.com/pablasso/phasegate/internal/blocker"
	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/logging"
	"github.com/pablasso/phasegate/internal/proc"
	"github.com/pablasso/phasegate/internal/status"
	"github.com/pablasso/phasegate/internal/validation"
	"go.uber.org/zap"
)

// BlockedPolicy decides what a blocked task does to the rest of the run.
type BlockedPolicy string

const (
	// BlockedHalt stops the run at the first blocked task.
	BlockedHalt BlockedPolicy = "halt"
	// BlockedContinue finishes the blocked task's phase and moves on to the
	// next phases. The phase itself ends blocked.
	BlockedContinue BlockedPolicy = "continue"
)

// ParseBlockedPolicy validates a policy name. Empty means BlockedHalt.
func ParseBlockedPolicy(s string) (BlockedPolicy, error) {
	switch BlockedPolicy(strings.ToLower(s)) {
	case "", BlockedHalt:
		return BlockedHalt, nil
	case BlockedContinue:
		return BlockedContinue, nil
	}
	return "", fmt.Errorf("invalid blocked policy %q (want %s or %s)", s, BlockedHalt, BlockedContinue)
}

// Result summarises how a run ended.
type Result string

const (
	ResultCompleted Result = "completed"
	ResultFailed    Result = "failed"
	ResultBlocked   Result = "blocked"
	ResultCancelled Result = "cancelled"
)

// Outcome is the value Execute returns for every run that got past locking.
type Outcome struct {
	Result Result
	// Phase and Task identify where the run stopped. Task is empty when a
	// phase failed on its success gate.
	Phase   string
	Task    string
	Message string
	// PersistenceErrors counts status writes that failed during the run.
	PersistenceErrors int
	// Reset lists the "phase/task" keys restarted from a previous run.
	Reset []string
}

// ExitCode maps the outcome to a process exit status.
func (o Outcome) ExitCode() int {
	if o.Result == ResultCompleted {
		return 0
	}
	return 1
}

// RunContext holds every collaborator of a run. Nothing is global.
type RunContext struct {
	Status     *status.Store
	Artifacts  *artifact.Store
	Blockers   *blocker.Resolver
	Validation *validation.Pipeline
	Runner     *proc.Runner
	Log        *logging.Logger
	Events     Events
}

func (rc *RunContext) check() error {
	var missing []string
	if rc.Status == nil {
		missing = append(missing, "status store")
	}
	if rc.Artifacts == nil {
		missing = append(missing, "artifact store")
	}
	if rc.Blockers == nil {
		missing = append(missing, "blocker resolver")
	}
	if rc.Validation == nil {
		missing = append(missing, "validation pipeline")
	}
	if rc.Runner == nil {
		missing = append(missing, "process runner")
	}
	if len(missing) > 0 {
		return fmt.Errorf("run context is missing: %s", strings.Join(missing, ", "))
	}
	if rc.Log == nil {
		rc.Log = logging.Nop()
	}
	if rc.Events == nil {
		rc.Events = NopEvents{}
	}
	return nil
}

// Options tune engine behaviour.
type Options struct {
	BlockedPolicy BlockedPolicy
}

// ErrNotLoaded is returned by Execute before a checklist was loaded.
var ErrNotLoaded = errors.New("no checklist loaded")

// Engine executes one checklist. It is not safe for concurrent use.
type Engine struct {
	rc   RunContext
	opts Options
	log  *logging.Logger

	cl  *checklist.Checklist
	doc status.Document

	progress    *status.ProgressLogger
	persistErrs int
}

// New creates an engine from a run context.
func New(rc RunContext, opts Options) (*Engine, error) {
	if err := rc.check(); err != nil {
		return nil, err
	}
	if opts.BlockedPolicy == "" {
		opts.BlockedPolicy = BlockedHalt
	}
	if _, err := ParseBlockedPolicy(string(opts.BlockedPolicy)); err != nil {
		return nil, err
	}
	return &Engine{rc: rc, opts: opts, log: rc.Log.Named("engine")}, nil
}

// Load validates cl and attaches its status document: the persisted one when
// it exists, with newly declared phases and tasks added as not started, or a
// fresh one that is persisted immediately.
func (e *Engine) Load(cl *checklist.Checklist) error {
	if err := cl.Validate(); err != nil {
		return err
	}
	if cl.ID == "" {
		return fmt.Errorf("checklist has no identity")
	}

	doc, err := e.rc.Status.Load(cl.ID)
	if err != nil {
		return err
	}

	e.cl = cl
	e.doc = doc
	if e.doc.Reconcile(cl) {
		e.persist(context.Background())
	}
	return nil
}

// Checklist returns the loaded checklist.
func (e *Engine) Checklist() *checklist.Checklist {
	return e.cl
}

// Status returns a copy of the current status document.
func (e *Engine) Status() status.Document {
	return e.doc.Clone()
}

// Execute runs every unfinished phase in order. Recoverable outcomes such
// as failed or blocked tasks are reported in the Outcome; the error is
// reserved for locking problems, cancellation and internal faults.
func (e *Engine) Execute(ctx context.Context) (Outcome, error) {
	if e.cl == nil {
		return Outcome{}, ErrNotLoaded
	}

	lock := status.NewRunLock(e.rc.Status.Dir(), e.cl.ID)
	if err := lock.Acquire(); err != nil {
		return Outcome{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			e.log.Warn(ctx, "failed to release run lock", zap.Error(err))
		}
	}()

	// Another run may have written the document since Load.
	doc, err := e.rc.Status.Load(e.cl.ID)
	if err != nil {
		return Outcome{}, err
	}
	e.doc = doc
	e.doc.Reconcile(e.cl)
	e.persistErrs = 0

	reset := e.doc.ResetIncomplete(e.cl)
	e.persist(ctx)

	e.progress = status.NewProgressLogger(e.rc.Status.Dir(), e.cl.ID)
	ctx = logging.WithRun(ctx, logging.RunInfo{RunID: e.progress.RunID(), Checklist: e.cl.ID})
	e.journal(ctx, e.progress.RunStarted(e.cl.ID, reset))
	e.log.Info(ctx, "run started",
		zap.Int("phases", len(e.cl.Phases)),
		zap.Int("tasks", e.cl.TaskCount()),
		zap.Strings("reset", reset),
	)

	start := time.Now()
	e.rc.Events.OnRunStart(e.cl, e.doc.Clone(), reset)

	outcome, err := e.run(ctx)
	outcome.Reset = reset
	outcome.PersistenceErrors = e.persistErrs

	duration := time.Since(start)
	e.journal(ctx, e.progress.RunFinished(string(outcome.Result), duration))
	e.rc.Events.OnRunFinished(outcome, duration)

	fields := []zap.Field{
		zap.String("result", string(outcome.Result)),
		zap.Duration("duration", duration),
		zap.Int("persistence_errors", outcome.PersistenceErrors),
	}
	if outcome.Result == ResultCompleted {
		e.log.Info(ctx, "run finished", fields...)
	} else {
		e.log.Warn(ctx, "run finished", append(fields,
			zap.String("phase", outcome.Phase),
			zap.String("task", outcome.Task),
			zap.String("message", outcome.Message),
		)...)
	}
	return outcome, err
}

func (e *Engine) run(ctx context.Context) (Outcome, error) {
	total := e.cl.TaskCount()
	taskNum := 0
	var blocked *Outcome

	for pi := range e.cl.Phases {
		phase := &e.cl.Phases[pi]

		if e.doc.PhaseStatus(phase.Name) == status.Completed {
			taskNum += len(phase.Tasks)
			continue
		}

		if err := ctx.Err(); err != nil {
			return cancelled(phase.Name, ""), err
		}

		e.rc.Events.OnPhaseStart(phase.Name, pi+1, len(e.cl.Phases))
		if err := e.setPhase(ctx, phase.Name, status.InProgress); err != nil {
			return Outcome{Result: ResultFailed, Phase: phase.Name, Message: err.Error()}, err
		}

		var phaseBlocked *Outcome
		for ti := range phase.Tasks {
			task := &phase.Tasks[ti]
			taskNum++

			if e.doc.TaskStatus(phase.Name, task.Description) == status.Completed {
				continue
			}
			if err := ctx.Err(); err != nil {
				return cancelled(phase.Name, task.Description), err
			}

			st, msg, err := e.runTask(ctx, phase, task, taskNum, total)
			if err != nil {
				if ctx.Err() != nil {
					return cancelled(phase.Name, task.Description), err
				}
				return Outcome{Result: ResultFailed, Phase: phase.Name, Task: task.Description, Message: err.Error()}, err
			}

			switch st {
			case status.Failed:
				if err := e.finishPhase(ctx, phase.Name, status.Failed, msg); err != nil {
					return Outcome{}, err
				}
				return Outcome{Result: ResultFailed, Phase: phase.Name, Task: task.Description, Message: msg}, nil

			case status.Blocked:
				if phaseBlocked == nil {
					phaseBlocked = &Outcome{Result: ResultBlocked, Phase: phase.Name, Task: task.Description, Message: msg}
				}
				if e.opts.BlockedPolicy == BlockedHalt {
					if err := e.finishPhase(ctx, phase.Name, status.Blocked, msg); err != nil {
						return Outcome{}, err
					}
					return *phaseBlocked, nil
				}
			}
		}

		if phaseBlocked != nil {
			if err := e.finishPhase(ctx, phase.Name, status.Blocked, phaseBlocked.Message); err != nil {
				return Outcome{}, err
			}
			if blocked == nil {
				blocked = phaseBlocked
			}
			continue
		}

		if msg := e.evaluateGate(phase); msg != "" {
			if err := e.finishPhase(ctx, phase.Name, status.Failed, msg); err != nil {
				return Outcome{}, err
			}
			return Outcome{Result: ResultFailed, Phase: phase.Name, Message: msg}, nil
		}

		if err := e.finishPhase(ctx, phase.Name, status.Completed, ""); err != nil {
			return Outcome{}, err
		}
	}

	if blocked != nil {
		return *blocked, nil
	}
	return Outcome{Result: ResultCompleted}, nil
}

func cancelled(phase, task string) Outcome {
	return Outcome{Result: ResultCancelled, Phase: phase, Task: task, Message: "run cancelled"}
}

// runTask takes one task from not_started to a terminal status. A non-nil
// error means the task was interrupted and left in_progress.
func (e *Engine) runTask(ctx context.Context, phase *checklist.Phase, task *checklist.Task, taskNum, total int) (status.Status, string, error) {
	e.rc.Events.OnTaskStart(phase.Name, task.Description, taskNum, total)
	e.journal(ctx, e.progress.TaskStarted(phase.Name, task.Description))
	if err := e.setTask(ctx, phase.Name, task.Description, status.InProgress); err != nil {
		return "", "", err
	}

	start := time.Now()
	st, msg, metrics := e.evaluateTask(ctx, phase, task)
	if err := ctx.Err(); err != nil {
		e.log.Warn(ctx, "task interrupted", zap.String("phase", phase.Name), zap.String("task", task.Description))
		return "", "", err
	}

	e.doc.SetTaskMetrics(phase.Name, task.Description, metrics)
	if err := e.setTask(ctx, phase.Name, task.Description, st); err != nil {
		return "", "", err
	}

	report := TaskReport{
		Phase:    phase.Name,
		Task:     task.Description,
		Status:   st,
		Message:  msg,
		Duration: time.Since(start),
		Metrics:  metrics,
	}
	e.journal(ctx, e.progress.TaskFinished(phase.Name, task.Description, st, msg))
	e.rc.Events.OnTaskFinished(report)

	fields := []zap.Field{
		zap.String("phase", phase.Name),
		zap.String("task", task.Description),
		zap.String("status", string(st)),
		zap.Duration("duration", report.Duration),
	}
	if st == status.Completed {
		e.log.Info(ctx, "task finished", fields...)
	} else {
		e.log.Warn(ctx, "task finished", append(fields, zap.String("message", msg))...)
	}
	return st, msg, nil
}

// evaluateTask applies blockers, then the command, then validation.
func (e *Engine) evaluateTask(ctx context.Context, phase *checklist.Phase, task *checklist.Task) (status.Status, string, map[string]float64) {
	if len(task.Blockers) > 0 {
		unresolved := e.rc.Blockers.Resolve(ctx, phase.Name, *task, task.Blockers)
		if len(unresolved) > 0 {
			types := make([]string, len(unresolved))
			for i, b := range unresolved {
				types[i] = b.Type
			}
			return status.Blocked, "unresolved blockers: " + strings.Join(types, ", "), nil
		}
	}

	if task.Command != "" {
		res := e.rc.Runner.Shell(ctx, task.Command)
		if !res.OK() {
			return status.Failed, "command failed: " + res.Failure(), nil
		}
	}

	vr := e.rc.Validation.Validate(ctx, phase.Name, *task)
	switch vr.Status {
	case validation.StatusSuccess, validation.StatusSkipped:
		return status.Completed, "", vr.Metrics
	case validation.StatusBlocked:
		msg := vr.Message
		if msg == "" {
			msg = "validation blocked"
		}
		return status.Blocked, msg, vr.Metrics
	default:
		return status.Failed, vr.Message, vr.Metrics
	}
}

func (e *Engine) finishPhase(ctx context.Context, phase string, st status.Status, msg string) error {
	if err := e.setPhase(ctx, phase, st); err != nil {
		return err
	}
	e.journal(ctx, e.progress.PhaseFinished(phase, st))
	e.rc.Events.OnPhaseFinished(phase, st, msg)
	return nil
}

func (e *Engine) setPhase(ctx context.Context, phase string, st status.Status) error {
	if err := e.doc.SetPhase(phase, st); err != nil {
		return err
	}
	e.persist(ctx)
	return nil
}

func (e *Engine) setTask(ctx context.Context, phase, task string, st status.Status) error {
	if err := e.doc.SetTask(phase, task, st); err != nil {
		return err
	}
	e.persist(ctx)
	return nil
}

// persist writes the whole document. A failed write is logged and counted;
// the in-memory document stays authoritative and the next transition writes
// it again.
func (e *Engine) persist(ctx context.Context) {
	if err := e.rc.Status.Save(e.cl.ID, e.doc); err != nil {
		e.persistErrs++
		e.log.Warn(ctx, "failed to persist status", zap.Error(err))
	}
}

func (e *Engine) journal(ctx context.Context, err error) {
	if err != nil {
		e.log.Warn(ctx, "failed to write progress journal", zap.Error(err))
	}
}
