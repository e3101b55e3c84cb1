package status

import (
	"github.com/pablasso/phasegate/internal/checklist"
)

// Document maps phase names to their persisted state. It is the on-disk
// status document, one per checklist identity.
type Document map[string]*PhaseState

// PhaseState is the persisted state of a single phase.
type PhaseState struct {
	Status Status            `json:"status"`
	Tasks  map[string]Status `json:"tasks"`
	// TaskMetrics keeps validation metrics per task so a resumed run can
	// still evaluate the phase's success gate.
	TaskMetrics map[string]map[string]float64 `json:"task_metrics,omitempty"`
}

// NewDocument returns a document with every phase and task not started.
func NewDocument(cl *checklist.Checklist) Document {
	doc := Document{}
	doc.Reconcile(cl)
	return doc
}

// Reconcile adds not_started entries for phases and tasks that the checklist
// declares but the document does not know about yet. Existing entries are kept.
// It reports whether anything was added.
func (d Document) Reconcile(cl *checklist.Checklist) bool {
	changed := false
	for _, p := range cl.Phases {
		ps, ok := d[p.Name]
		if !ok || ps == nil {
			ps = &PhaseState{Status: NotStarted}
			d[p.Name] = ps
			changed = true
		}
		if !ps.Status.Valid() {
			ps.Status = NotStarted
			changed = true
		}
		if ps.Tasks == nil {
			ps.Tasks = make(map[string]Status, len(p.Tasks))
		}
		for _, t := range p.Tasks {
			if s, ok := ps.Tasks[t.Description]; !ok || !s.Valid() {
				ps.Tasks[t.Description] = NotStarted
				changed = true
			}
		}
	}
	return changed
}

// PhaseStatus returns the status of a phase, not_started when unknown.
func (d Document) PhaseStatus(phase string) Status {
	if ps, ok := d[phase]; ok && ps != nil {
		return ps.Status
	}
	return NotStarted
}

// TaskStatus returns the status of a task, not_started when unknown.
func (d Document) TaskStatus(phase, task string) Status {
	if ps, ok := d[phase]; ok && ps != nil {
		if s, ok := ps.Tasks[task]; ok {
			return s
		}
	}
	return NotStarted
}

// SetPhase moves a phase to a new status, enforcing monotonic progress.
func (d Document) SetPhase(phase string, to Status) error {
	ps := d.phase(phase)
	if err := checkTransition("phase "+phase, ps.Status, to); err != nil {
		return err
	}
	ps.Status = to
	return nil
}

// SetTask moves a task to a new status, enforcing monotonic progress.
func (d Document) SetTask(phase, task string, to Status) error {
	ps := d.phase(phase)
	from, ok := ps.Tasks[task]
	if !ok {
		from = NotStarted
	}
	if err := checkTransition("task "+phase+"/"+task, from, to); err != nil {
		return err
	}
	ps.Tasks[task] = to
	return nil
}

// SetTaskMetrics records the validation metrics reported by a task.
func (d Document) SetTaskMetrics(phase, task string, metrics map[string]float64) {
	if len(metrics) == 0 {
		return
	}
	ps := d.phase(phase)
	if ps.TaskMetrics == nil {
		ps.TaskMetrics = make(map[string]map[string]float64)
	}
	copied := make(map[string]float64, len(metrics))
	for k, v := range metrics {
		copied[k] = v
	}
	ps.TaskMetrics[task] = copied
}

// TaskMetrics returns the metrics recorded for a task, or nil.
func (d Document) TaskMetrics(phase, task string) map[string]float64 {
	if ps, ok := d[phase]; ok && ps != nil {
		return ps.TaskMetrics[task]
	}
	return nil
}

// ResetIncomplete starts a new attempt for everything a previous run left
// unfinished: phases and tasks that are not completed go back to not_started.
// Completed tasks are left untouched, and so are completed phases whose tasks
// are all completed. A phase that ended failed or blocked with every task
// completed failed its success gate; its tasks start over and their metrics
// are dropped so the gate is measured again. It returns the "phase/task" keys
// reset.
func (d Document) ResetIncomplete(cl *checklist.Checklist) []string {
	var reset []string
	for _, p := range cl.Phases {
		ps := d.phase(p.Name)
		rerun := (ps.Status == Failed || ps.Status == Blocked) && len(p.Tasks) > 0
		if ps.Status != Completed {
			ps.Status = NotStarted
		}
		for _, t := range p.Tasks {
			if ps.Tasks[t.Description] != Completed {
				rerun = false
			}
		}
		for _, t := range p.Tasks {
			s := ps.Tasks[t.Description]
			if s != Completed {
				// A task added to an already completed phase reopens it.
				ps.Status = NotStarted
			}
			if s == NotStarted || (s == Completed && !rerun) {
				continue
			}
			ps.Tasks[t.Description] = NotStarted
			delete(ps.TaskMetrics, t.Description)
			reset = append(reset, p.Name+"/"+t.Description)
		}
	}
	return reset
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for name, ps := range d {
		if ps == nil {
			continue
		}
		cp := &PhaseState{
			Status: ps.Status,
			Tasks:  make(map[string]Status, len(ps.Tasks)),
		}
		for k, v := range ps.Tasks {
			cp.Tasks[k] = v
		}
		if ps.TaskMetrics != nil {
			cp.TaskMetrics = make(map[string]map[string]float64, len(ps.TaskMetrics))
			for task, m := range ps.TaskMetrics {
				mm := make(map[string]float64, len(m))
				for k, v := range m {
					mm[k] = v
				}
				cp.TaskMetrics[task] = mm
			}
		}
		out[name] = cp
	}
	return out
}

func (d Document) phase(name string) *PhaseState {
	ps, ok := d[name]
	if !ok || ps == nil {
		ps = &PhaseState{Status: NotStarted}
		d[name] = ps
	}
	if ps.Tasks == nil {
		ps.Tasks = make(map[string]Status)
	}
	return ps
}
