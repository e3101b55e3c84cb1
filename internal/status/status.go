package status

import "fmt"

// Status is the lifecycle state of a phase or task.
type Status string

// Status constants. The string values are what the status document stores.
const (
	NotStarted Status = "not_started"
	InProgress Status = "in_progress"
	Completed  Status = "completed"
	Failed     Status = "failed"
	Blocked    Status = "blocked"
)

// IsTerminal reports whether s ends a phase or task lifecycle.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed || s == Blocked
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case NotStarted, InProgress, Completed, Failed, Blocked:
		return true
	}
	return false
}

// TransitionError reports a status change that would break monotonic progress.
type TransitionError struct {
	Subject string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for %s: %s -> %s", e.Subject, e.From, e.To)
}

// checkTransition enforces not_started -> in_progress -> terminal.
func checkTransition(subject string, from, to Status) error {
	if !to.Valid() {
		return &TransitionError{Subject: subject, From: from, To: to}
	}
	switch from {
	case NotStarted:
		if to == InProgress {
			return nil
		}
	case InProgress:
		if to.IsTerminal() {
			return nil
		}
	}
	return &TransitionError{Subject: subject, From: from, To: to}
}
