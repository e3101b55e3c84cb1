package status

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrLocked is returned when another live process holds the run lock.
var ErrLocked = errors.New("checklist is already running")

// RunLock guards a checklist's status document against concurrent runs.
// The lock file holds the owner's PID; locks left behind by dead processes
// are reclaimed.
type RunLock struct {
	path string
}

// NewRunLock creates a lock for checklist id inside dir.
func NewRunLock(dir, id string) *RunLock {
	return &RunLock{path: filepath.Join(dir, sanitizeID(id)+".lock")}
}

// Path returns the lock file location.
func (l *RunLock) Path() string {
	return l.path
}

// Acquire takes the lock or returns an error wrapping ErrLocked.
func (l *RunLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	err := l.create()
	if err == nil {
		return nil
	}
	if !os.IsExist(err) {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	held, pid, err := l.holder()
	if err != nil {
		return err
	}
	if held {
		return fmt.Errorf("%w (PID %d)", ErrLocked, pid)
	}

	// One retry only; losing the race here means someone else got it.
	if err := l.create(); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: lock taken during retry", ErrLocked)
		}
		return fmt.Errorf("failed to create lock file on retry: %w", err)
	}
	return nil
}

// Release removes the lock file. Releasing an absent lock is a no-op.
func (l *RunLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// IsLocked reports whether a live process holds the lock.
// Stale lock files are removed as a side effect.
func (l *RunLock) IsLocked() (bool, error) {
	held, _, err := l.holder()
	return held, err
}

func (l *RunLock) create() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, werr := fmt.Fprintf(f, "%d", os.Getpid())
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(l.path)
		return fmt.Errorf("failed to write lock file: %w", werr)
	}
	return nil
}

// holder reads the lock file and clears it when its owner is gone.
func (l *RunLock) holder() (bool, int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("failed to read lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err == nil && processAlive(pid) {
		return true, pid, nil
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return false, 0, fmt.Errorf("failed to remove stale lock file: %w", err)
	}
	return false, 0, nil
}

// processAlive probes pid with signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if pid == os.Getpid() {
		return true
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
