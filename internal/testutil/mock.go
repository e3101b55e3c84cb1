// Package testutil provides helpers shared by phasegate tests.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
)

// CommandFunc matches exec.CommandContext. Packages that shell out expose a
// variable of this type so tests can swap the process.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// MockCommandFunc creates a mock command that prints output and exits 0.
// Usage: assistant.CommandContext = testutil.MockCommandFunc(jsonResponse)
func MockCommandFunc(output string) CommandFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "printf", "%s", output)
	}
}

// MockFailingCommandFunc creates a mock command that writes stderr and exits
// with code.
func MockFailingCommandFunc(stderr string, code int) CommandFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, "sh", "-c", `printf '%s' "$MOCK_STDERR" >&2; exit "$MOCK_CODE"`)
		cmd.Env = append(os.Environ(), "MOCK_STDERR="+stderr, "MOCK_CODE="+strconv.Itoa(code))
		return cmd
	}
}

// CommandRecorder wraps a CommandFunc and keeps the argv of every call.
type CommandRecorder struct {
	mu    sync.Mutex
	calls [][]string
	next  CommandFunc
}

// NewCommandRecorder records calls and delegates them to next.
func NewCommandRecorder(next CommandFunc) *CommandRecorder {
	return &CommandRecorder{next: next}
}

// Func returns the recording CommandFunc.
func (r *CommandRecorder) Func() CommandFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		r.mu.Lock()
		r.calls = append(r.calls, append([]string{name}, args...))
		r.mu.Unlock()
		return r.next(ctx, name, args...)
	}
}

// Calls returns the recorded argv slices.
func (r *CommandRecorder) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// SetupTestDir creates a temp directory, resolves symlinks (for macOS),
// changes to it, and registers cleanup to restore the original working directory.
// Returns the resolved temp directory path.
func SetupTestDir(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(tmpDir); err != nil {
		t.Logf("warning: could not resolve symlinks for temp dir: %v", err)
	} else {
		tmpDir = resolved
	}

	originalWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change to temp dir: %v", err)
	}

	t.Cleanup(func() {
		os.Chdir(originalWd)
	})

	return tmpDir
}
