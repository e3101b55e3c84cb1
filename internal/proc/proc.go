// Package proc runs external processes synchronously and reports their
// outcome as values. Exit codes, start failures and timeouts never escape
// as errors from Run; callers inspect the Result instead.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
	"unicode/utf8"
)

// CommandContext is the function used to create exec.Cmd instances.
// It can be replaced in tests to mock command execution.
var CommandContext = exec.CommandContext

// ErrTimeout is recorded in Result.Err when a process outlives its timeout.
var ErrTimeout = errors.New("process timed out")

// waitDelay bounds how long Wait blocks on pipes held open by orphaned
// children after the process was killed.
const waitDelay = 2 * time.Second

// Spec describes a single process invocation.
type Spec struct {
	Name string
	Args []string
	// Dir is the working directory. Empty means the current one.
	Dir string
	// Env is appended to the parent environment.
	Env []string
}

// Result is the outcome of a process invocation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	// Err is set when the process could not be started, timed out, or was
	// cancelled. ExitCode is -1 in that case.
	Err      error
	TimedOut bool
}

// OK reports whether the process ran and exited with status 0.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Failure describes why the invocation did not succeed, preferring stderr.
func (r Result) Failure() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if msg := Tail(r.Stderr, 2048); msg != "" {
		return fmt.Sprintf("exit status %d: %s", r.ExitCode, msg)
	}
	return fmt.Sprintf("exit status %d", r.ExitCode)
}

// Runner executes processes with a shared timeout and working directory.
type Runner struct {
	// Timeout kills processes running longer than this. Zero disables it.
	Timeout time.Duration
	// Dir is used when a Spec does not set its own.
	Dir string
}

// New creates a Runner with the given timeout.
func New(timeout time.Duration) *Runner {
	return &Runner{Timeout: timeout}
}

// Shell runs command through sh -c.
func (r *Runner) Shell(ctx context.Context, command string, env ...string) Result {
	return r.Run(ctx, Spec{Name: "sh", Args: []string{"-c", command}, Env: env})
}

// Run executes spec and waits for it to finish.
func (r *Runner) Run(ctx context.Context, spec Spec) Result {
	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := CommandContext(runCtx, spec.Name, spec.Args...)
	cmd.WaitDelay = waitDelay
	cmd.Dir = spec.Dir
	if cmd.Dir == "" {
		cmd.Dir = r.Dir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	switch {
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.Err = ctx.Err()
	case runCtx.Err() == context.DeadlineExceeded:
		res.ExitCode = -1
		res.TimedOut = true
		res.Err = fmt.Errorf("%w after %s", ErrTimeout, r.Timeout)
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Err = fmt.Errorf("failed to run %s: %w", spec.Name, err)
		}
	}

	return res
}

// Tail returns at most the last n bytes of b as trimmed text. The excerpt
// never starts inside a multi-byte character.
func Tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		b = b[len(b)-n:]
		for len(b) > 0 && !utf8.RuneStart(b[0]) {
			b = b[1:]
		}
	}
	return string(b)
}
