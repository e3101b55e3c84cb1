package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/engine"
	"github.com/pablasso/phasegate/internal/status"
)

// ExecuteFunc runs a checklist, reporting progress to events.
type ExecuteFunc func(ctx context.Context, events engine.Events) (engine.Outcome, error)

// Run starts the monitor and executes the checklist in the background.
// Quitting the monitor while the run is in progress cancels it; Run always
// waits for execute to return before returning its result.
func Run(ctx context.Context, cl *checklist.Checklist, doc status.Document, execute ExecuteFunc, opts ...tea.ProgramOption) (engine.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	opts = append(opts, tea.WithContext(ctx))

	program := tea.NewProgram(NewModel(cl, doc, cancel), opts...)
	events := NewProgramEvents(program)

	type result struct {
		outcome engine.Outcome
		err     error
	}
	done := make(chan result, 1)

	go func() {
		outcome, err := execute(ctx, events)
		if err != nil && outcome.Result == "" {
			program.Send(RunErrorMsg{Err: err})
		}
		done <- result{outcome, err}
	}()

	_, progErr := program.Run()

	// The program may have stopped on its own; the run must not outlive it.
	cancel()
	res := <-done

	if progErr != nil && !errors.Is(progErr, tea.ErrProgramKilled) && !errors.Is(progErr, context.Canceled) {
		if res.err == nil {
			return res.outcome, fmt.Errorf("run monitor failed: %w", progErr)
		}
	}
	return res.outcome, res.err
}
