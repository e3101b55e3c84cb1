package blocker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pablasso/phasegate/internal/assistant"
	"github.com/pablasso/phasegate/internal/checklist"
	"github.com/pablasso/phasegate/internal/logging"
	"github.com/pablasso/phasegate/internal/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type stubAssistant struct {
	reply  string
	err    error
	calls  int
	prompt assistant.Prompt
}

func (s *stubAssistant) Query(_ context.Context, p assistant.Prompt) (string, error) {
	s.calls++
	s.prompt = p
	return s.reply, s.err
}

func newResolver(a assistant.Assistant) (*Resolver, *logging.TestLogger) {
	log := logging.NewTestLogger()
	return NewResolver(proc.New(5*time.Second), a, log.Logger), log
}

func blocker(typ string, res checklist.Resolution) checklist.Blocker {
	return checklist.Blocker{Type: typ, Resolution: res}
}

func TestResolve_Diagnostics(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		resolved bool
	}{
		{"non-zero exit", "exit 1", false},
		{"zero exit plain text", "echo all good", true},
		{"zero exit no output", "true", true},
		{"zero exit malformed json", `echo '{"status":'`, true},
		{"json success", `echo '{"status": "success"}'`, true},
		{"json failure", `echo '{"status": "failure", "detail": "x"}'`, false},
		{"json without status", `echo '{"ok": true}'`, true},
		{"json non-string status", `echo '{"status": 0}'`, false},
		{"json array", `echo '[1,2]'`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newResolver(nil)
			b := blocker("Tool", checklist.Resolution{Diagnostics: tt.command})

			got := r.Resolve(context.Background(), "p", checklist.Task{Description: "t"}, []checklist.Blocker{b})
			if tt.resolved {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, []checklist.Blocker{b}, got)
			}
		})
	}
}

func TestResolve_DiagnosticsTakesPrecedence(t *testing.T) {
	stub := &stubAssistant{reply: "Resolved"}
	r, _ := newResolver(stub)
	b := blocker("Tool", checklist.Resolution{
		Diagnostics:     "exit 1",
		AssistantPrompt: "is it ok?",
		RequiredExperts: []string{},
	})

	got := r.Resolve(context.Background(), "p", checklist.Task{Description: "t"}, []checklist.Blocker{b})
	assert.Len(t, got, 1)
	assert.Zero(t, stub.calls, "assistant must not be consulted when diagnostics are declared")
}

func TestResolve_Assistant(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		err      error
		resolved bool
	}{
		{"resolved", "Resolved", nil, true},
		{"case-insensitive", "the issue is RESOLVED now", nil, true},
		{"not resolved", "still missing credentials", nil, false},
		{"error", "", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAssistant{reply: tt.reply, err: tt.err}
			r, _ := newResolver(stub)
			task := checklist.Task{Description: "Deploy", Extra: map[string]any{"cursor_prompt": "x"}}
			b := blocker("Creds", checklist.Resolution{AssistantPrompt: "are creds set?", RequiredExperts: []string{"Ops"}})

			got := r.Resolve(context.Background(), "Ship", task, []checklist.Blocker{b})
			assert.Equal(t, tt.resolved, len(got) == 0)

			require.Equal(t, 1, stub.calls)
			assert.Equal(t, "Ship", stub.prompt.Phase)
			assert.Equal(t, "Deploy", stub.prompt.Task)
			assert.Equal(t, "are creds set?", stub.prompt.Text)
			assert.Equal(t, "x", stub.prompt.Extra["cursor_prompt"])
		})
	}
}

func TestResolve_LegacyPromptKey(t *testing.T) {
	stub := &stubAssistant{reply: "resolved"}
	r, _ := newResolver(stub)
	b := blocker("Flaky", checklist.Resolution{LMStudioPrompt: "fixed?"})

	assert.Empty(t, r.Resolve(context.Background(), "p", checklist.Task{Description: "t"}, []checklist.Blocker{b}))
	assert.Equal(t, "fixed?", stub.prompt.Text)
}

func TestResolve_NoAssistantLeavesPromptUnresolved(t *testing.T) {
	r, _ := newResolver(nil)
	b := blocker("Flaky", checklist.Resolution{AssistantPrompt: "fixed?"})

	assert.Len(t, r.Resolve(context.Background(), "p", checklist.Task{Description: "t"}, []checklist.Blocker{b}), 1)
}

func TestResolve_ExpertsAndDefault(t *testing.T) {
	r, _ := newResolver(nil)
	experts := blocker("Review", checklist.Resolution{RequiredExperts: []string{"Security"}})
	noExperts := blocker("Review", checklist.Resolution{RequiredExperts: []string{}})
	empty := blocker("Nothing", checklist.Resolution{})

	got := r.Resolve(context.Background(), "p", checklist.Task{Description: "t"}, []checklist.Blocker{experts, noExperts, empty})
	assert.Equal(t, []checklist.Blocker{experts}, got)
}

func TestResolve_PreservesOrder(t *testing.T) {
	r, _ := newResolver(nil)
	a := blocker("A", checklist.Resolution{Diagnostics: "exit 2"})
	b := blocker("B", checklist.Resolution{})
	c := blocker("C", checklist.Resolution{RequiredExperts: []string{"QA"}})

	got := r.Resolve(context.Background(), "p", checklist.Task{Description: "t"}, []checklist.Blocker{a, b, c})
	assert.Equal(t, []checklist.Blocker{a, c}, got)
}

func TestDecide_LogsUnresolved(t *testing.T) {
	r, log := newResolver(nil)
	b := blocker("Tool", checklist.Resolution{Diagnostics: "exit 1"})

	decisions := r.Decide(context.Background(), "p", checklist.Task{Description: "t"}, []checklist.Blocker{b})
	require.Len(t, decisions, 1)
	assert.Equal(t, RuleDiagnostics, decisions[0].Rule)
	assert.Contains(t, decisions[0].Reason, "exit status 1")

	log.AssertLogged(t, zapcore.WarnLevel, "blocker unresolved")
}
