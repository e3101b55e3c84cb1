// Package assistant asks an AI assistant whether a blocker is resolved.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Backend names accepted by New.
const (
	BackendNop    = "nop"
	BackendClaude = "claude"
	BackendOpenAI = "openai"
)

// DefaultTimeout bounds a single assistant query when the caller's context
// has no deadline.
const DefaultTimeout = 2 * time.Minute

// Assistant answers a blocker-resolution prompt with free text.
type Assistant interface {
	Query(ctx context.Context, p Prompt) (string, error)
}

// Prompt is everything the assistant is told about a blocked task.
type Prompt struct {
	Phase string
	Task  string
	Text  string
	// Extra carries the task's pass-through fields from the checklist.
	Extra map[string]any
}

// String renders the prompt as the text sent to the assistant.
func (p Prompt) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Phase: %s\n", p.Phase)
	fmt.Fprintf(&b, "Task: %s\n", p.Task)

	if len(p.Extra) > 0 {
		keys := make([]string, 0, len(p.Extra))
		for k := range p.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("Task context:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, renderValue(p.Extra[k]))
		}
	}

	b.WriteString("\n")
	b.WriteString(p.Text)
	b.WriteString("\n\nAnswer \"Resolved\" if the blocker no longer applies, otherwise explain what is still missing.")
	return b.String()
}

func renderValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// Config selects and configures a backend.
type Config struct {
	Backend string        `koanf:"backend"`
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// New builds the assistant named by cfg.Backend. An empty backend means none.
func New(cfg Config) (Assistant, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendNop, "none":
		return Nop{}, nil
	case BackendClaude:
		return NewClaude(cfg.Timeout), nil
	case BackendOpenAI:
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown assistant backend %q", cfg.Backend)
	}
}

// ErrUnavailable is returned by Nop for every query.
var ErrUnavailable = errors.New("no assistant configured")

// Nop is the assistant used when none is configured. Every query fails, which
// leaves prompt-based blockers unresolved.
type Nop struct{}

func (Nop) Query(context.Context, Prompt) (string, error) {
	return "", ErrUnavailable
}

func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
