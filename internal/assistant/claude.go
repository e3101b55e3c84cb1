package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandContext creates the claude process. Tests replace it.
var CommandContext = exec.CommandContext

// claudeResponse is the envelope printed by `claude --output-format json`.
type claudeResponse struct {
	Type    string `json:"type"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
}

// Claude queries the Claude Code CLI in print mode.
type Claude struct {
	timeout time.Duration
}

// NewClaude returns a CLI-backed assistant.
func NewClaude(timeout time.Duration) *Claude {
	return &Claude{timeout: timeout}
}

// IsClaudeAvailable checks if the claude command exists in PATH.
func IsClaudeAvailable() bool {
	_, err := exec.LookPath("claude")
	return err == nil
}

func (c *Claude) Query(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx, c.timeout)
	defer cancel()

	cmd := CommandContext(ctx, "claude", "-p", p.String(), "--output-format", "json")
	out, err := cmd.Output()
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return "", errors.New("assistant query timed out")
		case errors.Is(ctx.Err(), context.Canceled):
			return "", ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("claude command failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("failed to execute claude command: %w", err)
	}

	return parseClaudeOutput(out)
}

// parseClaudeOutput unwraps the JSON envelope. Plain text output is returned
// as is.
func parseClaudeOutput(out []byte) (string, error) {
	var resp claudeResponse
	if err := json.Unmarshal(out, &resp); err != nil || resp.Type == "" {
		return strings.TrimSpace(string(out)), nil
	}
	if resp.IsError {
		return "", errors.New("claude returned an error: " + resp.Result)
	}
	return strings.TrimSpace(resp.Result), nil
}
