package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pablasso/phasegate/internal/proc"
)

// Environment variables passed to validation scripts.
const (
	EnvArtifactDir = "PHASEGATE_ARTIFACT_DIR"
	EnvPhase       = "PHASEGATE_PHASE"
	EnvTask        = "PHASEGATE_TASK"
)

const stderrExcerpt = 2048

// scriptOutput is the document a validation script prints on stdout.
type scriptOutput struct {
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message"`
	Artifacts    []string `json:"artifacts"`
}

// ScriptValidator runs an external script that reports its verdict as JSON.
type ScriptValidator struct {
	runner *proc.Runner
}

func (v *ScriptValidator) Validate(ctx context.Context, req Request) Result {
	script := req.Spec.Script
	if script == "" {
		return failure("validation script not found: no script declared", nil)
	}

	path := script
	if !filepath.IsAbs(path) && req.WorkDir != "" {
		path = filepath.Join(req.WorkDir, path)
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return failure(fmt.Sprintf("validation script not found: %s", script), nil)
	}

	name, args := interpreter(script)
	res := v.runner.Run(ctx, proc.Spec{
		Name: name,
		Args: args,
		Env: []string{
			EnvArtifactDir + "=" + req.ArtifactDir,
			EnvPhase + "=" + req.Phase,
			EnvTask + "=" + req.Task.Description,
		},
	})
	if !res.OK() {
		msg := "validation script failed"
		if res.Err != nil {
			msg += ": " + res.Err.Error()
		} else if excerpt := proc.Tail(res.Stderr, stderrExcerpt); excerpt != "" {
			msg += ": " + excerpt
		} else {
			msg += fmt.Sprintf(": exit status %d", res.ExitCode)
		}
		return failure(msg, nil)
	}

	var out scriptOutput
	dec := json.NewDecoder(bytes.NewReader(res.Stdout))
	if err := dec.Decode(&out); err != nil || dec.More() {
		return failure("invalid output format", nil)
	}

	artifacts := make(map[string][]byte, len(req.Spec.Artifacts))
	for _, name := range req.Spec.Artifacts {
		data, err := readArtifact(req, name)
		if err != nil {
			return failure("missing artifact: "+name, artifacts)
		}
		artifacts[name] = data
	}

	result := Result{Artifacts: artifacts, Reported: out.Artifacts}
	switch strings.ToLower(out.Status) {
	case string(StatusSuccess):
		result.Status = StatusSuccess
	case string(StatusBlocked):
		result.Status = StatusBlocked
		result.Message = out.ErrorMessage
	default:
		result.Status = StatusFailure
		result.Message = out.ErrorMessage
		if result.Message == "" {
			result.Message = "validation failed"
		}
	}
	return result
}

// interpreter picks how to launch a script from its extension.
func interpreter(script string) (string, []string) {
	switch strings.ToLower(filepath.Ext(script)) {
	case ".py":
		return "python3", []string{script}
	case ".sh":
		return "sh", []string{script}
	default:
		if !strings.ContainsRune(script, filepath.Separator) {
			script = "." + string(filepath.Separator) + script
		}
		return script, nil
	}
}

// readArtifact looks in the task directory first, then the artifact root.
func readArtifact(req Request, name string) ([]byte, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(filepath.Clean(name), "..") {
		return nil, fmt.Errorf("invalid artifact name %q", name)
	}
	var lastErr error
	for _, dir := range []string{req.ArtifactDir, req.ArtifactRoot} {
		if dir == "" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = os.ErrNotExist
	}
	return nil, lastErr
}
