package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DocsLog is the artifact written by the docs validator.
const DocsLog = "docs_validation.log"

// DocsCoverageMetric is the percentage of required documents present.
const DocsCoverageMetric = "docs_coverage"

// DocsValidator checks that every path in the "required" option exists and
// is not empty. Directories count when they hold at least one entry.
type DocsValidator struct{}

func (v *DocsValidator) Validate(_ context.Context, req Request) Result {
	required := optionStrings(req.Spec.Options, "required")
	if len(required) == 0 {
		required = []string{"README.md"}
	}

	var report, missing []string
	for _, rel := range required {
		path := rel
		if !filepath.IsAbs(path) && req.WorkDir != "" {
			path = filepath.Join(req.WorkDir, rel)
		}
		if present(path) {
			report = append(report, "ok: "+rel)
			continue
		}
		report = append(report, "missing: "+rel)
		missing = append(missing, rel)
	}

	coverage := 100 * float64(len(required)-len(missing)) / float64(len(required))
	report = append(report, fmt.Sprintf("coverage: %.1f%%", coverage))

	log := []byte(strings.Join(report, "\n") + "\n")
	if err := os.WriteFile(filepath.Join(req.ArtifactDir, DocsLog), log, 0644); err != nil {
		return failure(fmt.Sprintf("failed to write %s: %v", DocsLog, err), nil)
	}

	res := Result{
		Status:    StatusSuccess,
		Artifacts: map[string][]byte{DocsLog: log},
		Metrics:   map[string]float64{DocsCoverageMetric: coverage},
	}
	if len(missing) > 0 {
		res.Status = StatusFailure
		res.Message = "missing documentation: " + strings.Join(missing, ", ")
	}
	return res
}

func present(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		return err == nil && len(entries) > 0
	}
	return info.Size() > 0
}

func optionStrings(opts map[string]any, key string) []string {
	switch v := opts[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
