package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
)

// GitLog is the artifact written by the git validator.
const GitLog = "git_validation.log"

// GitValidator checks that the working directory is a usable git checkout:
// inside a repository, user.name and user.email configured, a .gitignore at
// the worktree root and, with the "clean" option, no uncommitted changes.
type GitValidator struct{}

func (v *GitValidator) Validate(_ context.Context, req Request) Result {
	dir := req.WorkDir
	if dir == "" {
		dir = "."
	}

	var report []string
	var problems []string
	check := func(ok bool, pass, fail string) {
		if ok {
			report = append(report, "ok: "+pass)
			return
		}
		report = append(report, "fail: "+fail)
		problems = append(problems, fail)
	}

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	check(err == nil, "inside a git repository", "not a git repository")

	if repo != nil {
		cfg, err := repo.ConfigScoped(config.GlobalScope)
		if err != nil {
			check(false, "", fmt.Sprintf("failed to read git config: %v", err))
		} else {
			check(strings.TrimSpace(cfg.User.Name) != "", "user.name is set", "git user.name is not set")
			check(strings.TrimSpace(cfg.User.Email) != "", "user.email is set", "git user.email is not set")
		}

		root := dir
		wt, wtErr := repo.Worktree()
		if wtErr == nil {
			root = wt.Filesystem.Root()
		}
		info, statErr := os.Stat(filepath.Join(root, ".gitignore"))
		check(statErr == nil && !info.IsDir(), ".gitignore present", ".gitignore is missing")

		if optionBool(req.Spec.Options, "clean") {
			if wtErr != nil {
				check(false, "", fmt.Sprintf("failed to open worktree: %v", wtErr))
			} else if st, err := wt.Status(); err != nil {
				check(false, "", fmt.Sprintf("failed to read worktree status: %v", err))
			} else {
				check(st.IsClean(), "worktree is clean", "worktree has uncommitted changes")
			}
		}
	}

	log := []byte(strings.Join(report, "\n") + "\n")
	artifacts := map[string][]byte{GitLog: log}
	if err := os.WriteFile(filepath.Join(req.ArtifactDir, GitLog), log, 0644); err != nil {
		return failure(fmt.Sprintf("failed to write %s: %v", GitLog, err), nil)
	}

	if len(problems) > 0 {
		return failure(strings.Join(problems, "; "), artifacts)
	}
	return Result{Status: StatusSuccess, Artifacts: artifacts}
}

func optionBool(opts map[string]any, key string) bool {
	switch v := opts[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true") || v == "1"
	}
	return false
}
