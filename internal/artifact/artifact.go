// Package artifact manages the per-task directories validators write into.
package artifact

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultRoot is the artifact root used when none is configured.
const DefaultRoot = "transition_artifacts"

// Store lays out artifacts as <root>/<phase>/<task>.
type Store struct {
	root string
	now  func() time.Time
}

// NewStore creates a store rooted at root.
func NewStore(root string) *Store {
	if root == "" {
		root = DefaultRoot
	}
	return &Store{root: root, now: time.Now}
}

// Root returns the artifact root directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the artifact directory for a task. It does not create it.
func (s *Store) Dir(phase, task string) string {
	return filepath.Join(s.root, SanitizeName(phase), SanitizeName(task))
}

// Ensure creates the task's artifact directory and returns its path.
func (s *Store) Ensure(phase, task string) (string, error) {
	dir := s.Dir(phase, task)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return dir, nil
}

// Cleanup removes files under <root>/<taskID> not accessed for more than
// maxAgeDays. taskID may be a nested "phase/task" path. A missing directory
// removes nothing.
func (s *Store) Cleanup(taskID string, maxAgeDays int) (int, error) {
	parts := strings.Split(filepath.ToSlash(taskID), "/")
	for i, p := range parts {
		parts[i] = SanitizeName(p)
	}
	return s.prune(filepath.Join(append([]string{s.root}, parts...)...), maxAgeDays)
}

// CleanupAll applies Cleanup to the whole artifact root.
func (s *Store) CleanupAll(maxAgeDays int) (int, error) {
	return s.prune(s.root, maxAgeDays)
}

func (s *Store) prune(dir string, maxAgeDays int) (int, error) {
	if maxAgeDays < 0 {
		return 0, fmt.Errorf("max age must not be negative, got %d", maxAgeDays)
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to stat artifact directory: %w", err)
	}

	cutoff := s.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	removed := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !lastAccess(info).Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("artifact cleanup failed: %w", err)
	}
	return removed, nil
}

// SanitizeName makes a phase or task name safe to use as one path element.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(name)
	switch name {
	case "", ".", "..":
		return "_"
	}
	return name
}
