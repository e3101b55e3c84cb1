package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}
}

func TestStore_DirAndEnsure(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	if got, want := s.Dir("Setup", "Check git"), filepath.Join(root, "Setup", "Check git"); got != want {
		t.Errorf("Dir = %s, want %s", got, want)
	}
	if got, want := s.Dir("a/b", ".."), filepath.Join(root, "a_b", "_"); got != want {
		t.Errorf("Dir with separators = %s, want %s", got, want)
	}

	dir, err := s.Ensure("Setup", "Check git")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("Ensure did not create %s", dir)
	}
}

func TestStore_Cleanup(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	old := filepath.Join(root, "task", "old.log")
	fresh := filepath.Join(root, "task", "fresh.log")
	writeAged(t, old, 8*24*time.Hour)
	writeAged(t, fresh, time.Hour)

	removed, err := s.Cleanup("task", 7)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old file still present")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh file was removed")
	}
}

func TestStore_CleanupNestedTaskID(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	writeAged(t, filepath.Join(root, "Setup", "Check git", "git_validation.log"), 30*24*time.Hour)

	removed, err := s.Cleanup("Setup/Check git", 7)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

func TestStore_CleanupMissingDirectory(t *testing.T) {
	removed, err := NewStore(t.TempDir()).Cleanup("nope", 7)
	if err != nil || removed != 0 {
		t.Errorf("Cleanup = %d, %v; want 0, nil", removed, err)
	}
}

func TestStore_CleanupAll(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	writeAged(t, filepath.Join(root, "p1", "t1", "a.json"), 10*24*time.Hour)
	writeAged(t, filepath.Join(root, "p2", "t2", "b.json"), 10*24*time.Hour)
	writeAged(t, filepath.Join(root, "p2", "t2", "c.json"), 0)

	removed, err := s.CleanupAll(7)
	if err != nil {
		t.Fatalf("CleanupAll failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
}

func TestStore_CleanupRejectsNegativeAge(t *testing.T) {
	if _, err := NewStore(t.TempDir()).CleanupAll(-1); err == nil {
		t.Error("expected error for negative age")
	}
}
