package version

import "testing"

func TestString(t *testing.T) {
	origVersion, origCommit, origDate := Version, CommitSHA, BuildDate
	t.Cleanup(func() { Version, CommitSHA, BuildDate = origVersion, origCommit, origDate })

	Version, CommitSHA, BuildDate = "v1.2.3", "abc1234", "2026-01-02"

	want := "v1.2.3 (commit abc1234, built 2026-01-02)"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
