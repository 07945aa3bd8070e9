package version

import "testing"

func TestCurrentFillsDefaults(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version, Commit = "  ", ""
	info := Current(" site ")
	if info.App != "site" || info.Version != "dev" || info.Commit != "unknown" {
		t.Fatalf("unexpected info: %+v", info)
	}
}
