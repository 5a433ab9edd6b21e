package version

import "testing"

func TestString(t *testing.T) {
	Version, Commit, BuildDate = "1.2.0", "abc123", "2025-01-10"
	t.Cleanup(func() { Version, Commit, BuildDate = "dev", "unknown", "unknown" })

	if got := String(); got != "1.2.0 (commit abc123, built 2025-01-10)" {
		t.Fatalf("String() = %q", got)
	}
}
