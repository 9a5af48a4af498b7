package coord

import (
	"strings"
	"testing"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/statedir"
)

func TestDetectConflicts_overlap(t *testing.T) {
	s, coord, _ := testServer(t)
	boot(t, coord)
	seedSession(t, coord, "aaaa1111", nil)
	seedSession(t, coord, "bbbb2222", func(rec *domain.SessionRecord) {
		rec.Project = "webapp"
		rec.CurrentTask = "T-9"
		rec.CurrentFiles = []string{"/work/src/auth.go"}
	})

	got := callText(t, s, "detect_conflicts", map[string]any{
		"session_id": "aaaa1111",
		"files":      []any{"/work/src/auth.go", "/work/README.md"},
	})
	for _, want := range []string{
		"CONFLICTS DETECTED",
		"Sessions working on the same files:",
		"- bbbb2222 (project webapp) task T-9: /work/src/auth.go",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestDetectConflicts_clean(t *testing.T) {
	s, coord, _ := testServer(t)
	boot(t, coord)
	seedSession(t, coord, "aaaa1111", nil)
	seedSession(t, coord, "bbbb2222", func(rec *domain.SessionRecord) {
		rec.CurrentFiles = []string{"/work/src/auth.go"}
	})

	got := callText(t, s, "detect_conflicts", map[string]any{
		"session_id": "aaaa1111",
		"files":      []any{"/work/src/other.go"},
	})
	if got != "No conflicts detected" {
		t.Errorf("got %q", got)
	}
}

func TestDetectConflicts_recentEdits(t *testing.T) {
	s, coord, pol := testServer(t)
	boot(t, coord)
	seedSession(t, coord, "aaaa1111", nil)

	entry := domain.ActivityEntry{
		TS:      time.Now().Add(-30 * time.Second),
		Session: "bbbb2222",
		Tool:    "Edit",
		File:    "/work/src/auth.go",
	}
	if err := statedir.AppendJSON(pol.ActivityLog(), entry); err != nil {
		t.Fatalf("AppendJSON: %v", err)
	}

	got := callText(t, s, "detect_conflicts", map[string]any{
		"session_id": "aaaa1111",
		"files":      []any{"/work/src/auth.go"},
	})
	for _, want := range []string{
		"CONFLICTS DETECTED",
		"Recent edits on requested files:",
		"- bbbb2222 Edit /work/src/auth.go (",
		"s ago)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestDetectConflicts_requiresFiles(t *testing.T) {
	s, coord, _ := testServer(t)
	boot(t, coord)
	seedSession(t, coord, "aaaa1111", nil)

	got := callText(t, s, "detect_conflicts", map[string]any{
		"session_id": "aaaa1111",
		"files":      []any{},
	})
	if got != "Invalid arguments for detect_conflicts: files is required" {
		t.Errorf("got %q", got)
	}

	got = callText(t, s, "detect_conflicts", map[string]any{
		"session_id": "aaaa1111",
		"files":      []any{42},
	})
	if !strings.Contains(got, "files[0] must be a string") {
		t.Errorf("got %q", got)
	}
}
