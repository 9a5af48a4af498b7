package coord

import (
	"strings"
	"testing"

	"github.com/jaakkos/switchboard/internal/domain"
)

func TestListSessions_filters(t *testing.T) {
	s, coord, _ := testServer(t)
	boot(t, coord)

	seedSession(t, coord, "aaaa1111", func(rec *domain.SessionRecord) {
		rec.Project = "webapp"
		rec.CurrentTask = "T-1"
	})
	seedSession(t, coord, "bbbb2222", func(rec *domain.SessionRecord) {
		rec.Project = "infra"
	})
	seedSession(t, coord, "cccc3333", func(rec *domain.SessionRecord) {
		rec.Status = domain.SessionClosed
	})

	got := callText(t, s, "list_sessions", map[string]any{})
	if !strings.HasPrefix(got, "2 session(s):") {
		t.Errorf("default list = %q", got)
	}
	if strings.Contains(got, "cccc3333") {
		t.Errorf("closed session listed by default:\n%s", got)
	}
	if !strings.Contains(got, "- aaaa1111 [active] project=webapp task=T-1") {
		t.Errorf("list missing annotated line:\n%s", got)
	}

	got = callText(t, s, "list_sessions", map[string]any{"include_closed": true})
	if !strings.HasPrefix(got, "3 session(s):") || !strings.Contains(got, "- cccc3333 [closed]") {
		t.Errorf("include_closed list = %q", got)
	}

	got = callText(t, s, "list_sessions", map[string]any{"project": "infra"})
	if !strings.HasPrefix(got, "1 session(s):") || !strings.Contains(got, "bbbb2222") {
		t.Errorf("project filter = %q", got)
	}
}

func TestGetSession_rendersRecord(t *testing.T) {
	s, coord, _ := testServer(t)
	boot(t, coord)

	seedSession(t, coord, "aaaa1111", func(rec *domain.SessionRecord) {
		rec.Project = "webapp"
		rec.Branch = "feature/auth"
		rec.CWD = "/home/dev/webapp"
		rec.LastTool = "Edit"
		rec.LastFile = "src/auth.go"
		rec.FilesTouched = []string{"src/auth.go", "src/auth_test.go"}
		rec.CurrentTask = "T-1"
		rec.PlanFile = "PLAN.md"
	})

	// Full-length ids resolve to the short form.
	got := callText(t, s, "get_session", map[string]any{
		"session_id": "aaaa1111-0000-4000-8000-000000000000",
	})
	for _, want := range []string{
		"Session aaaa1111 [active]",
		"project: webapp",
		"branch: feature/auth",
		"cwd: /home/dev/webapp",
		"last_tool: Edit src/auth.go",
		"files_touched (2): src/auth.go, src/auth_test.go",
		"current_task: T-1",
		"plan_file: PLAN.md",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("render missing %q:\n%s", want, got)
		}
	}
}

func TestGetSession_missing(t *testing.T) {
	s, _, _ := testServer(t)
	got := callText(t, s, "get_session", map[string]any{"session_id": "dddd4444"})
	if got != "Invalid arguments for get_session: no session dddd4444" {
		t.Errorf("got %q", got)
	}
}

func TestGetSession_badID(t *testing.T) {
	s, _, _ := testServer(t)
	got := callText(t, s, "get_session", map[string]any{"session_id": "short"})
	if !strings.HasPrefix(got, "Invalid arguments for get_session:") {
		t.Errorf("got %q", got)
	}
}

func TestCheckInbox_drainsOnce(t *testing.T) {
	s, coord, _ := testServer(t)
	boot(t, coord)
	seedSession(t, coord, "aaaa1111", nil)

	if err := coord.Mail().Send("lead", "aaaa1111", "ship it", domain.PriorityUrgent, false); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := callText(t, s, "check_inbox", map[string]any{"session_id": "aaaa1111"})
	if !strings.HasPrefix(got, "1 message(s):") {
		t.Errorf("first drain = %q", got)
	}
	if !strings.Contains(got, "from lead: ship it") || !strings.Contains(got, "[urgent]") {
		t.Errorf("message line missing:\n%s", got)
	}

	if got := callText(t, s, "check_inbox", map[string]any{"session_id": "aaaa1111"}); got != "No messages." {
		t.Errorf("second drain = %q, want empty", got)
	}
}
