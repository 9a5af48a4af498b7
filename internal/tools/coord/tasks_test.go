package coord

import (
	"strings"
	"testing"
)

func TestCreateTask_generatedID(t *testing.T) {
	s, _, _ := testServer(t)

	got := callText(t, s, "create_task", map[string]any{"subject": "wire the auth flow"})
	if !strings.HasPrefix(got, "Task T-") || !strings.HasSuffix(got, "created: wire the auth flow") {
		t.Fatalf("got %q", got)
	}
	taskID := strings.TrimSuffix(strings.TrimPrefix(got, "Task "), " created: wire the auth flow")

	detail := callText(t, s, "get_task", map[string]any{"task_id": taskID})
	for _, want := range []string{
		"Task " + taskID + ": wire the auth flow",
		"status: pending",
		"priority: normal",
	} {
		if !strings.Contains(detail, want) {
			t.Errorf("detail missing %q:\n%s", want, detail)
		}
	}
}

func TestCreateTask_fullRecord(t *testing.T) {
	s, _, _ := testServer(t)

	got := callText(t, s, "create_task", map[string]any{
		"task_id":     "T1",
		"subject":     "fix login",
		"description": "token refresh loops forever",
		"assignee":    "aaaa1111",
		"priority":    "high",
		"files":       []any{"src/auth.go"},
	})
	if got != "Task T1 created: fix login" {
		t.Fatalf("got %q", got)
	}

	detail := callText(t, s, "get_task", map[string]any{"task_id": "T1"})
	for _, want := range []string{
		"assignee: aaaa1111",
		"description: token refresh loops forever",
		"priority: high",
		"files: src/auth.go",
	} {
		if !strings.Contains(detail, want) {
			t.Errorf("detail missing %q:\n%s", want, detail)
		}
	}
}

func TestUpdateTask_noFields(t *testing.T) {
	s, _, _ := testServer(t)
	callText(t, s, "create_task", map[string]any{"task_id": "T1", "subject": "x"})

	got := callText(t, s, "update_task", map[string]any{"task_id": "T1"})
	if got != "Task T1: no changes" {
		t.Errorf("got %q", got)
	}
}

func TestUpdateTask_statusMove(t *testing.T) {
	s, _, _ := testServer(t)
	callText(t, s, "create_task", map[string]any{"task_id": "T1", "subject": "x"})

	got := callText(t, s, "update_task", map[string]any{"task_id": "T1", "status": "in_progress"})
	if got != "Task T1 updated" {
		t.Errorf("got %q", got)
	}
	detail := callText(t, s, "get_task", map[string]any{"task_id": "T1"})
	if !strings.Contains(detail, "status: in_progress") {
		t.Errorf("detail = %q", detail)
	}

	got = callText(t, s, "update_task", map[string]any{"task_id": "T1", "status": "paused"})
	if !strings.Contains(got, "invalid status") {
		t.Errorf("bad status = %q", got)
	}
}

func TestTaskDependencies_symmetric(t *testing.T) {
	s, _, _ := testServer(t)
	callText(t, s, "create_task", map[string]any{"task_id": "T1", "subject": "schema"})
	callText(t, s, "create_task", map[string]any{
		"task_id": "T2", "subject": "migration", "blocked_by": []any{"T1"},
	})

	blocker := callText(t, s, "get_task", map[string]any{"task_id": "T1"})
	if !strings.Contains(blocker, "blocks: T2") {
		t.Errorf("blocker missing reverse edge:\n%s", blocker)
	}
	blocked := callText(t, s, "get_task", map[string]any{"task_id": "T2"})
	if !strings.Contains(blocked, "blocked_by: T1") {
		t.Errorf("blocked missing forward edge:\n%s", blocked)
	}

	list := callText(t, s, "list_tasks", map[string]any{})
	if !strings.Contains(list, "- T2 [pending/normal] migration blocked by T1") {
		t.Errorf("list missing open-blocker flag:\n%s", list)
	}

	callText(t, s, "update_task", map[string]any{"task_id": "T1", "status": "completed"})
	list = callText(t, s, "list_tasks", map[string]any{})
	if strings.Contains(list, "blocked by T1") {
		t.Errorf("completed blocker still flagged:\n%s", list)
	}
}

func TestListTasks_filters(t *testing.T) {
	s, _, _ := testServer(t)
	callText(t, s, "create_task", map[string]any{"task_id": "T1", "subject": "a", "assignee": "aaaa1111"})
	callText(t, s, "create_task", map[string]any{"task_id": "T2", "subject": "b", "assignee": "bbbb2222"})
	callText(t, s, "update_task", map[string]any{"task_id": "T2", "status": "in_progress"})

	got := callText(t, s, "list_tasks", map[string]any{"assignee": "aaaa1111"})
	if !strings.HasPrefix(got, "1 task(s):") || !strings.Contains(got, "- T1 ") {
		t.Errorf("assignee filter = %q", got)
	}

	got = callText(t, s, "list_tasks", map[string]any{"status": "in_progress"})
	if !strings.HasPrefix(got, "1 task(s):") || !strings.Contains(got, "- T2 ") {
		t.Errorf("status filter = %q", got)
	}

	got = callText(t, s, "list_tasks", map[string]any{"status": "cancelled"})
	if got != "No tasks." {
		t.Errorf("empty filter = %q", got)
	}
}

func TestGetTask_missing(t *testing.T) {
	s, _, _ := testServer(t)
	got := callText(t, s, "get_task", map[string]any{"task_id": "T404"})
	if got != "Invalid arguments for get_task: no task T404" {
		t.Errorf("got %q", got)
	}
}
