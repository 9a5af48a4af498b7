package taskboard

import (
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/session"
	"github.com/jaakkos/switchboard/internal/statedir"
)

func testBoard(t *testing.T) (*Board, *session.Store, *policy.Policy) {
	t.Helper()
	cfg := policy.DefaultConfig()
	cfg.StateRoot = t.TempDir()
	pol := policy.New(cfg)
	for _, dir := range []string{pol.TerminalsDir(), pol.TasksDir()} {
		if err := statedir.EnsureDir(dir); err != nil {
			t.Fatalf("EnsureDir(%s): %v", dir, err)
		}
	}
	sessions := session.NewStore(pol)
	return NewBoard(pol, sessions, log.New(io.Discard, "", 0)), sessions, pol
}

func mustCreate(t *testing.T, b *Board, req CreateRequest) *domain.TaskRecord {
	t.Helper()
	rec, err := b.Create(req)
	if err != nil {
		t.Fatalf("Create(%+v): %v", req, err)
	}
	return rec
}

func strp(s string) *string { return &s }

func TestCreate_generatedID(t *testing.T) {
	b, _, _ := testBoard(t)
	rec := mustCreate(t, b, CreateRequest{Subject: "write docs"})
	if !strings.HasPrefix(rec.TaskID, "T-") || len(rec.TaskID) != 10 {
		t.Errorf("task id = %q, want T-<8 hex>", rec.TaskID)
	}
	if rec.Status != domain.TaskPending || rec.Priority != domain.PriorityNormal {
		t.Errorf("defaults = %s/%s", rec.Status, rec.Priority)
	}
	if rec.Created.IsZero() || !rec.Created.Equal(rec.Updated) {
		t.Errorf("timestamps = %v/%v", rec.Created, rec.Updated)
	}
}

func TestCreate_rejects(t *testing.T) {
	b, _, _ := testBoard(t)
	cases := []struct {
		name string
		req  CreateRequest
	}{
		{"empty subject", CreateRequest{Subject: "   "}},
		{"bad id", CreateRequest{Subject: "x", TaskID: "../evil"}},
		{"bad priority", CreateRequest{Subject: "x", Priority: "urgent"}},
		{"unknown dep", CreateRequest{Subject: "x", BlockedBy: []string{"T-missing"}}},
	}
	for _, c := range cases {
		if _, err := b.Create(c.req); err == nil {
			t.Errorf("%s: Create accepted", c.name)
		}
	}

	mustCreate(t, b, CreateRequest{Subject: "first", TaskID: "T1"})
	if _, err := b.Create(CreateRequest{Subject: "second", TaskID: "T1"}); err == nil {
		t.Error("Create accepted duplicate id")
	}
}

func TestCreate_dependencySymmetry(t *testing.T) {
	b, _, _ := testBoard(t)
	mustCreate(t, b, CreateRequest{Subject: "A", TaskID: "T1"})
	mustCreate(t, b, CreateRequest{Subject: "B", TaskID: "T2", BlockedBy: []string{"T1"}})

	t1, err := b.Get("T1")
	if err != nil {
		t.Fatalf("Get(T1): %v", err)
	}
	if len(t1.Blocks) != 1 || t1.Blocks[0] != "T2" {
		t.Errorf("T1.blocks = %v, want [T2]", t1.Blocks)
	}
	t2, err := b.Get("T2")
	if err != nil {
		t.Fatalf("Get(T2): %v", err)
	}
	if len(t2.BlockedBy) != 1 || t2.BlockedBy[0] != "T1" {
		t.Errorf("T2.blocked_by = %v, want [T1]", t2.BlockedBy)
	}
}

func TestUpdate_noChanges(t *testing.T) {
	b, _, _ := testBoard(t)
	mustCreate(t, b, CreateRequest{Subject: "A", TaskID: "T1"})
	rec, changed, err := b.Update(UpdateRequest{TaskID: "T1"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if changed || rec.TaskID != "T1" {
		t.Errorf("changed = %v rec = %+v", changed, rec)
	}
}

func TestUpdate_fields(t *testing.T) {
	b, _, _ := testBoard(t)
	created := mustCreate(t, b, CreateRequest{Subject: "A", TaskID: "T1"})

	rec, changed, err := b.Update(UpdateRequest{
		TaskID:   "T1",
		Status:   strp("in_progress"),
		Assignee: strp("alice"),
		Priority: strp("high"),
		Subject:  strp("A, refined"),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !changed {
		t.Error("changed = false")
	}
	if rec.Status != domain.TaskInProgress || rec.Assignee != "alice" ||
		rec.Priority != domain.PriorityHigh || rec.Subject != "A, refined" {
		t.Errorf("rec = %+v", rec)
	}
	if !rec.Updated.After(created.Updated) && !rec.Updated.Equal(created.Updated) {
		t.Errorf("updated went backwards: %v < %v", rec.Updated, created.Updated)
	}

	if _, _, err := b.Update(UpdateRequest{TaskID: "T1", Status: strp("paused")}); err == nil {
		t.Error("Update accepted bad status")
	}
	if _, _, err := b.Update(UpdateRequest{TaskID: "T1", Priority: strp("urgent")}); err == nil {
		t.Error("Update accepted task priority urgent")
	}
	if _, _, err := b.Update(UpdateRequest{TaskID: "Tnope", Status: strp("pending")}); err == nil {
		t.Error("Update accepted unknown task")
	}
}

func TestUpdate_addEdges(t *testing.T) {
	b, _, _ := testBoard(t)
	mustCreate(t, b, CreateRequest{Subject: "A", TaskID: "T1"})
	mustCreate(t, b, CreateRequest{Subject: "B", TaskID: "T2"})
	mustCreate(t, b, CreateRequest{Subject: "C", TaskID: "T3"})

	if _, _, err := b.Update(UpdateRequest{TaskID: "T1", AddBlocks: []string{"T2"}}); err != nil {
		t.Fatalf("AddBlocks: %v", err)
	}
	if _, _, err := b.Update(UpdateRequest{TaskID: "T1", AddBlockedBy: []string{"T3"}}); err != nil {
		t.Fatalf("AddBlockedBy: %v", err)
	}

	t1, _ := b.Get("T1")
	t2, _ := b.Get("T2")
	t3, _ := b.Get("T3")
	if len(t1.Blocks) != 1 || t1.Blocks[0] != "T2" || len(t1.BlockedBy) != 1 || t1.BlockedBy[0] != "T3" {
		t.Errorf("T1 edges = blocked_by %v blocks %v", t1.BlockedBy, t1.Blocks)
	}
	if len(t2.BlockedBy) != 1 || t2.BlockedBy[0] != "T1" {
		t.Errorf("T2.blocked_by = %v", t2.BlockedBy)
	}
	if len(t3.Blocks) != 1 || t3.Blocks[0] != "T1" {
		t.Errorf("T3.blocks = %v", t3.Blocks)
	}

	// Repeating an edge is a no-op, not a duplicate.
	if _, _, err := b.Update(UpdateRequest{TaskID: "T1", AddBlocks: []string{"T2"}}); err != nil {
		t.Fatalf("repeat AddBlocks: %v", err)
	}
	t1, _ = b.Get("T1")
	if len(t1.Blocks) != 1 {
		t.Errorf("T1.blocks duplicated: %v", t1.Blocks)
	}

	if _, _, err := b.Update(UpdateRequest{TaskID: "T1", AddBlocks: []string{"T1"}}); err == nil {
		t.Error("Update accepted self edge")
	}
	if _, _, err := b.Update(UpdateRequest{TaskID: "T1", AddBlocks: []string{"Tnope"}}); err == nil {
		t.Error("Update accepted edge to unknown task")
	}
}

func TestList_orderAndBlockers(t *testing.T) {
	b, _, _ := testBoard(t)
	mustCreate(t, b, CreateRequest{Subject: "done", TaskID: "T1"})
	mustCreate(t, b, CreateRequest{Subject: "queued", TaskID: "T2", BlockedBy: []string{"T1"}})
	mustCreate(t, b, CreateRequest{Subject: "active", TaskID: "T3", Assignee: "alice"})
	mustCreate(t, b, CreateRequest{Subject: "axed", TaskID: "T4"})
	for id, status := range map[string]string{"T1": "completed", "T3": "in_progress", "T4": "cancelled"} {
		if _, _, err := b.Update(UpdateRequest{TaskID: id, Status: strp(status)}); err != nil {
			t.Fatalf("Update(%s): %v", id, err)
		}
	}

	items, err := b.List("", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var order []string
	for _, it := range items {
		order = append(order, it.Task.TaskID)
	}
	want := []string{"T3", "T2", "T1", "T4"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	// T2's blocker T1 is completed, so it is not open.
	for _, it := range items {
		if it.Task.TaskID == "T2" && len(it.OpenBlockers) != 0 {
			t.Errorf("T2 open blockers = %v", it.OpenBlockers)
		}
	}
	mustCreate(t, b, CreateRequest{Subject: "gated", TaskID: "T5", BlockedBy: []string{"T3"}})
	items, _ = b.List("pending", "")
	found := false
	for _, it := range items {
		if it.Task.TaskID == "T5" {
			found = true
			if len(it.OpenBlockers) != 1 || it.OpenBlockers[0] != "T3" {
				t.Errorf("T5 open blockers = %v, want [T3]", it.OpenBlockers)
			}
		}
		if it.Task.Status != domain.TaskPending {
			t.Errorf("status filter leaked %s (%s)", it.Task.TaskID, it.Task.Status)
		}
	}
	if !found {
		t.Error("pending filter dropped T5")
	}

	items, _ = b.List("", "alice")
	if len(items) != 1 || items[0].Task.TaskID != "T3" {
		t.Errorf("assignee filter = %v", items)
	}

	if _, err := b.List("paused", ""); err == nil {
		t.Error("List accepted bad status filter")
	}
}

func TestQueueFeed(t *testing.T) {
	b, sessions, pol := testBoard(t)
	rec := domain.NewSessionRecord("aaaa1111", time.Now())
	if err := sessions.Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	mustCreate(t, b, CreateRequest{
		Subject:  "wire the feed",
		TaskID:   "T1",
		Assignee: "aaaa1111-0000-4000-8000-000000000000",
		By:       "bbbb2222",
	})
	items, err := statedir.ReadTail(pol.QueueFile(), 10)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queue lines = %d, want 1", len(items))
	}
	line := string(items[0])
	for _, want := range []string{`"task_id":"T1"`, `"assignee":"aaaa1111"`, `"by":"bbbb2222"`} {
		if !strings.Contains(line, want) {
			t.Errorf("queue line missing %s: %s", want, line)
		}
	}

	// A non-session assignee never reaches the queue.
	mustCreate(t, b, CreateRequest{Subject: "no feed", TaskID: "T2", Assignee: "alice"})
	// Neither does one without a session record.
	mustCreate(t, b, CreateRequest{Subject: "no feed", TaskID: "T3", Assignee: "cccc3333-0000-4000-8000-000000000000"})
	items, _ = statedir.ReadTail(pol.QueueFile(), 10)
	if len(items) != 1 {
		t.Errorf("queue lines = %d, want 1", len(items))
	}

	// Reassignment through update feeds again; same assignee does not.
	if _, _, err := b.Update(UpdateRequest{TaskID: "T1", Assignee: strp("aaaa1111-0000-4000-8000-000000000000")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	items, _ = statedir.ReadTail(pol.QueueFile(), 10)
	if len(items) != 1 {
		t.Errorf("same-assignee update fed queue: %d lines", len(items))
	}
	if _, _, err := b.Update(UpdateRequest{TaskID: "T2", Assignee: strp("aaaa1111")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	items, _ = statedir.ReadTail(pol.QueueFile(), 10)
	if len(items) != 2 {
		t.Errorf("queue lines = %d, want 2", len(items))
	}
}
