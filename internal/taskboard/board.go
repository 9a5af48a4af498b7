// Package taskboard persists work items under tasks/<id>.json. The
// dependency graph is stored as two opposing edge sets per task, blocked_by
// and blocks, and every mutation rewrites both endpoints. Cross-file edits
// take per-task locks in ascending id order so two concurrent edge edits
// cannot deadlock.
package taskboard

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/session"
	"github.com/jaakkos/switchboard/internal/statedir"
	"github.com/jaakkos/switchboard/internal/validate"
)

const (
	taskLockWait  = 2 * time.Second
	taskLockStale = 15 * time.Second
	taskLockRetry = 50 * time.Millisecond
)

// Board mutates and reads the task graph.
type Board struct {
	pol      *policy.Policy
	sessions *session.Store
	logger   *log.Logger
}

func NewBoard(pol *policy.Policy, sessions *session.Store, logger *log.Logger) *Board {
	return &Board{pol: pol, sessions: sessions, logger: logger}
}

// lockAll acquires the lock sidecar of every id in ascending order and
// returns a single release covering all of them.
func (b *Board) lockAll(ids ...string) (func(), error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	var releases []func()
	release := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	prev := ""
	for _, id := range sorted {
		if id == prev {
			continue
		}
		prev = id
		rel, err := statedir.AcquireLock(b.pol.TaskFile(id)+".lock", taskLockWait, taskLockStale, taskLockRetry)
		if err != nil {
			release()
			return nil, fmt.Errorf("lock task %s: %w", id, err)
		}
		releases = append(releases, rel)
	}
	return release, nil
}

func (b *Board) read(id string) (*domain.TaskRecord, error) {
	var rec domain.TaskRecord
	if err := statedir.ReadJSON(b.pol.TaskFile(id), &rec); err != nil {
		return nil, fmt.Errorf("no task %s", id)
	}
	return &rec, nil
}

func (b *Board) write(rec *domain.TaskRecord) error {
	return statedir.WriteJSON(b.pol.TaskFile(rec.TaskID), rec)
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}

// CreateRequest carries create_task parameters. By names the requesting
// session for the assignment feed.
type CreateRequest struct {
	Subject     string
	Description string
	TaskID      string
	Assignee    string
	Priority    domain.Priority
	Files       []string
	BlockedBy   []string
	By          string
}

// Create writes a new task and links it under each blocked_by dependency.
// Unknown dependencies are rejected up front: an edge to a task that does
// not exist could never be kept symmetric.
func (b *Board) Create(req CreateRequest) (*domain.TaskRecord, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, fmt.Errorf("subject must not be empty")
	}
	id := req.TaskID
	var err error
	if id == "" {
		id = "T-" + uuid.NewString()[:8]
	} else if id, err = validate.ID(id); err != nil {
		return nil, fmt.Errorf("task_id: %w", err)
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	} else if !domain.ValidTaskPriority(priority) {
		return nil, fmt.Errorf("invalid priority %q: want low, normal or high", priority)
	}
	deps := make([]string, 0, len(req.BlockedBy))
	for _, dep := range req.BlockedBy {
		d, err := validate.ID(dep)
		if err != nil {
			return nil, fmt.Errorf("blocked_by: %w", err)
		}
		deps = appendUnique(deps, d)
	}

	release, err := b.lockAll(append([]string{id}, deps...)...)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := os.Stat(b.pol.TaskFile(id)); err == nil {
		return nil, fmt.Errorf("task %s already exists", id)
	}
	depRecs := make([]*domain.TaskRecord, len(deps))
	for i, dep := range deps {
		if depRecs[i], err = b.read(dep); err != nil {
			return nil, fmt.Errorf("blocked_by: %w", err)
		}
	}

	now := time.Now()
	rec := &domain.TaskRecord{
		TaskID:      id,
		Subject:     subject,
		Description: req.Description,
		Status:      domain.TaskPending,
		Assignee:    req.Assignee,
		Priority:    priority,
		Files:       req.Files,
		BlockedBy:   deps,
		Created:     now,
		Updated:     now,
	}
	if err := b.write(rec); err != nil {
		return nil, err
	}
	for _, dep := range depRecs {
		dep.Blocks = appendUnique(dep.Blocks, id)
		dep.Updated = now
		if err := b.write(dep); err != nil {
			return nil, err
		}
	}
	if req.Assignee != "" {
		b.feedQueue(rec, req.By, now)
	}
	b.logger.Printf("TaskBoard: created %s (%s)", id, subject)
	return rec, nil
}

// UpdateRequest mutates only its non-nil fields. Add lists create edges; an
// edge already present is a no-op, not an error.
type UpdateRequest struct {
	TaskID       string
	Status       *string
	Assignee     *string
	Subject      *string
	Description  *string
	Priority     *string
	AddBlockedBy []string
	AddBlocks    []string
	By           string
}

func (r UpdateRequest) empty() bool {
	return r.Status == nil && r.Assignee == nil && r.Subject == nil &&
		r.Description == nil && r.Priority == nil &&
		len(r.AddBlockedBy) == 0 && len(r.AddBlocks) == 0
}

// Update applies the supplied fields. The changed result is false when the
// request carried nothing to do.
func (b *Board) Update(req UpdateRequest) (*domain.TaskRecord, bool, error) {
	id, err := validate.ID(req.TaskID)
	if err != nil {
		return nil, false, fmt.Errorf("task_id: %w", err)
	}
	if req.empty() {
		rec, err := b.read(id)
		return rec, false, err
	}

	edges := make([]string, 0, len(req.AddBlockedBy)+len(req.AddBlocks))
	for _, dep := range req.AddBlockedBy {
		d, err := validate.ID(dep)
		if err != nil {
			return nil, false, fmt.Errorf("add_blocked_by: %w", err)
		}
		edges = append(edges, d)
	}
	for _, tgt := range req.AddBlocks {
		tg, err := validate.ID(tgt)
		if err != nil {
			return nil, false, fmt.Errorf("add_blocks: %w", err)
		}
		edges = append(edges, tg)
	}
	for _, other := range edges {
		if other == id {
			return nil, false, fmt.Errorf("task %s cannot block itself", id)
		}
	}

	release, err := b.lockAll(append([]string{id}, edges...)...)
	if err != nil {
		return nil, false, err
	}
	defer release()

	rec, err := b.read(id)
	if err != nil {
		return nil, false, err
	}
	now := time.Now()
	assigned := false

	if req.Status != nil {
		st := domain.TaskStatus(*req.Status)
		if !domain.ValidTaskStatus(st) {
			return nil, false, fmt.Errorf("invalid status %q: want pending, in_progress, completed or cancelled", *req.Status)
		}
		rec.Status = st
	}
	if req.Subject != nil {
		s := strings.TrimSpace(*req.Subject)
		if s == "" {
			return nil, false, fmt.Errorf("subject must not be empty")
		}
		rec.Subject = s
	}
	if req.Description != nil {
		rec.Description = *req.Description
	}
	if req.Priority != nil {
		p := domain.Priority(*req.Priority)
		if !domain.ValidTaskPriority(p) {
			return nil, false, fmt.Errorf("invalid priority %q: want low, normal or high", *req.Priority)
		}
		rec.Priority = p
	}
	if req.Assignee != nil {
		assigned = *req.Assignee != "" && *req.Assignee != rec.Assignee
		rec.Assignee = *req.Assignee
	}

	for _, dep := range req.AddBlockedBy {
		other, err := b.read(dep)
		if err != nil {
			return nil, false, fmt.Errorf("add_blocked_by: %w", err)
		}
		rec.BlockedBy = appendUnique(rec.BlockedBy, dep)
		other.Blocks = appendUnique(other.Blocks, id)
		other.Updated = now
		if err := b.write(other); err != nil {
			return nil, false, err
		}
	}
	for _, tgt := range req.AddBlocks {
		other, err := b.read(tgt)
		if err != nil {
			return nil, false, fmt.Errorf("add_blocks: %w", err)
		}
		rec.Blocks = appendUnique(rec.Blocks, tgt)
		other.BlockedBy = appendUnique(other.BlockedBy, id)
		other.Updated = now
		if err := b.write(other); err != nil {
			return nil, false, err
		}
	}

	rec.Updated = now
	if err := b.write(rec); err != nil {
		return nil, false, err
	}
	if assigned {
		b.feedQueue(rec, req.By, now)
	}
	return rec, true, nil
}

// feedQueue appends an assignment line when the assignee is a live session.
// The feed is advisory; a failed append never fails the mutation.
func (b *Board) feedQueue(rec *domain.TaskRecord, by string, now time.Time) {
	sid8, err := validate.SessionID(rec.Assignee)
	if err != nil {
		return
	}
	target := b.sessions.Read(sid8)
	if target == nil || session.DeriveStatus(target, now) == domain.SessionClosed {
		return
	}
	entry := domain.Assignment{TS: now, TaskID: rec.TaskID, Subject: rec.Subject, Assignee: sid8, By: by}
	if err := statedir.AppendJSON(b.pol.QueueFile(), entry); err != nil {
		b.logger.Printf("TaskBoard: queue feed for %s failed: %v", rec.TaskID, err)
		return
	}
	b.logger.Printf("TaskBoard: queued %s for %s", rec.TaskID, sid8)
}

// Get returns one task by id.
func (b *Board) Get(taskID string) (*domain.TaskRecord, error) {
	id, err := validate.ID(taskID)
	if err != nil {
		return nil, fmt.Errorf("task_id: %w", err)
	}
	return b.read(id)
}

// Item is one listing row. OpenBlockers holds the subset of blocked_by whose
// tasks are still pending or in progress.
type Item struct {
	Task         *domain.TaskRecord
	OpenBlockers []string
}

// List returns tasks filtered by status and assignee, ordered by status
// ordinal then creation time. Corrupt task files are skipped.
func (b *Board) List(status, assignee string) ([]Item, error) {
	if status != "" && !domain.ValidTaskStatus(domain.TaskStatus(status)) {
		return nil, fmt.Errorf("invalid status %q: want pending, in_progress, completed or cancelled", status)
	}
	entries, err := os.ReadDir(b.pol.TasksDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tasks dir: %w", err)
	}

	byID := make(map[string]*domain.TaskRecord)
	var all []*domain.TaskRecord
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var rec domain.TaskRecord
		if statedir.ReadJSON(filepath.Join(b.pol.TasksDir(), e.Name()), &rec) != nil || rec.TaskID == "" {
			continue
		}
		byID[rec.TaskID] = &rec
		all = append(all, &rec)
	}

	var items []Item
	for _, rec := range all {
		if status != "" && rec.Status != domain.TaskStatus(status) {
			continue
		}
		if assignee != "" && rec.Assignee != assignee {
			continue
		}
		item := Item{Task: rec}
		for _, dep := range rec.BlockedBy {
			blocker, ok := byID[dep]
			if !ok {
				continue
			}
			if blocker.Status == domain.TaskPending || blocker.Status == domain.TaskInProgress {
				item.OpenBlockers = append(item.OpenBlockers, dep)
			}
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		oi, oj := domain.StatusOrdinal(items[i].Task.Status), domain.StatusOrdinal(items[j].Task.Status)
		if oi != oj {
			return oi < oj
		}
		return items[i].Task.Created.Before(items[j].Task.Created)
	})
	return items, nil
}
