// Package domain holds the on-disk record types shared by the hooks and the
// coordinator. It has no dependencies on other packages.
package domain

import "time"

// SchemaVersion is written to every session record for forward-compatible
// evolution; readers treat missing fields of older versions as absent.
const SchemaVersion = 2

// SessionStatus is the lifecycle state of a terminal session.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionIdle    SessionStatus = "idle"
	SessionStale   SessionStatus = "stale"
	SessionClosed  SessionStatus = "closed"
	SessionUnknown SessionStatus = "unknown"
)

// WorkerStatus is the lifecycle state of a supervised worker.
type WorkerStatus string

const (
	WorkerRunning   WorkerStatus = "running"
	WorkerCompleted WorkerStatus = "completed"
	WorkerCancelled WorkerStatus = "cancelled"
	WorkerFailed    WorkerStatus = "failed"
	// WorkerUnknown is derived at read time when neither the done marker nor
	// a live PID explains the worker's state. Never persisted.
	WorkerUnknown WorkerStatus = "unknown"
)

// WorkerMode selects how a worker consumes its prompt.
type WorkerMode string

const (
	ModePipe        WorkerMode = "pipe"
	ModeInteractive WorkerMode = "interactive"
)

// TaskStatus is the lifecycle state of a task-board entry.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// ValidTaskStatus reports whether s is one of the four task states.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

// StatusOrdinal orders task listings: in-progress work first, cancelled last.
func StatusOrdinal(s TaskStatus) int {
	switch s {
	case TaskInProgress:
		return 0
	case TaskPending:
		return 1
	case TaskCompleted:
		return 2
	case TaskCancelled:
		return 3
	}
	return 4
}

// Priority grades messages and tasks. Messages use normal/urgent; tasks use
// low/normal/high.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidMessagePriority reports whether p may be used on an inbox message.
func ValidMessagePriority(p Priority) bool {
	return p == PriorityNormal || p == PriorityUrgent
}

// ValidTaskPriority reports whether p may be used on a task record.
func ValidTaskPriority(p Priority) bool {
	return p == PriorityLow || p == PriorityNormal || p == PriorityHigh
}

// RecentOp is one entry of a session's rolling operation window.
type RecentOp struct {
	T    time.Time `json:"t"`
	Tool string    `json:"tool"`
	File string    `json:"file,omitempty"`
}

// SessionRecord is the per-session state enriched by the hooks. The record is
// always rewritten wholesale; readers treat a parse failure as "no record".
type SessionRecord struct {
	Session        string         `json:"session"`
	Status         SessionStatus  `json:"status"`
	Project        string         `json:"project,omitempty"`
	Branch         string         `json:"branch,omitempty"`
	CWD            string         `json:"cwd,omitempty"`
	TTY            string         `json:"tty,omitempty"`
	Started        time.Time      `json:"started,omitzero"`
	LastActive     time.Time      `json:"last_active,omitzero"`
	LastTool       string         `json:"last_tool,omitempty"`
	LastFile       string         `json:"last_file,omitempty"`
	SchemaVersion  int            `json:"schema_version"`
	ToolCounts     map[string]int `json:"tool_counts,omitempty"`
	FilesTouched   []string       `json:"files_touched,omitempty"`
	RecentOps      []RecentOp     `json:"recent_ops,omitempty"`
	CurrentTask    string         `json:"current_task,omitempty"`
	CurrentFiles   []string       `json:"current_files,omitempty"`
	WorkRegistered bool           `json:"work_registered,omitempty"`
	PlanFile       string         `json:"plan_file,omitempty"`
	HasMessages    bool           `json:"has_messages,omitempty"`
	Source         string         `json:"source,omitempty"`
	Transcript     string         `json:"transcript,omitempty"`
	Ended          time.Time      `json:"ended,omitzero"`
}

// NewSessionRecord returns a fresh active record for the given short id.
func NewSessionRecord(sid8 string, now time.Time) *SessionRecord {
	return &SessionRecord{
		Session:       sid8,
		Status:        SessionActive,
		Started:       now,
		LastActive:    now,
		SchemaVersion: SchemaVersion,
		ToolCounts:    map[string]int{},
	}
}

const (
	maxFilesTouched = 30
	maxRecentOps    = 10
)

// TouchFile records a write to path. The list stays deduplicated with the
// latest occurrence winning and is bounded to the 30 most recent writes.
func (r *SessionRecord) TouchFile(path string) {
	if path == "" {
		return
	}
	out := r.FilesTouched[:0]
	for _, p := range r.FilesTouched {
		if p != path {
			out = append(out, p)
		}
	}
	out = append(out, path)
	if len(out) > maxFilesTouched {
		out = out[len(out)-maxFilesTouched:]
	}
	r.FilesTouched = out
}

// RecordOp appends one operation to the rolling window of ten.
func (r *SessionRecord) RecordOp(t time.Time, tool, file string) {
	r.RecentOps = append(r.RecentOps, RecentOp{T: t, Tool: tool, File: file})
	if len(r.RecentOps) > maxRecentOps {
		r.RecentOps = r.RecentOps[len(r.RecentOps)-maxRecentOps:]
	}
}

// CountTool increments the per-tool call counter.
func (r *SessionRecord) CountTool(tool string) {
	if r.ToolCounts == nil {
		r.ToolCounts = map[string]int{}
	}
	r.ToolCounts[tool]++
}

// SessionEvent is one line of sessions.jsonl, an audit log of starts and stops.
type SessionEvent struct {
	TS      time.Time `json:"ts"`
	Event   string    `json:"event"` // start, end
	Session string    `json:"session"`
	Project string    `json:"project,omitempty"`
}

// ActivityEntry is one line of activity.jsonl, written on every tool call.
type ActivityEntry struct {
	TS      time.Time `json:"ts"`
	Session string    `json:"session"`
	Tool    string    `json:"tool"`
	File    string    `json:"file,omitempty"`
	CWD     string    `json:"cwd,omitempty"`
}

// Message is one line of a per-session inbox.
type Message struct {
	TS       time.Time `json:"ts"`
	From     string    `json:"from"`
	Priority Priority  `json:"priority,omitempty"`
	Content  string    `json:"content"`
}

// WorkerMeta describes a supervised worker. It is created by the supervisor
// and finalized by the worker's wrapper script or by kill.
type WorkerMeta struct {
	TaskID            string       `json:"task_id"`
	Directory         string       `json:"directory"`
	OriginalDirectory string       `json:"original_directory,omitempty"`
	Prompt            string       `json:"prompt"` // first 500 chars only
	Model             string       `json:"model,omitempty"`
	Agent             string       `json:"agent,omitempty"`
	NotifySessionID   string       `json:"notify_session_id,omitempty"`
	Isolated          bool         `json:"isolated,omitempty"`
	WorktreeBranch    string       `json:"worktree_branch,omitempty"`
	Mode              WorkerMode   `json:"mode"`
	Files             []string     `json:"files,omitempty"`
	Spawned           time.Time    `json:"spawned"`
	Status            WorkerStatus `json:"status"`
	Finished          time.Time    `json:"finished,omitzero"`
	Cancelled         time.Time    `json:"cancelled,omitzero"`
	Error             string       `json:"error,omitempty"`
}

// DoneMarker is the contents of a worker's .meta.json.done companion file.
// Its existence, not its payload, is what makes a worker terminal.
type DoneMarker struct {
	Status   WorkerStatus `json:"status"`
	Finished time.Time    `json:"finished,omitzero"`
	ExitCode int          `json:"exit_code,omitempty"`
}

// PipelineStep names one step of a pipeline.
type PipelineStep struct {
	Step  int    `json:"step"`
	Name  string `json:"name"`
	Model string `json:"model,omitempty"`
	Agent string `json:"agent,omitempty"`
}

// PipelineMeta describes a sequential pipeline run.
type PipelineMeta struct {
	PipelineID string         `json:"pipeline_id"`
	Directory  string         `json:"directory"`
	TotalSteps int            `json:"total_steps"`
	Tasks      []PipelineStep `json:"tasks"`
	Started    time.Time      `json:"started"`
	Status     string         `json:"status"`
}

// PipelineLogEntry is one line of a pipeline's pipeline.log.
type PipelineLogEntry struct {
	Step     int       `json:"step"`
	Name     string    `json:"name"`
	Status   string    `json:"status"` // running, completed
	Started  time.Time `json:"started,omitzero"`
	Finished time.Time `json:"finished,omitzero"`
}

// TaskRecord is a task-board entry. BlockedBy and Blocks are opposing edge
// sets kept consistent on every mutation.
type TaskRecord struct {
	TaskID      string     `json:"task_id"`
	Subject     string     `json:"subject"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Assignee    string     `json:"assignee,omitempty"`
	Priority    Priority   `json:"priority"`
	Files       []string   `json:"files,omitempty"`
	BlockedBy   []string   `json:"blocked_by,omitempty"`
	Blocks      []string   `json:"blocks,omitempty"`
	Created     time.Time  `json:"created"`
	Updated     time.Time  `json:"updated"`
}

// Assignment is one line of queue.jsonl, the assigned-tasks feed surfaced to
// sessions by the inbox hook.
type Assignment struct {
	TS       time.Time `json:"ts"`
	TaskID   string    `json:"task_id"`
	Subject  string    `json:"subject"`
	Assignee string    `json:"assignee"`
	By       string    `json:"by,omitempty"`
}

// TeamMember is one member of a team record.
type TeamMember struct {
	Name      string    `json:"name"`
	Role      string    `json:"role,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Joined    time.Time `json:"joined"`
	Updated   time.Time `json:"updated"`
}

// TeamRecord is a named grouping of members with roles and work references.
type TeamRecord struct {
	TeamName    string       `json:"team_name"`
	Project     string       `json:"project,omitempty"`
	Description string       `json:"description,omitempty"`
	Created     time.Time    `json:"created"`
	Updated     time.Time    `json:"updated"`
	Members     []TeamMember `json:"members"`
}

// RateWindow is the sliding-window rate-limit state persisted per target.
type RateWindow struct {
	Timestamps []time.Time `json:"timestamps"`
}
