// Package hook implements the five host-agent hooks: session registration,
// the per-tool-call heartbeat, session end, inbox surfacing, and the pre-edit
// conflict advisor. Hooks run as short-lived processes fed a JSON payload on
// stdin; they update the state root directly without going through the
// coordinator. Every failure except an invalid session id is swallowed so a
// broken state root never wedges the agent's tool calls.
package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/mailbox"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/proc"
	"github.com/jaakkos/switchboard/internal/session"
	"github.com/jaakkos/switchboard/internal/statedir"
	"github.com/jaakkos/switchboard/internal/terminal"
	"github.com/jaakkos/switchboard/internal/validate"
	"github.com/jaakkos/switchboard/internal/worktree"
)

const (
	// heartbeatCooldown bounds how often a session record is rewritten. The
	// activity line is appended on every call regardless.
	heartbeatCooldown = 5 * time.Second
	// staleSweepEvery bounds the full-directory stale scan.
	staleSweepEvery = 60 * time.Second
	// staleAfter is the inactivity age at which an active session is marked
	// stale by the sweep.
	staleAfter = time.Hour
	// ttyWalkMax caps the ancestor walk when probing for a controlling
	// terminal.
	ttyWalkMax = 5
)

// ToolInput carries the fields hooks care about; the payload holds more for
// other tools and those pass through undecoded.
type ToolInput struct {
	FilePath string `json:"file_path"`
	Command  string `json:"command"`
}

// Input is the JSON payload the host agent pipes to every hook.
type Input struct {
	SessionID      string    `json:"session_id"`
	CWD            string    `json:"cwd"`
	ToolName       string    `json:"tool_name"`
	ToolInput      ToolInput `json:"tool_input"`
	Source         string    `json:"source"`
	TranscriptPath string    `json:"transcript_path"`
}

// ParseInput decodes a hook payload.
func ParseInput(r io.Reader) (Input, error) {
	var in Input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return Input{}, fmt.Errorf("parse hook input: %w", err)
	}
	return in, nil
}

// BlockedError tells the host agent to block the tool call (exit 2). Only an
// invalid session id produces it.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return "BLOCKED: " + e.Reason
}

// Runner executes hook roles against the state root.
type Runner struct {
	pol      *policy.Policy
	sessions *session.Store
	mail     *mailbox.Service
	logger   *log.Logger
	stdout   io.Writer
	stderr   io.Writer
}

func NewRunner(pol *policy.Policy, logger *log.Logger, stdout, stderr io.Writer) *Runner {
	sessions := session.NewStore(pol)
	return &Runner{
		pol:      pol,
		sessions: sessions,
		mail:     mailbox.NewService(pol, sessions),
		logger:   logger,
		stdout:   stdout,
		stderr:   stderr,
	}
}

// ensureDirs creates the directories hooks write to. Hardening failures
// downgrade to warnings in test mode.
func (r *Runner) ensureDirs() error {
	for _, dir := range []string{r.pol.TerminalsDir(), r.pol.InboxDir(), r.pol.ResultsDir()} {
		if err := statedir.EnsureDir(dir); err != nil {
			if statedir.IsHardenError(err) && policy.TestMode() {
				r.logger.Printf("Hook: %v (test mode, continuing)", err)
				continue
			}
			return err
		}
	}
	return nil
}

// detectTTY walks from this process toward init looking for a controlling
// terminal. The hook usually inherits one directly; agents started through
// wrappers need a hop or two.
func detectTTY() string {
	pid := os.Getpid()
	for hop := 0; hop < ttyWalkMax && pid > 0; hop++ {
		if tty := proc.TTY(pid); tty != "" {
			return tty
		}
		pid = proc.PPid(pid)
	}
	return ""
}

// Register creates the session record at session start, stamps project and
// branch, probes for a TTY and titles it agent-<sid8>, and logs a start
// event.
func (r *Runner) Register(in Input) error {
	sid8, err := validate.SessionID(in.SessionID)
	if err != nil {
		return &BlockedError{Reason: err.Error()}
	}
	if err := r.ensureDirs(); err != nil {
		return err
	}
	now := time.Now()

	rec := domain.NewSessionRecord(sid8, now)
	rec.CWD = in.CWD
	if in.CWD != "" {
		rec.Project = filepath.Base(in.CWD)
	}
	rec.Transcript = in.TranscriptPath
	rec.Source = in.Source
	if in.CWD != "" {
		if branch, berr := worktree.CurrentBranch(in.CWD); berr == nil {
			rec.Branch = branch
		}
	}
	if tty := detectTTY(); tty != "" && validate.TTYPath(tty) {
		rec.TTY = tty
		if terr := terminal.SetTitle(tty, "agent-"+sid8); terr != nil {
			r.logger.Printf("Hook: set title for %s: %v", sid8, terr)
		}
	}
	if err := r.sessions.Write(rec); err != nil {
		return err
	}

	event := domain.SessionEvent{TS: now, Event: "start", Session: sid8, Project: rec.Project}
	if err := statedir.AppendJSON(r.pol.SessionsLog(), event); err != nil {
		r.logger.Printf("Hook: sessions log: %v", err)
	}
	if err := statedir.TruncateTail(r.pol.SessionsLog(), policy.SessionsLogMax, policy.SessionsLogKeep); err != nil {
		r.logger.Printf("Hook: trim sessions log: %v", err)
	}
	r.logger.Printf("Hook: registered session %s (project=%s)", sid8, rec.Project)
	return nil
}

// Heartbeat records one tool call. The activity line always lands; the
// session record update is skipped inside the cooldown window.
func (r *Runner) Heartbeat(in Input) error {
	sid8, err := validate.SessionID(in.SessionID)
	if err != nil {
		return &BlockedError{Reason: err.Error()}
	}
	if err := r.ensureDirs(); err != nil {
		return err
	}
	now := time.Now()

	entry := domain.ActivityEntry{TS: now, Session: sid8, Tool: in.ToolName, File: in.ToolInput.FilePath, CWD: in.CWD}
	if err := statedir.AppendJSON(r.pol.ActivityLog(), entry); err != nil {
		r.logger.Printf("Hook: activity log: %v", err)
	}

	if !statedir.Cooldown(r.pol.CooldownLock(sid8), heartbeatCooldown) {
		return nil
	}

	rec := r.sessions.Read(sid8)
	if rec == nil {
		// The register hook never fired (agent attached mid-session).
		rec = domain.NewSessionRecord(sid8, now)
		rec.Source = "heartbeat-fallback"
		rec.CWD = in.CWD
		if in.CWD != "" {
			rec.Project = filepath.Base(in.CWD)
		}
	}
	rec.LastActive = now
	rec.SchemaVersion = domain.SchemaVersion
	if rec.Status == domain.SessionStale || rec.Status == "" {
		// A tool call is proof of life; only closed stays closed.
		rec.Status = domain.SessionActive
	}
	file := in.ToolInput.FilePath
	if in.ToolName != "" {
		rec.LastTool = in.ToolName
		rec.CountTool(in.ToolName)
		rec.RecordOp(now, in.ToolName, filepath.Base(file))
	}
	if file != "" {
		rec.LastFile = filepath.Base(file)
		if in.ToolName == "Write" || in.ToolName == "Edit" {
			rec.TouchFile(file)
		}
		if planArtifact(file) {
			rec.PlanFile = file
		}
	}
	if rec.TTY == "" {
		if tty := detectTTY(); tty != "" && validate.TTYPath(tty) {
			rec.TTY = tty
		}
	}
	if err := r.sessions.Write(rec); err != nil {
		return err
	}

	r.sweepStale(now)
	if err := statedir.TruncateTail(r.pol.ActivityLog(), policy.ActivityLogMax, policy.ActivityLogKeep); err != nil {
		r.logger.Printf("Hook: trim activity log: %v", err)
	}
	return nil
}

// sweepStale marks long-inactive sessions, at most once per minute across
// all hook processes.
func (r *Runner) sweepStale(now time.Time) {
	if !statedir.Cooldown(r.pol.StaleSweepLock(), staleSweepEvery) {
		return
	}
	for _, rec := range r.sessions.List() {
		if rec.Status != domain.SessionActive || rec.LastActive.IsZero() {
			continue
		}
		if now.Sub(rec.LastActive) < staleAfter {
			continue
		}
		rec.Status = domain.SessionStale
		if err := r.sessions.Write(rec); err != nil {
			r.logger.Printf("Hook: stale sweep %s: %v", rec.Session, err)
		}
	}
}

// planArtifact reports whether path looks like a persisted plan document.
func planArtifact(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return strings.HasSuffix(base, ".md") && strings.Contains(base, "plan")
}

// SessionEnd closes the session record, preserving its history, and clears
// the per-session cooldown.
func (r *Runner) SessionEnd(in Input) error {
	sid8, err := validate.SessionID(in.SessionID)
	if err != nil {
		return &BlockedError{Reason: err.Error()}
	}
	if err := r.ensureDirs(); err != nil {
		return err
	}
	rec := r.sessions.Read(sid8)
	if rec == nil {
		return nil
	}
	now := time.Now()
	rec.Status = domain.SessionClosed
	rec.Ended = now
	if err := r.sessions.Write(rec); err != nil {
		return err
	}
	os.Remove(r.pol.CooldownLock(sid8))

	event := domain.SessionEvent{TS: now, Event: "end", Session: sid8, Project: rec.Project}
	if err := statedir.AppendJSON(r.pol.SessionsLog(), event); err != nil {
		r.logger.Printf("Hook: sessions log: %v", err)
	}
	r.logger.Printf("Hook: closed session %s", sid8)
	return nil
}
