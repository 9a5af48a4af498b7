// Package prune is the boot-time garbage collector for the state root. It
// removes session records, worker artifact sets, and pipeline directories
// whose work finished longer than a TTL ago, plus the stray temp and lock
// files a crashed process leaves behind, and it caps the append-only logs.
// Swept records are archived to the history database first when that archive
// is enabled.
package prune

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/history"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/session"
	"github.com/jaakkos/switchboard/internal/statedir"
	"github.com/jaakkos/switchboard/internal/worktree"
)

// Temp and lock files older than this are crash leftovers. Younger ones may
// belong to a live writer and are left alone.
const strayTTL = 5 * time.Minute

// Result counts what one sweep removed, per category.
type Result struct {
	Sessions  int `json:"sessions"`
	Workers   int `json:"workers"`
	Pipelines int `json:"pipelines"`
	Corrupted int `json:"corrupted"`
	Temp      int `json:"temp"`
	Locks     int `json:"locks"`
	Trimmed   int `json:"trimmed"`
}

func (r Result) String() string {
	return fmt.Sprintf("sessions=%d workers=%d pipelines=%d corrupted=%d temp=%d locks=%d trimmed=%d",
		r.Sessions, r.Workers, r.Pipelines, r.Corrupted, r.Temp, r.Locks, r.Trimmed)
}

// Sweeper removes expired state. Failures are logged and the affected entry
// skipped; a sweep never fails the caller.
type Sweeper struct {
	pol    *policy.Policy
	logger *log.Logger
}

func NewSweeper(pol *policy.Policy, logger *log.Logger) *Sweeper {
	return &Sweeper{pol: pol, logger: logger}
}

// Sweep runs one collection pass. A ttl <= 0 falls back to the configured
// default. Records that exist but cannot be parsed are left in place, with
// one exception: a session file holding invalid JSON is deleted, because an
// atomic writer can never produce one.
func (s *Sweeper) Sweep(ttl time.Duration) Result {
	if ttl <= 0 {
		ttl = time.Duration(s.pol.PruneTTLHours()) * time.Hour
	}
	now := time.Now()
	cutoff := now.Add(-ttl)

	var arc *history.Archive
	if s.pol.HistoryEnabled() {
		a, err := history.Open(s.pol.HistoryDB())
		if err != nil {
			s.logger.Printf("Prune: history archive unavailable: %v", err)
		} else {
			arc = a
			defer arc.Close()
		}
	}

	var res Result
	s.sweepSessions(&res, arc, cutoff, now)
	s.sweepWorkers(&res, arc, cutoff, now)
	s.sweepPipelines(&res, cutoff)
	s.sweepStray(&res, now)
	s.trimLogs(&res, arc, now)
	return res
}

// sweepSessions removes session files that are stale or closed and whose
// mtime is past the cutoff.
func (s *Sweeper) sweepSessions(res *Result, arc *history.Archive, cutoff, now time.Time) {
	entries, err := os.ReadDir(s.pol.TerminalsDir())
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "session-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(s.pol.TerminalsDir(), name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec domain.SessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			if os.Remove(path) == nil {
				s.logger.Printf("Prune: removed corrupted %s", name)
				res.Corrupted++
			}
			continue
		}
		if rec.Session == "" {
			rec.Session = strings.TrimSuffix(strings.TrimPrefix(name, "session-"), ".json")
		}
		status := session.DeriveStatus(&rec, now)
		if status != domain.SessionStale && status != domain.SessionClosed {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if arc != nil {
			if err := arc.SaveSession(&rec, now); err != nil {
				s.logger.Printf("Prune: archive session %s: %v", rec.Session, err)
			}
		}
		if err := os.Remove(path); err != nil {
			s.logger.Printf("Prune: remove %s: %v", name, err)
			continue
		}
		res.Sessions++
	}
}

// sweepWorkers removes the artifact set of every worker whose done marker is
// past the cutoff.
func (s *Sweeper) sweepWorkers(res *Result, arc *history.Archive, cutoff, now time.Time) {
	entries, err := os.ReadDir(s.pol.ResultsDir())
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".meta.json.done") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if s.sweepWorkerSet(arc, strings.TrimSuffix(name, ".meta.json.done"), now) {
			res.Workers++
		}
	}
}

// sweepWorkerSet archives and removes one worker's artifacts. A meta that
// exists but cannot be parsed keeps the whole set in place; a done marker
// with no meta at all is an orphan from an interrupted sweep and is cleared.
func (s *Sweeper) sweepWorkerSet(arc *history.Archive, taskID string, now time.Time) bool {
	metaPath := s.pol.ResultMeta(taskID)
	var meta domain.WorkerMeta
	err := statedir.ReadJSON(metaPath, &meta)
	switch {
	case err == nil:
		status := meta.Status
		var marker domain.DoneMarker
		if statedir.ReadJSON(s.pol.ResultDone(taskID), &marker) == nil && marker.Status != "" {
			status = marker.Status
		}
		if arc != nil {
			if aerr := arc.SaveWorker(&meta, status, now); aerr != nil {
				s.logger.Printf("Prune: archive worker %s: %v", taskID, aerr)
			}
		}
		if meta.Isolated && meta.OriginalDirectory != "" {
			wt := worktree.Info{Path: meta.Directory, Branch: meta.WorktreeBranch}
			if werr := worktree.Remove(meta.OriginalDirectory, wt); werr != nil {
				s.logger.Printf("Prune: worktree for %s: %v", taskID, werr)
			}
		}
	case os.IsNotExist(err):
	default:
		return false
	}

	// The done marker goes last: if the sweep is interrupted partway, the
	// marker still keys the set for the next boot.
	base := strings.TrimSuffix(metaPath, ".meta.json")
	for _, p := range []string{
		s.pol.ResultText(taskID),
		s.pol.ResultPrompt(taskID),
		s.pol.ResultPID(taskID),
		base + ".sh",
		base + ".ps1",
		base + ".reported",
		base + ".route.lock",
		metaPath,
		s.pol.ResultDone(taskID),
	} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.logger.Printf("Prune: remove %s: %v", filepath.Base(p), err)
		}
	}
	return true
}

// sweepPipelines removes pipeline directories whose done marker is past the
// cutoff. Directories without a marker belong to runs still in flight.
func (s *Sweeper) sweepPipelines(res *Result, cutoff time.Time) {
	entries, err := os.ReadDir(s.pol.ResultsDir())
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.pol.ResultsDir(), e.Name())
		info, err := os.Stat(filepath.Join(dir, "pipeline.done"))
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Printf("Prune: remove pipeline %s: %v", e.Name(), err)
			continue
		}
		res.Pipelines++
	}
}

// sweepStray removes temp files from crashed atomic writes and lock files
// whose holder died.
func (s *Sweeper) sweepStray(res *Result, now time.Time) {
	dirs := []string{
		s.pol.TerminalsDir(),
		s.pol.InboxDir(),
		s.pol.ResultsDir(),
		s.pol.TasksDir(),
		s.pol.TeamsDir(),
		s.pol.SessionCacheDir(),
	}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			isTemp := strings.HasSuffix(name, ".tmp")
			if !isTemp && !strings.HasSuffix(name, ".lock") {
				continue
			}
			info, err := e.Info()
			if err != nil || now.Sub(info.ModTime()) < strayTTL {
				continue
			}
			if os.Remove(filepath.Join(dir, name)) != nil {
				continue
			}
			if isTemp {
				res.Temp++
			} else {
				res.Locks++
			}
		}
	}
}

// trimLogs enforces the jsonl caps. Activity lines dropped by the rewrite
// are archived first; sessions.jsonl events have no archive table and are
// simply cut.
func (s *Sweeper) trimLogs(res *Result, arc *history.Archive, now time.Time) {
	res.Trimmed += s.trimLog(s.pol.SessionsLog(), policy.SessionsLogMax, policy.SessionsLogKeep, nil, now)
	res.Trimmed += s.trimLog(s.pol.ActivityLog(), policy.ActivityLogMax, policy.ActivityLogKeep, arc, now)
}

func (s *Sweeper) trimLog(path string, max, keep int, arc *history.Archive, now time.Time) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) <= max {
		return 0
	}
	drop := len(lines) - keep
	if arc != nil {
		var dropped []domain.ActivityEntry
		for _, line := range lines[:drop] {
			var entry domain.ActivityEntry
			if json.Unmarshal(line, &entry) == nil {
				dropped = append(dropped, entry)
			}
		}
		if err := arc.SaveActivity(dropped, now); err != nil {
			s.logger.Printf("Prune: archive activity: %v", err)
		}
	}
	if err := statedir.TruncateTail(path, max, keep); err != nil {
		s.logger.Printf("Prune: trim %s: %v", filepath.Base(path), err)
		return 0
	}
	return drop
}
