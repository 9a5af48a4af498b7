// Package conflict computes canonical-path overlap between a session's
// intended edits and the files every other live session is touching.
// Comparison is always on whole normalized paths; basenames never match
// across directories.
package conflict

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/session"
	"github.com/jaakkos/switchboard/internal/statedir"
	"github.com/jaakkos/switchboard/internal/validate"
)

const (
	recentWindow   = 5 * time.Minute
	activitySample = 100
)

// Detector resolves overlaps against the session registry and the tail of
// the activity log.
type Detector struct {
	pol      *policy.Policy
	sessions *session.Store
}

func NewDetector(pol *policy.Policy, sessions *session.Store) *Detector {
	return &Detector{pol: pol, sessions: sessions}
}

// SessionOverlap names one other session whose touched files intersect the
// requested set.
type SessionOverlap struct {
	Session string
	Project string
	Task    string
	Files   []string
}

// RecentEdit is an Edit/Write activity line on a requested path within the
// recent window.
type RecentEdit struct {
	Session string
	Tool    string
	File    string
	Age     time.Duration
}

// Report carries both detection sections. Empty means safe to proceed.
type Report struct {
	Requested []string
	Overlaps  []SessionOverlap
	Recent    []RecentEdit
}

func (r Report) Empty() bool {
	return len(r.Overlaps) == 0 && len(r.Recent) == 0
}

type auditLine struct {
	TS        time.Time `json:"ts"`
	Detector  string    `json:"detector"`
	Files     []string  `json:"files"`
	Conflicts []string  `json:"conflicts"`
}

// Detect normalizes files against the requester's cwd, intersects them with
// every other non-closed session's current_files and files_touched (each
// normalized against that session's own cwd), then scans the activity tail
// for fresh Edit/Write lines on the same paths. An audit line is appended
// regardless of outcome.
func (d *Detector) Detect(sid8 string, files []string) (Report, error) {
	req := d.sessions.Read(sid8)
	if req == nil {
		return Report{}, fmt.Errorf("no session %s", sid8)
	}

	requested := make(map[string]bool, len(files))
	var report Report
	for _, f := range files {
		n := validate.NormalizePath(f, req.CWD)
		if n == "" || requested[n] {
			continue
		}
		requested[n] = true
		report.Requested = append(report.Requested, n)
	}
	sort.Strings(report.Requested)

	now := time.Now()
	hit := make(map[string]bool)
	for _, rec := range d.sessions.List() {
		if rec.Session == sid8 {
			continue
		}
		if session.DeriveStatus(rec, now) == domain.SessionClosed {
			continue
		}
		overlap := intersect(rec, requested)
		if len(overlap) == 0 {
			continue
		}
		hit[rec.Session] = true
		report.Overlaps = append(report.Overlaps, SessionOverlap{
			Session: rec.Session,
			Project: rec.Project,
			Task:    rec.CurrentTask,
			Files:   overlap,
		})
	}

	// Activity tail: reads are best-effort, a broken log only weakens the
	// recent-edit section.
	items, _ := statedir.ReadTail(d.pol.ActivityLog(), activitySample)
	for _, raw := range items {
		var e domain.ActivityEntry
		if json.Unmarshal(raw, &e) != nil {
			continue
		}
		if e.Session == sid8 || (e.Tool != "Edit" && e.Tool != "Write") {
			continue
		}
		if now.Sub(e.TS) > recentWindow {
			continue
		}
		n := validate.NormalizePath(e.File, e.CWD)
		if n == "" || !requested[n] {
			continue
		}
		hit[e.Session] = true
		report.Recent = append(report.Recent, RecentEdit{
			Session: e.Session,
			Tool:    e.Tool,
			File:    n,
			Age:     now.Sub(e.TS).Truncate(time.Second),
		})
	}

	conflicts := make([]string, 0, len(hit))
	for sid := range hit {
		conflicts = append(conflicts, sid)
	}
	sort.Strings(conflicts)
	statedir.AppendJSON(d.pol.ConflictsLog(), auditLine{
		TS: now, Detector: sid8, Files: report.Requested, Conflicts: conflicts,
	})
	return report, nil
}

// intersect unions one session's current_files and files_touched, normalizes
// each against that session's cwd and keeps the requested hits.
func intersect(rec *domain.SessionRecord, requested map[string]bool) []string {
	seen := make(map[string]bool)
	var overlap []string
	scan := func(paths []string) {
		for _, f := range paths {
			n := validate.NormalizePath(f, rec.CWD)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			if requested[n] {
				overlap = append(overlap, n)
			}
		}
	}
	scan(rec.CurrentFiles)
	scan(rec.FilesTouched)
	sort.Strings(overlap)
	return overlap
}
