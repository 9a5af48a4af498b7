// Package history archives swept session and worker records into a sqlite
// database so the garbage collector can unlink protocol files without losing
// the trail. Archive failures are logged by callers and never block a sweep.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jaakkos/switchboard/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session TEXT NOT NULL,
	status TEXT NOT NULL,
	project TEXT NOT NULL DEFAULT '',
	branch TEXT NOT NULL DEFAULT '',
	started TEXT NOT NULL DEFAULT '',
	last_active TEXT NOT NULL DEFAULT '',
	tool_counts TEXT NOT NULL DEFAULT '{}',
	files_touched TEXT NOT NULL DEFAULT '[]',
	archived TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS workers (
	task_id TEXT NOT NULL,
	directory TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	mode TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	isolated INTEGER NOT NULL DEFAULT 0,
	spawned TEXT NOT NULL DEFAULT '',
	finished TEXT NOT NULL DEFAULT '',
	archived TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS activity (
	ts TEXT NOT NULL,
	session TEXT NOT NULL,
	tool TEXT NOT NULL,
	file TEXT NOT NULL DEFAULT '',
	archived TEXT NOT NULL
);
`

const indexes = `
CREATE INDEX IF NOT EXISTS idx_sessions_session ON sessions(session);
CREATE INDEX IF NOT EXISTS idx_workers_status ON workers(status);
CREATE INDEX IF NOT EXISTS idx_activity_tool ON activity(tool);
`

// Archive is an append-only sqlite store. Rows are never updated; the same
// session can appear once per sweep that retired it.
type Archive struct {
	db *sql.DB
}

// Open opens or creates the archive at path and applies the schema.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history schema: %w", err)
	}
	if _, err := db.Exec(indexes); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history indexes: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close releases the database. Safe to call twice.
func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// SaveSession archives one session record.
func (a *Archive) SaveSession(rec *domain.SessionRecord, now time.Time) error {
	if rec == nil {
		return fmt.Errorf("nil session record")
	}
	counts, _ := json.Marshal(rec.ToolCounts)
	files, _ := json.Marshal(rec.FilesTouched)
	_, err := a.db.Exec(
		"INSERT INTO sessions (session, status, project, branch, started, last_active, tool_counts, files_touched, archived) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.Session, string(rec.Status), rec.Project, rec.Branch,
		fmtTime(rec.Started), fmtTime(rec.LastActive), string(counts), string(files), fmtTime(now))
	if err != nil {
		return fmt.Errorf("archive session %s: %w", rec.Session, err)
	}
	return nil
}

// SaveWorker archives one worker meta with its final status.
func (a *Archive) SaveWorker(meta *domain.WorkerMeta, status domain.WorkerStatus, now time.Time) error {
	if meta == nil {
		return fmt.Errorf("nil worker meta")
	}
	isolated := 0
	if meta.Isolated {
		isolated = 1
	}
	_, err := a.db.Exec(
		"INSERT INTO workers (task_id, directory, model, mode, status, isolated, spawned, finished, archived) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		meta.TaskID, meta.Directory, meta.Model, string(meta.Mode), string(status),
		isolated, fmtTime(meta.Spawned), fmtTime(meta.Finished), fmtTime(now))
	if err != nil {
		return fmt.Errorf("archive worker %s: %w", meta.TaskID, err)
	}
	return nil
}

// SaveActivity archives a batch of activity lines in one transaction.
func (a *Archive) SaveActivity(entries []domain.ActivityEntry, now time.Time) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("archive activity: %w", err)
	}
	defer tx.Rollback()
	for _, e := range entries {
		if _, err := tx.Exec(
			"INSERT INTO activity (ts, session, tool, file, archived) VALUES (?, ?, ?, ?, ?)",
			fmtTime(e.TS), e.Session, e.Tool, e.File, fmtTime(now)); err != nil {
			return fmt.Errorf("archive activity: %w", err)
		}
	}
	return tx.Commit()
}

// ToolCount is one row of the tool leaderboard.
type ToolCount struct {
	Tool  string
	Count int
}

// Stats are the archive-side aggregates behind get_stats.
type Stats struct {
	Sessions        int
	Workers         int
	ActivityLines   int
	WorkersByStatus map[string]int
	TopTools        []ToolCount
}

// Stats aggregates totals across the archive. Up to five tools are returned,
// busiest first.
func (a *Archive) Stats() (Stats, error) {
	st := Stats{WorkersByStatus: map[string]int{}}
	for _, q := range []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM sessions", &st.Sessions},
		{"SELECT COUNT(*) FROM workers", &st.Workers},
		{"SELECT COUNT(*) FROM activity", &st.ActivityLines},
	} {
		if err := a.db.QueryRow(q.query).Scan(q.dst); err != nil {
			return st, fmt.Errorf("history stats: %w", err)
		}
	}

	rows, err := a.db.Query("SELECT status, COUNT(*) FROM workers GROUP BY status")
	if err != nil {
		return st, fmt.Errorf("history stats: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			_ = rows.Close()
			return st, err
		}
		st.WorkersByStatus[status] = n
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("history stats: %w", err)
	}

	rows, err = a.db.Query("SELECT tool, COUNT(*) AS n FROM activity GROUP BY tool ORDER BY n DESC, tool LIMIT 5")
	if err != nil {
		return st, fmt.Errorf("history stats: %w", err)
	}
	for rows.Next() {
		var tc ToolCount
		if err := rows.Scan(&tc.Tool, &tc.Count); err != nil {
			_ = rows.Close()
			return st, err
		}
		st.TopTools = append(st.TopTools, tc)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("history stats: %w", err)
	}
	return st, nil
}
