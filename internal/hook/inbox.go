package hook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/mailbox"
	"github.com/jaakkos/switchboard/internal/statedir"
	"github.com/jaakkos/switchboard/internal/validate"
)

const (
	// resultTailLines is how much of a finished worker's output is routed to
	// the session that asked to be notified.
	resultTailLines = 20
	// resultTailBytes keeps the routed message well inside the inbox cap.
	resultTailBytes = 4 * 1024
)

// Inbox is the pre-tool hook: it routes finished workers' results to their
// notify targets, surfaces task assignments queued for this session, and
// drains this session's inbox to stdout.
func (r *Runner) Inbox(in Input) error {
	sid8, err := validate.SessionID(in.SessionID)
	if err != nil {
		return &BlockedError{Reason: err.Error()}
	}
	if err := r.ensureDirs(); err != nil {
		return err
	}
	r.routeWorkerResults()
	r.surfaceAssignments(sid8)
	r.drainInbox(sid8)
	return nil
}

// routeWorkerResults delivers each finished worker's output to the session
// its meta names, exactly once. The .reported sentinel marks delivery; the
// mkdir route lock keeps concurrent hook processes from double-delivering.
// Both are left in place afterwards and removed with the artifact set.
func (r *Runner) routeWorkerResults() {
	entries, err := os.ReadDir(r.pol.ResultsDir())
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".meta.json.done") {
			continue
		}
		taskID := strings.TrimSuffix(name, ".meta.json.done")
		reported := filepath.Join(r.pol.ResultsDir(), taskID+".reported")
		if _, err := os.Stat(reported); err == nil {
			continue
		}
		routeLock := filepath.Join(r.pol.ResultsDir(), taskID+".route.lock")
		owned, err := statedir.AcquireDirLock(routeLock)
		if err != nil || !owned {
			continue
		}

		var meta domain.WorkerMeta
		if statedir.ReadJSON(r.pol.ResultMeta(taskID), &meta) != nil || meta.NotifySessionID == "" {
			// Nothing to deliver; the sentinel stops future scans.
			r.markReported(reported, "")
			continue
		}
		target, verr := validate.SessionID(meta.NotifySessionID)
		if verr != nil {
			r.markReported(reported, "")
			continue
		}

		content := "[WORKER COMPLETED] " + taskID
		if tail := r.resultTail(taskID); tail != "" {
			content += "\n" + tail
		}
		msg := domain.Message{TS: time.Now(), From: "worker", Content: mailbox.StripControl(content)}
		if aerr := r.mail.Append(target, msg); aerr != nil {
			// Delivery failed; release the lock so a later invocation retries.
			r.logger.Printf("Hook: route result %s: %v", taskID, aerr)
			os.Remove(routeLock)
			continue
		}
		if rec := r.sessions.Read(target); rec != nil && !rec.HasMessages {
			rec.HasMessages = true
			r.sessions.Write(rec)
		}
		r.markReported(reported, target)
		r.logger.Printf("Hook: routed result %s to %s", taskID, target)
	}
}

func (r *Runner) markReported(path, target string) {
	if err := os.WriteFile(path, []byte(target+"\n"), 0o600); err != nil {
		r.logger.Printf("Hook: write sentinel %s: %v", filepath.Base(path), err)
	}
}

// resultTail returns the last lines of a worker's captured output, bounded
// so the routed message never blows the inbox cap.
func (r *Runner) resultTail(taskID string) string {
	data, err := os.ReadFile(r.pol.ResultText(taskID))
	if err != nil || len(data) == 0 {
		return ""
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > resultTailLines {
		lines = lines[len(lines)-resultTailLines:]
	}
	tail := strings.Join(lines, "\n")
	if len(tail) > resultTailBytes {
		tail = tail[len(tail)-resultTailBytes:]
	}
	return tail
}

// surfaceAssignments prints task assignments queued for this session and
// removes them from the shared queue. Lines for other sessions and lines
// that do not parse stay in the file.
func (r *Runner) surfaceAssignments(sid8 string) {
	claimed, err := statedir.ClaimLines(r.pol.QueueFile(), func(raw json.RawMessage) bool {
		var a domain.Assignment
		return json.Unmarshal(raw, &a) == nil && a.Assignee == sid8
	})
	if err != nil {
		r.logger.Printf("Hook: claim queue: %v", err)
		return
	}
	for _, raw := range claimed {
		var a domain.Assignment
		if json.Unmarshal(raw, &a) != nil {
			continue
		}
		line := fmt.Sprintf("[TASK ASSIGNED] %s: %s", a.TaskID, a.Subject)
		if a.By != "" {
			line += fmt.Sprintf(" (from %s)", a.By)
		}
		fmt.Fprintln(r.stdout, mailbox.StripControl(line))
	}
}

// drainInbox surfaces this session's queued messages between unmistakable
// markers. The drain itself is the mailbox's crash-safe rename discipline.
func (r *Runner) drainInbox(sid8 string) {
	res, err := r.mail.Drain(sid8)
	if err != nil {
		r.logger.Printf("Hook: drain inbox %s: %v", sid8, err)
		return
	}
	if len(res.Messages) == 0 {
		return
	}
	fmt.Fprintln(r.stdout, "--- INCOMING MESSAGES FROM COORDINATOR ---")
	for _, m := range res.Messages {
		priority := m.Priority
		if priority == "" {
			priority = domain.PriorityNormal
		}
		stamp := ""
		if !m.TS.IsZero() {
			stamp = m.TS.Format("15:04:05") + " "
		}
		fmt.Fprintf(r.stdout, "[%s] %sfrom %s: %s\n", priority, stamp, m.From, mailbox.StripControl(m.Content))
	}
	if res.Truncated {
		fmt.Fprintln(r.stdout, "(inbox truncated; oldest messages were dropped)")
	}
	fmt.Fprintln(r.stdout, "--- END INCOMING MESSAGES ---")
}
