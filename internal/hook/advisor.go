package hook

import (
	"fmt"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/session"
	"github.com/jaakkos/switchboard/internal/validate"
)

// PreEdit warns when the file about to be edited is already touched by
// another live session. Advisory only: the warning goes to stderr and the
// tool call proceeds regardless. The full detector runs on explicit request;
// this is the per-call fast path.
func (r *Runner) PreEdit(in Input) error {
	sid8, err := validate.SessionID(in.SessionID)
	if err != nil {
		return &BlockedError{Reason: err.Error()}
	}
	file := in.ToolInput.FilePath
	if file == "" {
		return nil
	}
	if err := r.ensureDirs(); err != nil {
		return err
	}
	target := validate.NormalizePath(file, in.CWD)
	now := time.Now()
	for _, rec := range r.sessions.List() {
		if rec.Session == sid8 {
			continue
		}
		if session.DeriveStatus(rec, now) == domain.SessionClosed {
			continue
		}
		for _, touched := range rec.FilesTouched {
			if validate.NormalizePath(touched, rec.CWD) != target {
				continue
			}
			fmt.Fprintf(r.stderr, "WARNING: %s is also being edited by session %s\n", file, rec.Session)
			break
		}
	}
	return nil
}
