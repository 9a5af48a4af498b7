package worker

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/proc"
	"github.com/jaakkos/switchboard/internal/statedir"
	"github.com/jaakkos/switchboard/internal/validate"
)

const (
	tailDefault = 100
	tailMax     = 500
)

// ResultView is a point-in-time snapshot of one worker.
type ResultView struct {
	Meta       domain.WorkerMeta
	Status     domain.WorkerStatus
	Lines      []string
	TotalLines int
	Truncated  bool
}

// Result loads a worker's meta and output tail. Status is derived, not
// trusted from the meta: the done marker wins, then a live PID, else
// unknown.
func (s *Supervisor) Result(taskID string, tailLines int) (ResultView, error) {
	var view ResultView
	taskID, err := validate.ID(taskID)
	if err != nil {
		return view, fmt.Errorf("task_id: %w", err)
	}
	if err := statedir.ReadJSON(s.pol.ResultMeta(taskID), &view.Meta); err != nil {
		return view, fmt.Errorf("no worker %s", taskID)
	}
	view.Status = s.deriveStatus(taskID)

	limit := tailLines
	if limit <= 0 {
		limit = tailDefault
	}
	if limit > tailMax {
		limit = tailMax
	}
	data, err := os.ReadFile(s.pol.ResultText(taskID))
	if err != nil {
		return view, nil
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		lines = nil
	}
	view.TotalLines = len(lines)
	if len(lines) > limit {
		view.Truncated = true
		lines = lines[len(lines)-limit:]
	}
	view.Lines = lines
	return view, nil
}

func (s *Supervisor) deriveStatus(taskID string) domain.WorkerStatus {
	var marker domain.DoneMarker
	if err := statedir.ReadJSON(s.pol.ResultDone(taskID), &marker); err == nil {
		switch marker.Status {
		case domain.WorkerCompleted, domain.WorkerCancelled, domain.WorkerFailed:
			return marker.Status
		}
		return domain.WorkerCompleted
	}
	if _, err := os.Stat(s.pol.ResultDone(taskID)); err == nil {
		// Marker present but unreadable: the worker is still terminal.
		return domain.WorkerCompleted
	}
	if pid, ok := readPID(s.pol.ResultPID(taskID)); ok && proc.Alive(pid) {
		return domain.WorkerRunning
	}
	return domain.WorkerUnknown
}

// KillResult reports what Kill observed and did.
type KillResult struct {
	TaskID      string
	AlreadyDone bool
	PID         int
	Signalled   bool
}

// Kill soft-cancels a worker: signal the process if one is alive, then
// record the cancellation whether or not the signal landed. The coordinator
// never waits for the worker to exit.
func (s *Supervisor) Kill(taskID string) (KillResult, error) {
	taskID, err := validate.ID(taskID)
	if err != nil {
		return KillResult{}, fmt.Errorf("task_id: %w", err)
	}
	kr := KillResult{TaskID: taskID}
	var meta domain.WorkerMeta
	if err := statedir.ReadJSON(s.pol.ResultMeta(taskID), &meta); err != nil {
		return kr, fmt.Errorf("no worker %s", taskID)
	}

	pidPath := s.pol.ResultPID(taskID)
	if _, err := os.Stat(pidPath); os.IsNotExist(err) {
		if _, err := os.Stat(s.pol.ResultDone(taskID)); err == nil {
			kr.AlreadyDone = true
			return kr, nil
		}
	}
	if pid, ok := readPID(pidPath); ok && proc.Alive(pid) {
		kr.PID = pid
		if err := proc.Kill(pid); err != nil {
			s.logger.Printf("WorkerSupervisor: kill %s (pid %d): %v", taskID, pid, err)
		} else {
			kr.Signalled = true
		}
	}

	now := time.Now()
	if err := statedir.WriteJSON(s.pol.ResultDone(taskID), domain.DoneMarker{
		Status: domain.WorkerCancelled, Finished: now,
	}); err != nil {
		return kr, err
	}
	meta.Status = domain.WorkerCancelled
	meta.Cancelled = now
	if err := statedir.WriteJSON(s.pol.ResultMeta(taskID), meta); err != nil {
		return kr, err
	}
	os.Remove(pidPath)
	s.logger.Printf("WorkerSupervisor: cancelled %s", taskID)
	return kr, nil
}
