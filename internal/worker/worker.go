// Package worker supervises spawned worker agents. A worker is a detached
// agent process wrapped in a generated script that maintains the task's
// on-disk artifacts: .meta.json, .pid, .txt and the .meta.json.done marker.
// The supervisor never holds a child handle; every coordinator instance
// observes workers purely through those files.
package worker

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/proc"
	"github.com/jaakkos/switchboard/internal/statedir"
	"github.com/jaakkos/switchboard/internal/terminal"
	"github.com/jaakkos/switchboard/internal/validate"
	"github.com/jaakkos/switchboard/internal/worktree"
)

const metaPromptMax = 500

// Supervisor spawns, inspects and kills workers.
type Supervisor struct {
	pol    *policy.Policy
	logger *log.Logger
}

func NewSupervisor(pol *policy.Policy, logger *log.Logger) *Supervisor {
	return &Supervisor{pol: pol, logger: logger}
}

// SpawnRequest carries the validated-at-the-edge spawn parameters.
type SpawnRequest struct {
	Directory       string
	Prompt          string
	Model           string
	Agent           string
	TaskID          string
	NotifySessionID string
	Files           []string
	Layout          terminal.Layout
	Mode            domain.WorkerMode
	Isolate         bool
}

// SpawnResult reports what was actually launched.
type SpawnResult struct {
	TaskID    string
	Directory string
	Branch    string
	App       string
}

// Spawn validates the request, refuses to race running workers on the same
// files, optionally isolates into a worktree, writes the running meta, lays
// down prompt and wrapper script, and hands the script to the platform
// launcher. Failures after the meta exists mark it failed.
func (s *Supervisor) Spawn(req SpawnRequest) (SpawnResult, error) {
	var res SpawnResult

	dir, err := validate.Directory(req.Directory)
	if err != nil {
		return res, err
	}
	if info, serr := os.Stat(dir); serr != nil || !info.IsDir() {
		return res, fmt.Errorf("directory %s does not exist", dir)
	}
	req.Directory = dir
	if strings.TrimSpace(req.Prompt) == "" {
		return res, fmt.Errorf("prompt must not be empty")
	}
	taskID := req.TaskID
	if taskID == "" {
		taskID = fmt.Sprintf("W%d", time.Now().UnixMilli())
	} else if taskID, err = validate.ID(taskID); err != nil {
		return res, fmt.Errorf("task_id: %w", err)
	}
	res.TaskID = taskID
	if req.Mode == "" {
		req.Mode = domain.ModePipe
	}
	if req.Mode != domain.ModePipe && req.Mode != domain.ModeInteractive {
		return res, fmt.Errorf("invalid mode %q: want pipe or interactive", req.Mode)
	}
	model := req.Model
	if model == "" {
		model = s.pol.DefaultModel()
	} else if model, err = validate.Model(model); err != nil {
		return res, err
	}
	agent := req.Agent
	if agent, err = validate.Agent(agent); err != nil {
		return res, err
	}
	for _, p := range []string{s.pol.ResultMeta(taskID), s.pol.ResultText(taskID)} {
		if _, err := os.Stat(p); err == nil {
			return res, fmt.Errorf("task %s already has results (%s exists)", taskID, filepath.Base(p))
		}
	}
	if err := s.runningConflict(taskID, req.Directory, req.Files); err != nil {
		return res, err
	}

	effDir := req.Directory
	if req.Isolate {
		wt, err := worktree.Ensure(req.Directory, taskID)
		if err != nil {
			return res, fmt.Errorf("worktree isolation: %w", err)
		}
		effDir = wt.Path
		res.Branch = wt.Branch
	}
	res.Directory = effDir

	meta := domain.WorkerMeta{
		TaskID:          taskID,
		Directory:       effDir,
		Prompt:          truncate(req.Prompt, metaPromptMax),
		Model:           model,
		Agent:           agent,
		NotifySessionID: req.NotifySessionID,
		Isolated:        req.Isolate,
		Mode:            req.Mode,
		Files:           req.Files,
		Spawned:         time.Now(),
		Status:          domain.WorkerRunning,
	}
	if req.Isolate {
		meta.OriginalDirectory = req.Directory
		meta.WorktreeBranch = res.Branch
	}
	if err := statedir.WriteJSON(s.pol.ResultMeta(taskID), meta); err != nil {
		return res, err
	}

	prompt := s.assemblePrompt(req.Prompt, req.Mode)
	if err := statedir.WriteFileAtomic(s.pol.ResultPrompt(taskID), []byte(prompt)); err != nil {
		return res, s.fail(taskID, err)
	}

	platform := policy.Platform(runtime.GOOS)
	command, err := s.writeScript(platform, taskID, effDir, model, agent)
	if err != nil {
		return res, s.fail(taskID, err)
	}
	app := s.pol.TerminalApp()
	if app == "" {
		app = terminal.Detect(platform)
	}
	launch, err := terminal.Command(platform, app, command, req.Layout)
	if err != nil {
		return res, s.fail(taskID, err)
	}
	if err := terminal.Run(launch); err != nil {
		return res, s.fail(taskID, fmt.Errorf("launch worker: %w", err))
	}
	res.App = app
	s.logger.Printf("WorkerSupervisor: spawned %s in %s (mode=%s app=%s isolated=%v)",
		taskID, effDir, req.Mode, app, req.Isolate)
	return res, nil
}

// fail marks the task's meta failed with the cause and passes the cause on.
func (s *Supervisor) fail(taskID string, cause error) error {
	var meta domain.WorkerMeta
	if err := statedir.ReadJSON(s.pol.ResultMeta(taskID), &meta); err == nil {
		meta.Status = domain.WorkerFailed
		meta.Error = cause.Error()
		if werr := statedir.WriteJSON(s.pol.ResultMeta(taskID), meta); werr != nil {
			s.logger.Printf("WorkerSupervisor: could not mark %s failed: %v", taskID, werr)
		}
	}
	return cause
}

// runningConflict rejects a spawn whose files intersect those of another
// worker that is still alive (meta present, no done marker, PID alive).
func (s *Supervisor) runningConflict(taskID, dir string, files []string) error {
	if len(files) == 0 {
		return nil
	}
	requested := make(map[string]bool, len(files))
	for _, f := range files {
		if n := validate.NormalizePath(f, dir); n != "" {
			requested[n] = true
		}
	}
	entries, err := os.ReadDir(s.pol.ResultsDir())
	if err != nil {
		return nil
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".meta.json") {
			continue
		}
		other := strings.TrimSuffix(name, ".meta.json")
		if other == taskID {
			continue
		}
		if _, err := os.Stat(s.pol.ResultDone(other)); err == nil {
			continue
		}
		var meta domain.WorkerMeta
		if statedir.ReadJSON(s.pol.ResultMeta(other), &meta) != nil {
			continue
		}
		if len(meta.Files) == 0 {
			continue
		}
		pid, ok := readPID(s.pol.ResultPID(other))
		if !ok || !proc.Alive(pid) {
			continue
		}
		base := meta.OriginalDirectory
		if base == "" {
			base = meta.Directory
		}
		var overlap []string
		for _, f := range meta.Files {
			if n := validate.NormalizePath(f, base); n != "" && requested[n] {
				overlap = append(overlap, n)
			}
		}
		if len(overlap) > 0 {
			sort.Strings(overlap)
			return fmt.Errorf("worker %s is already editing: %s", other, strings.Join(overlap, ", "))
		}
	}
	return nil
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := proc.ParsePID(string(data))
	if err != nil {
		return 0, false
	}
	return pid, true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
