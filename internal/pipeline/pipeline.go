// Package pipeline runs sequential multi-step agent pipelines. A run is a
// generated script executing each step's agent in order under set -e; the
// coordinator observes progress purely through results/<id>/pipeline.log and
// the pipeline.done marker. A halted run stays running forever; nothing ever
// force-completes it.
package pipeline

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/statedir"
	"github.com/jaakkos/switchboard/internal/terminal"
	"github.com/jaakkos/switchboard/internal/validate"
	"github.com/jaakkos/switchboard/internal/worker"
)

// Executor creates and inspects pipeline runs.
type Executor struct {
	pol    *policy.Policy
	logger *log.Logger
}

func NewExecutor(pol *policy.Policy, logger *log.Logger) *Executor {
	return &Executor{pol: pol, logger: logger}
}

// Step is one requested pipeline stage.
type Step struct {
	Name   string
	Prompt string
	Model  string
	Agent  string
}

// RunRequest carries run_pipeline parameters.
type RunRequest struct {
	Directory  string
	PipelineID string
	Steps      []Step
	Layout     terminal.Layout
}

// RunResult reports the launched run.
type RunResult struct {
	PipelineID string
	Directory  string
	App        string
	Steps      int
}

func (e *Executor) metaPath(id string) string {
	return filepath.Join(e.pol.PipelineDir(id), "pipeline.meta.json")
}

func (e *Executor) logPath(id string) string {
	return filepath.Join(e.pol.PipelineDir(id), "pipeline.log")
}

func (e *Executor) donePath(id string) string {
	return filepath.Join(e.pol.PipelineDir(id), "pipeline.done")
}

func stepBase(i int, name string) string {
	return fmt.Sprintf("%d-%s", i, name)
}

// Run validates the request, writes per-step prompts and the runner script
// into results/<id>/, records the meta, and hands the script to the
// platform launcher.
func (e *Executor) Run(req RunRequest) (RunResult, error) {
	var res RunResult

	dir, err := validate.Directory(req.Directory)
	if err != nil {
		return res, err
	}
	if info, serr := os.Stat(dir); serr != nil || !info.IsDir() {
		return res, fmt.Errorf("directory %s does not exist", dir)
	}
	req.Directory = dir
	if len(req.Steps) == 0 {
		return res, fmt.Errorf("tasks must not be empty")
	}
	id := req.PipelineID
	if id == "" {
		id = fmt.Sprintf("P%d", time.Now().UnixMilli())
	} else if id, err = validate.ID(id); err != nil {
		return res, fmt.Errorf("pipeline_id: %w", err)
	}
	res.PipelineID = id
	pipeDir := e.pol.PipelineDir(id)
	if _, err := os.Stat(pipeDir); err == nil {
		return res, fmt.Errorf("pipeline %s already exists", id)
	}

	var steps []domain.PipelineStep
	for i, st := range req.Steps {
		name, err := validate.Name(st.Name)
		if err != nil {
			return res, fmt.Errorf("step %d name: %w", i+1, err)
		}
		if strings.TrimSpace(st.Prompt) == "" {
			return res, fmt.Errorf("step %d (%s): prompt must not be empty", i+1, name)
		}
		model := st.Model
		if model == "" {
			model = e.pol.DefaultModel()
		} else if model, err = validate.Model(model); err != nil {
			return res, fmt.Errorf("step %d (%s): %w", i+1, name, err)
		}
		agent, err := validate.Agent(st.Agent)
		if err != nil {
			return res, fmt.Errorf("step %d (%s): %w", i+1, name, err)
		}
		steps = append(steps, domain.PipelineStep{Step: i + 1, Name: name, Model: model, Agent: agent})
	}

	if err := statedir.EnsureDir(pipeDir); err != nil {
		return res, err
	}
	pre := worker.PriorContext(e.pol)
	for i, st := range steps {
		var b strings.Builder
		if pre != "" {
			b.WriteString(pre)
			b.WriteString("\n\n---\n\n")
		}
		b.WriteString(req.Steps[i].Prompt)
		prompt := filepath.Join(pipeDir, stepBase(st.Step, st.Name)+".prompt")
		if err := statedir.WriteFileAtomic(prompt, []byte(b.String())); err != nil {
			return res, err
		}
	}

	platform := policy.Platform(runtime.GOOS)
	command, err := e.writeRunner(platform, id, req.Directory, steps)
	if err != nil {
		return res, err
	}

	meta := domain.PipelineMeta{
		PipelineID: id,
		Directory:  req.Directory,
		TotalSteps: len(steps),
		Tasks:      steps,
		Started:    time.Now(),
		Status:     "running",
	}
	if err := statedir.WriteJSON(e.metaPath(id), meta); err != nil {
		return res, err
	}

	app := e.pol.TerminalApp()
	if app == "" {
		app = terminal.Detect(platform)
	}
	launch, err := terminal.Command(platform, app, command, req.Layout)
	if err != nil {
		return res, e.fail(id, err)
	}
	if err := terminal.Run(launch); err != nil {
		return res, e.fail(id, fmt.Errorf("launch pipeline: %w", err))
	}
	res.Directory = req.Directory
	res.App = app
	res.Steps = len(steps)
	e.logger.Printf("Pipeline: launched %s with %d steps in %s (app=%s)", id, len(steps), req.Directory, app)
	return res, nil
}

func (e *Executor) fail(id string, cause error) error {
	var meta domain.PipelineMeta
	if err := statedir.ReadJSON(e.metaPath(id), &meta); err == nil {
		meta.Status = "failed"
		if werr := statedir.WriteJSON(e.metaPath(id), meta); werr != nil {
			e.logger.Printf("Pipeline: could not mark %s failed: %v", id, werr)
		}
	}
	return cause
}

// writeRunner emits the runner script and returns the launcher command.
func (e *Executor) writeRunner(platform, id, dir string, steps []domain.PipelineStep) (string, error) {
	pipeDir := e.pol.PipelineDir(id)
	if platform == "windows" || platform == "win32" {
		path := filepath.Join(pipeDir, "runner.bat")
		if err := os.WriteFile(path, []byte(e.batchRunner(id, dir, steps)), 0o600); err != nil {
			return "", fmt.Errorf("write runner script: %w", err)
		}
		return terminal.BatQuote(path), nil
	}
	path := filepath.Join(pipeDir, "runner.sh")
	if err := os.WriteFile(path, []byte(e.posixRunner(id, dir, steps)), 0o700); err != nil {
		return "", fmt.Errorf("write runner script: %w", err)
	}
	return terminal.ShQuote(path), nil
}

func (e *Executor) agentLine(model, agent string, quote func(string) string) string {
	line := quote(e.pol.AgentBinary()) + " -p"
	if model != "" {
		line += " --model " + quote(model)
	}
	if agent != "" {
		line += " --agent " + quote(agent)
	}
	return line
}

func (e *Executor) posixRunner(id, dir string, steps []domain.PipelineStep) string {
	q := terminal.ShQuote
	pipeDir := e.pol.PipelineDir(id)
	logFile := q(e.logPath(id))
	stamp := `"$(date -u +%Y-%m-%dT%H:%M:%SZ)"`

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("set -e\n")
	b.WriteString("cd " + q(dir) + "\n")
	b.WriteString("unset " + policy.EnvNested + "\n")
	for _, st := range steps {
		base := stepBase(st.Step, st.Name)
		b.WriteString(fmt.Sprintf("echo \"=== Step %d: %s ===\" >> %s\n", st.Step, st.Name, logFile))
		b.WriteString(fmt.Sprintf(`printf '{"step":%d,"name":"%s","status":"running","started":"%%s"}\n' %s >> %s`,
			st.Step, st.Name, stamp, logFile) + "\n")
		b.WriteString(e.agentLine(st.Model, st.Agent, q) +
			" < " + q(filepath.Join(pipeDir, base+".prompt")) +
			" > " + q(filepath.Join(pipeDir, base+".txt")) + " 2>&1\n")
		b.WriteString(fmt.Sprintf(`printf '{"step":%d,"name":"%s","status":"completed","finished":"%%s"}\n' %s >> %s`,
			st.Step, st.Name, stamp, logFile) + "\n")
	}
	b.WriteString(fmt.Sprintf(`printf '{"status":"completed","finished":"%%s"}\n' %s > %s`,
		stamp, q(e.donePath(id))) + "\n")
	return b.String()
}

// batchRunner is the cmd.exe equivalent. Batch has no portable ISO-8601
// clock, so its log lines omit timestamps; the status machine only needs
// the step/status pairs.
func (e *Executor) batchRunner(id, dir string, steps []domain.PipelineStep) string {
	q := terminal.BatQuote
	pipeDir := e.pol.PipelineDir(id)
	logFile := q(e.logPath(id))

	var b strings.Builder
	b.WriteString("@echo off\n")
	b.WriteString("cd /d " + q(dir) + "\n")
	b.WriteString("set " + policy.EnvNested + "=\n")
	for _, st := range steps {
		base := stepBase(st.Step, st.Name)
		b.WriteString(fmt.Sprintf("echo === Step %d: %s === >> %s\n", st.Step, st.Name, logFile))
		b.WriteString(fmt.Sprintf(`echo {"step":%d,"name":"%s","status":"running"} >> %s`, st.Step, st.Name, logFile) + "\n")
		b.WriteString(e.agentLine(st.Model, st.Agent, q) +
			" < " + q(filepath.Join(pipeDir, base+".prompt")) +
			" > " + q(filepath.Join(pipeDir, base+".txt")) + " 2>&1\n")
		b.WriteString("if errorlevel 1 exit /b 1\n")
		b.WriteString(fmt.Sprintf(`echo {"step":%d,"name":"%s","status":"completed"} >> %s`, st.Step, st.Name, logFile) + "\n")
	}
	b.WriteString(`echo {"status":"completed"} > ` + q(e.donePath(id)) + "\n")
	return b.String()
}
