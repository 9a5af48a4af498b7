package app

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jaakkos/switchboard/internal/conflict"
	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/history"
	"github.com/jaakkos/switchboard/internal/mailbox"
	"github.com/jaakkos/switchboard/internal/pipeline"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/prune"
	"github.com/jaakkos/switchboard/internal/session"
	"github.com/jaakkos/switchboard/internal/statedir"
	"github.com/jaakkos/switchboard/internal/taskboard"
	"github.com/jaakkos/switchboard/internal/team"
	"github.com/jaakkos/switchboard/internal/terminal"
	"github.com/jaakkos/switchboard/internal/validate"
	"github.com/jaakkos/switchboard/internal/wake"
	"github.com/jaakkos/switchboard/internal/worker"
)

// Coordinator wires the per-concern services behind the tool surface and the
// CLI. It carries the only in-process memoization the server keeps: a boot
// step that creates the state tree and runs one collection sweep.
type Coordinator struct {
	pol    *policy.Policy
	logger *log.Logger

	sessions  *session.Store
	mail      *mailbox.Service
	workers   *worker.Supervisor
	pipelines *pipeline.Executor
	tasks     *taskboard.Board
	teams     *team.Registry
	waker     *wake.Service
	conflicts *conflict.Detector

	bootOnce sync.Once
	bootErr  error
}

// NewCoordinator builds the service graph over a shared session store and
// mailbox. Nothing touches the filesystem until Boot or a handler runs.
func NewCoordinator(pol *policy.Policy, logger *log.Logger) *Coordinator {
	sessions := session.NewStore(pol)
	mail := mailbox.NewService(pol, sessions)
	return &Coordinator{
		pol:       pol,
		logger:    logger,
		sessions:  sessions,
		mail:      mail,
		workers:   worker.NewSupervisor(pol, logger),
		pipelines: pipeline.NewExecutor(pol, logger),
		tasks:     taskboard.NewBoard(pol, sessions, logger),
		teams:     team.NewRegistry(pol, logger),
		waker:     wake.NewService(pol, sessions, mail, logger),
		conflicts: conflict.NewDetector(pol, sessions),
	}
}

func (c *Coordinator) Policy() *policy.Policy       { return c.pol }
func (c *Coordinator) Sessions() *session.Store     { return c.sessions }
func (c *Coordinator) Mail() *mailbox.Service       { return c.mail }
func (c *Coordinator) Workers() *worker.Supervisor  { return c.workers }
func (c *Coordinator) Pipelines() *pipeline.Executor { return c.pipelines }
func (c *Coordinator) Tasks() *taskboard.Board      { return c.tasks }
func (c *Coordinator) Teams() *team.Registry        { return c.teams }
func (c *Coordinator) Waker() *wake.Service         { return c.waker }
func (c *Coordinator) Conflicts() *conflict.Detector { return c.conflicts }

// Boot creates the state tree and runs one sweep over leftovers from earlier
// boots. It runs at most once per process; later calls return the first
// outcome. Handlers call it lazily so an idle server touches nothing.
func (c *Coordinator) Boot() error {
	c.bootOnce.Do(func() {
		for _, dir := range []string{
			c.pol.TerminalsDir(),
			c.pol.InboxDir(),
			c.pol.ResultsDir(),
			c.pol.TasksDir(),
			c.pol.TeamsDir(),
			c.pol.SessionCacheDir(),
		} {
			if err := statedir.EnsureDir(dir); err != nil {
				if statedir.IsHardenError(err) && policy.TestMode() {
					c.logger.Printf("Coordinator: %v (test mode, continuing)", err)
					continue
				}
				c.bootErr = fmt.Errorf("state dir: %w", err)
				return
			}
		}
		res := prune.NewSweeper(c.pol, c.logger).Sweep(0)
		c.logger.Printf("Coordinator: boot sweep %s", res)
	})
	return c.bootErr
}

// TerminalRequest describes an interactive terminal launch.
type TerminalRequest struct {
	Directory     string
	InitialPrompt string
	Layout        terminal.Layout
}

// TerminalResult reports where the terminal opened.
type TerminalResult struct {
	Directory string
	App       string
}

// SpawnTerminal opens a fresh interactive agent session in a new window or
// tab. Unlike worker spawns there is no wrapper script and no result capture;
// whoever sits at the terminal owns the session from here.
func (c *Coordinator) SpawnTerminal(req TerminalRequest) (TerminalResult, error) {
	var res TerminalResult

	dir, err := validate.Directory(req.Directory)
	if err != nil {
		return res, err
	}
	if info, serr := os.Stat(dir); serr != nil || !info.IsDir() {
		return res, fmt.Errorf("directory %s does not exist", dir)
	}
	res.Directory = dir

	platform := policy.Platform(runtime.GOOS)
	command := c.terminalCommand(platform, dir, req.InitialPrompt)
	app := c.pol.TerminalApp()
	if app == "" {
		app = terminal.Detect(platform)
	}
	launch, err := terminal.Command(platform, app, command, req.Layout)
	if err != nil {
		return res, err
	}
	if err := terminal.Run(launch); err != nil {
		return res, fmt.Errorf("launch terminal: %w", err)
	}
	res.App = app
	c.logger.Printf("Coordinator: opened terminal in %s (app=%s)", dir, app)
	return res, nil
}

// terminalCommand composes the line the terminal app runs: enter the project,
// drop the nesting marker, start the agent. The prompt rides as an argument.
func (c *Coordinator) terminalCommand(platform, dir, prompt string) string {
	if platform == "windows" || platform == "win32" {
		cmd := "cd /d " + terminal.BatQuote(dir) +
			" && set " + policy.EnvNested + "= && " + terminal.BatQuote(c.pol.AgentBinary())
		if prompt != "" {
			cmd += " " + terminal.BatQuote(prompt)
		}
		return cmd
	}
	q := terminal.ShQuote
	cmd := "cd " + q(dir) + " && unset " + policy.EnvNested + " && " + q(c.pol.AgentBinary())
	if prompt != "" {
		cmd += " " + q(prompt)
	}
	return cmd
}

// StatsReport renders live counters plus archive totals. Every input is
// best-effort; a missing directory or archive renders as zero, not an error.
func (c *Coordinator) StatsReport(now time.Time) string {
	var b strings.Builder

	recs := c.sessions.List()
	counts := map[domain.SessionStatus]int{}
	for _, rec := range recs {
		counts[session.DeriveStatus(rec, now)]++
	}
	fmt.Fprintf(&b, "Sessions: total=%d active=%d idle=%d stale=%d closed=%d",
		len(recs), counts[domain.SessionActive], counts[domain.SessionIdle],
		counts[domain.SessionStale], counts[domain.SessionClosed])
	if n := counts[domain.SessionUnknown]; n > 0 {
		fmt.Fprintf(&b, " unknown=%d", n)
	}
	b.WriteByte('\n')

	running, finished := c.workerCounts()
	fmt.Fprintf(&b, "Workers: running=%d finished=%d\n", running, finished)
	fmt.Fprintf(&b, "Messages (last 60s): %d\n", c.recentSends(now))

	if !c.pol.HistoryEnabled() {
		b.WriteString("History: disabled\n")
		return b.String()
	}
	arc, err := history.Open(c.pol.HistoryDB())
	if err != nil {
		c.logger.Printf("Coordinator: history archive unavailable: %v", err)
		b.WriteString("History: unavailable\n")
		return b.String()
	}
	defer arc.Close()
	st, err := arc.Stats()
	if err != nil {
		c.logger.Printf("Coordinator: history stats: %v", err)
		b.WriteString("History: unavailable\n")
		return b.String()
	}
	fmt.Fprintf(&b, "History: sessions=%d workers=%d activity=%d\n",
		st.Sessions, st.Workers, st.ActivityLines)
	if len(st.WorkersByStatus) > 0 {
		statuses := make([]string, 0, len(st.WorkersByStatus))
		for k := range st.WorkersByStatus {
			statuses = append(statuses, k)
		}
		sort.Strings(statuses)
		parts := make([]string, 0, len(statuses))
		for _, k := range statuses {
			parts = append(parts, fmt.Sprintf("%s=%d", k, st.WorkersByStatus[k]))
		}
		fmt.Fprintf(&b, "Worker outcomes: %s\n", strings.Join(parts, " "))
	}
	if len(st.TopTools) > 0 {
		parts := make([]string, 0, len(st.TopTools))
		for _, tc := range st.TopTools {
			parts = append(parts, fmt.Sprintf("%s=%d", tc.Tool, tc.Count))
		}
		fmt.Fprintf(&b, "Top tools: %s\n", strings.Join(parts, " "))
	}
	return b.String()
}

// workerCounts splits result artifacts by done-marker presence.
func (c *Coordinator) workerCounts() (running, finished int) {
	entries, err := os.ReadDir(c.pol.ResultsDir())
	if err != nil {
		return 0, 0
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".meta.json") {
			continue
		}
		taskID := strings.TrimSuffix(name, ".meta.json")
		if _, err := os.Stat(c.pol.ResultDone(taskID)); err == nil {
			finished++
		} else {
			running++
		}
	}
	return running, finished
}

// recentSends sums in-window timestamps across every rate file.
func (c *Coordinator) recentSends(now time.Time) int {
	entries, err := os.ReadDir(c.pol.TerminalsDir())
	if err != nil {
		return 0
	}
	total := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "rate-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		var win domain.RateWindow
		if statedir.ReadJSON(filepath.Join(c.pol.TerminalsDir(), name), &win) != nil {
			continue
		}
		for _, ts := range win.Timestamps {
			if now.Sub(ts) < time.Minute {
				total++
			}
		}
	}
	return total
}
