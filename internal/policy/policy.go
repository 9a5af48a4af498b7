// Package policy holds configuration and the on-disk layout of the state root.
package policy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment overrides. SWITCHBOARD_STATE_DIR beats the config file so tests
// and sandboxes can redirect all state; the platform and terminal overrides
// force launcher branches; test mode downgrades hardening failures to warnings.
const (
	EnvConfig      = "SWITCHBOARD_CONFIG"
	EnvStateDir    = "SWITCHBOARD_STATE_DIR"
	EnvPlatform    = "SWITCHBOARD_PLATFORM"
	EnvTerminalApp = "SWITCHBOARD_TERMINAL_APP"
	EnvTestMode    = "SWITCHBOARD_TEST_MODE"
)

// EnvNested marks a process as running inside the host agent. Spawned
// workers must not inherit it or the child agent refuses to start hooks.
const EnvNested = "CLAUDECODE"

// JSONL log caps. Once a log passes its max, writers rewrite it down to the
// keep size so the caps never oscillate on every append.
const (
	SessionsLogMax  = 200
	SessionsLogKeep = 150
	ActivityLogMax  = 600
	ActivityLogKeep = 500
)

// DefaultStateRoot returns the default state root (~/.claude).
func DefaultStateRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".claude")
}

// NotifierConfig controls the optional inbox watcher started by serve.
type NotifierConfig struct {
	Enabled     bool `yaml:"enabled"`
	PollSeconds int  `yaml:"poll_seconds"` // fallback poll interval (default 2)
}

// HistoryConfig controls the sqlite archive fed by the garbage collector.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config holds switchboard configuration.
type Config struct {
	StateRoot         string `yaml:"state_root"`
	AgentBinary       string `yaml:"agent_binary"`
	DefaultModel      string `yaml:"default_model"`
	LogFile           string `yaml:"log_file"`
	MessagesPerMinute int    `yaml:"messages_per_minute"`
	PruneTTLHours     int    `yaml:"prune_ttl_hours"`
	TerminalApp       string `yaml:"terminal_app"`

	Notifier *NotifierConfig `yaml:"notifier"`
	History  *HistoryConfig  `yaml:"history"`
}

// DefaultConfig returns sensible defaults: state under ~/.claude, the claude
// binary, 120 messages/minute, 24 h prune TTL, history archive on.
func DefaultConfig() *Config {
	return &Config{
		StateRoot:         DefaultStateRoot(),
		AgentBinary:       "claude",
		MessagesPerMinute: 120,
		PruneTTLHours:     24,
		History:           &HistoryConfig{Enabled: true},
	}
}

// LoadConfig loads configuration from a YAML file, applying defaults for
// anything unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyFallbacks()
	return cfg, nil
}

// LoadFromEnv loads the config named by SWITCHBOARD_CONFIG, or defaults. A
// broken config file degrades to defaults with a returned warning, never a
// startup failure.
func LoadFromEnv() (*Config, string) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		cfg := DefaultConfig()
		cfg.applyFallbacks()
		return cfg, ""
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		cfg = DefaultConfig()
		cfg.applyFallbacks()
		return cfg, fmt.Sprintf("failed to load config %s: %v, using defaults", path, err)
	}
	return cfg, ""
}

func (c *Config) applyFallbacks() {
	if c.StateRoot == "" {
		c.StateRoot = DefaultStateRoot()
	}
	if c.AgentBinary == "" {
		c.AgentBinary = "claude"
	}
	if c.MessagesPerMinute <= 0 {
		c.MessagesPerMinute = 120
	}
	if c.PruneTTLHours <= 0 {
		c.PruneTTLHours = 24
	}
}

// Policy resolves every path of the on-disk protocol from the configured
// state root. The SWITCHBOARD_STATE_DIR override is read at construction.
type Policy struct {
	cfg  *Config
	root string
}

// New creates a Policy for cfg, honoring the state-dir env override.
func New(cfg *Config) *Policy {
	root := cfg.StateRoot
	if env := os.Getenv(EnvStateDir); env != "" {
		root = env
	}
	return &Policy{cfg: cfg, root: root}
}

// StateRoot returns the resolved state root directory.
func (p *Policy) StateRoot() string { return p.root }

// TerminalsDir returns <root>/terminals, where all coordination state lives.
func (p *Policy) TerminalsDir() string { return filepath.Join(p.root, "terminals") }

// SessionCacheDir returns <root>/session-cache (context preambles).
func (p *Policy) SessionCacheDir() string { return filepath.Join(p.root, "session-cache") }

// InboxDir returns the per-session inbox directory.
func (p *Policy) InboxDir() string { return filepath.Join(p.TerminalsDir(), "inbox") }

// ResultsDir returns the worker/pipeline artifact directory.
func (p *Policy) ResultsDir() string { return filepath.Join(p.TerminalsDir(), "results") }

// TasksDir returns the task-board directory.
func (p *Policy) TasksDir() string { return filepath.Join(p.TerminalsDir(), "tasks") }

// TeamsDir returns the team-registry directory.
func (p *Policy) TeamsDir() string { return filepath.Join(p.TerminalsDir(), "teams") }

// SessionFile returns the record path for a short session id.
func (p *Policy) SessionFile(sid8 string) string {
	return filepath.Join(p.TerminalsDir(), "session-"+sid8+".json")
}

// InboxFile returns the inbox path for a short session id.
func (p *Policy) InboxFile(sid8 string) string {
	return filepath.Join(p.InboxDir(), sid8+".jsonl")
}

// RateFile returns the sliding-window rate state path for a target.
func (p *Policy) RateFile(sid8 string) string {
	return filepath.Join(p.TerminalsDir(), "rate-"+sid8+".json")
}

// SessionsLog returns the sessions.jsonl audit log path.
func (p *Policy) SessionsLog() string { return filepath.Join(p.TerminalsDir(), "sessions.jsonl") }

// ActivityLog returns the activity.jsonl path.
func (p *Policy) ActivityLog() string { return filepath.Join(p.TerminalsDir(), "activity.jsonl") }

// ConflictsLog returns the conflicts.jsonl audit path.
func (p *Policy) ConflictsLog() string { return filepath.Join(p.TerminalsDir(), "conflicts.jsonl") }

// QueueFile returns the queue.jsonl assigned-tasks feed path.
func (p *Policy) QueueFile() string { return filepath.Join(p.TerminalsDir(), "queue.jsonl") }

// ResultMeta returns results/<task>.meta.json.
func (p *Policy) ResultMeta(taskID string) string {
	return filepath.Join(p.ResultsDir(), taskID+".meta.json")
}

// ResultDone returns the completion marker written next to the meta.
func (p *Policy) ResultDone(taskID string) string { return p.ResultMeta(taskID) + ".done" }

// ResultPID returns results/<task>.pid.
func (p *Policy) ResultPID(taskID string) string {
	return filepath.Join(p.ResultsDir(), taskID+".pid")
}

// ResultText returns results/<task>.txt, the worker's captured output.
func (p *Policy) ResultText(taskID string) string {
	return filepath.Join(p.ResultsDir(), taskID+".txt")
}

// ResultPrompt returns results/<task>.prompt.
func (p *Policy) ResultPrompt(taskID string) string {
	return filepath.Join(p.ResultsDir(), taskID+".prompt")
}

// PipelineDir returns results/<pipeline>/, the per-run artifact directory.
func (p *Policy) PipelineDir(pipelineID string) string {
	return filepath.Join(p.ResultsDir(), pipelineID)
}

// TaskFile returns the task-board record path for a task id.
func (p *Policy) TaskFile(id string) string { return filepath.Join(p.TasksDir(), id+".json") }

// TeamFile returns the team-registry record path for a team name.
func (p *Policy) TeamFile(name string) string { return filepath.Join(p.TeamsDir(), name+".json") }

// HistoryDB returns the sqlite archive path.
func (p *Policy) HistoryDB() string { return filepath.Join(p.TerminalsDir(), "history.db") }

// ContextPreamble returns the prior-context file prepended to worker prompts.
func (p *Policy) ContextPreamble() string {
	return filepath.Join(p.SessionCacheDir(), "coder-context.md")
}

// CooldownLock returns the heartbeat cooldown lock path for a session.
func (p *Policy) CooldownLock(sid8 string) string {
	return filepath.Join(os.TempDir(), "switchboard-hb-"+sid8+".lock")
}

// StaleSweepLock returns the global stale-sweep cooldown lock path.
func (p *Policy) StaleSweepLock() string {
	return filepath.Join(os.TempDir(), "switchboard-stale-check.lock")
}

// LogFile returns the server log path. "none" or "off" disables file logging.
func (p *Policy) LogFile() string {
	if p.cfg.LogFile != "" {
		return p.cfg.LogFile
	}
	return filepath.Join(p.TerminalsDir(), "switchboard.log")
}

// AgentBinary returns the agent executable to spawn (default "claude").
func (p *Policy) AgentBinary() string { return p.cfg.AgentBinary }

// DefaultModel returns the model flag applied when a spawn omits one. Empty
// means the agent's own default.
func (p *Policy) DefaultModel() string { return p.cfg.DefaultModel }

// MessagesPerMinute returns the sliding-window send cap per target.
func (p *Policy) MessagesPerMinute() int { return p.cfg.MessagesPerMinute }

// PruneTTLHours returns the GC TTL in hours.
func (p *Policy) PruneTTLHours() int { return p.cfg.PruneTTLHours }

// TerminalApp returns the configured terminal app, with the env override
// taking precedence. Empty means detect.
func (p *Policy) TerminalApp() string {
	if env := os.Getenv(EnvTerminalApp); env != "" {
		return env
	}
	return p.cfg.TerminalApp
}

// Platform returns the effective platform: the env override or the given
// runtime value.
func Platform(runtimeGOOS string) string {
	if env := os.Getenv(EnvPlatform); env != "" {
		return env
	}
	return runtimeGOOS
}

// TestMode reports whether hardening failures should degrade to warnings.
func TestMode() bool { return os.Getenv(EnvTestMode) == "1" }

// NotifierEnabled reports whether serve should start the inbox watcher.
func (p *Policy) NotifierEnabled() bool {
	return p.cfg.Notifier != nil && p.cfg.Notifier.Enabled
}

// NotifierPollSeconds returns the fallback poll interval for the watcher.
func (p *Policy) NotifierPollSeconds() int {
	if p.cfg.Notifier != nil && p.cfg.Notifier.PollSeconds > 0 {
		return p.cfg.Notifier.PollSeconds
	}
	return 2
}

// HistoryEnabled reports whether swept records are archived to sqlite.
func (p *Policy) HistoryEnabled() bool {
	return p.cfg.History != nil && p.cfg.History.Enabled
}
