package main

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/jaakkos/switchboard/internal/policy"
)

func TestSetupLogger_writesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "switchboard.log")
	logger := setupLogger(path)
	logger.Printf("hello from the test")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello from the test") {
		t.Errorf("log file = %q, want the logged line", data)
	}
	if !strings.Contains(string(data), "[switchboard] ") {
		t.Errorf("log file = %q, want the [switchboard] prefix", data)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat log file: %v", err)
		}
		if got := info.Mode().Perm(); got != 0o600 {
			t.Errorf("log file mode = %o, want 0600", got)
		}
	}
}

func TestSetupLogger_noneSkipsFile(t *testing.T) {
	for _, name := range []string{"none", "off", "OFF", ""} {
		logger := setupLogger(name)
		if logger == nil {
			t.Fatalf("setupLogger(%q) = nil", name)
		}
		logger.Printf("stderr only")
	}
	if _, err := os.Stat("none"); err == nil {
		t.Error(`setupLogger("none") created a file named none`)
	}
	if _, err := os.Stat("off"); err == nil {
		t.Error(`setupLogger("off") created a file named off`)
	}
}

func TestLoadPolicy_badConfigWarnsAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(policy.EnvConfig, path)

	pol, warn := loadPolicy()
	if warn == "" {
		t.Error("warn is empty, want a load warning")
	}
	if pol.StateRoot() == "" {
		t.Error("StateRoot() is empty, want the default root")
	}
}

func TestLoadPolicy_noEnvNoWarning(t *testing.T) {
	t.Setenv(policy.EnvConfig, "")
	_, warn := loadPolicy()
	if warn != "" {
		t.Errorf("warn = %q, want empty", warn)
	}
}

func TestRootCommand_tree(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "hook", "prune", "stats", "version"} {
		if !names[want] {
			t.Errorf("root command is missing %q", want)
		}
	}
}

func TestHookCommand_hiddenWithRoles(t *testing.T) {
	if !hookCmd.Hidden {
		t.Error("hook command group is not hidden")
	}
	names := make(map[string]bool)
	for _, c := range hookCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"register", "heartbeat", "session-end", "inbox", "pre-edit"} {
		if !names[want] {
			t.Errorf("hook command is missing role %q", want)
		}
	}
}
