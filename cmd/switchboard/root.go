package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaakkos/switchboard/internal/policy"
)

// Version is set by -ldflags at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "switchboard",
	Short: "Coordinate the interactive agent sessions on this machine",
	Long: `switchboard tracks every interactive agent session on this workstation
through a shared state directory: who is working where, queued messages,
spawned background workers, the task board and team rosters.

The serve command exposes the coordination tools to an agent over MCP
stdio. The hook group is wired into each agent's settings and keeps the
state current as a side effect of normal tool use.`,
	Version:      Version,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the switchboard version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("switchboard version " + Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// loadPolicy resolves configuration from the environment. The warning, if
// any, is returned for the caller to log once a logger exists.
func loadPolicy() (*policy.Policy, string) {
	cfg, warn := policy.LoadFromEnv()
	return policy.New(cfg), warn
}

// setupLogger builds the long-lived logger for serve and the hooks. Lines go
// to the configured log file and, when stderr is an interactive terminal, to
// stderr as well. A path of "none", "off" or "" disables the file. Stdout is
// never written: for serve it carries the MCP transport, for hooks the
// drained messages.
func setupLogger(logFilePath string) *log.Logger {
	var writers []io.Writer

	stderrIsTerminal := false
	if info, err := os.Stderr.Stat(); err == nil {
		stderrIsTerminal = (info.Mode() & os.ModeCharDevice) != 0
	}

	hasLogFile := false
	lower := strings.ToLower(logFilePath)
	if lower != "none" && lower != "off" && logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o700); err == nil {
			f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err == nil {
				writers = append(writers, f)
				hasLogFile = true
			} else {
				fmt.Fprintf(os.Stderr, "[switchboard] Warning: cannot open log file %s: %v\n", logFilePath, err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "[switchboard] Warning: cannot create log dir %s: %v\n", filepath.Dir(logFilePath), err)
		}
	}

	// Always keep at least one output.
	if stderrIsTerminal || !hasLogFile {
		writers = append(writers, os.Stderr)
	}

	return log.New(io.MultiWriter(writers...), "[switchboard] ", log.LstdFlags|log.Lshortfile)
}

// stderrLogger is the plain logger for one-shot commands that report to the
// invoking user rather than the server log.
func stderrLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}
