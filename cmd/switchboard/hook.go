package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jaakkos/switchboard/internal/hook"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Host agent hook entry points",
	Long: `Entry points the host agent invokes around its own tool calls. Each
subcommand reads one JSON payload from stdin, updates the shared state
root, and exits 0; only an invalid session id blocks the call (exit 2).
Not for direct use.`,
	Hidden: true,
}

func init() {
	rootCmd.AddCommand(hookCmd)
	for _, role := range []struct {
		use, short string
		run        func(*hook.Runner, hook.Input) error
	}{
		{"register", "Record a new session", (*hook.Runner).Register},
		{"heartbeat", "Record one tool call", (*hook.Runner).Heartbeat},
		{"session-end", "Close a session", (*hook.Runner).SessionEnd},
		{"inbox", "Deliver queued messages and worker results", (*hook.Runner).Inbox},
		{"pre-edit", "Warn about concurrent edits", (*hook.Runner).PreEdit},
	} {
		hookCmd.AddCommand(&cobra.Command{
			Use:   role.use,
			Short: role.short,
			RunE:  runHook(role.use, role.run),
		})
	}
}

// runHook adapts one hook role to the process contract: payload on stdin,
// drained messages on stdout, advisories on stderr. Every failure is
// swallowed except BLOCKED, which exits 2 so the host agent aborts the
// tool call.
func runHook(role string, fn func(*hook.Runner, hook.Input) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		pol, warn := loadPolicy()
		logger := setupLogger(pol.LogFile())
		if warn != "" {
			logger.Printf("Warning: %s", warn)
		}
		in, err := hook.ParseInput(os.Stdin)
		if err != nil {
			logger.Printf("Hook %s: %v", role, err)
			return nil
		}
		runner := hook.NewRunner(pol, logger, os.Stdout, os.Stderr)
		if err := fn(runner, in); err != nil {
			var blocked *hook.BlockedError
			if errors.As(err, &blocked) {
				fmt.Fprintln(os.Stderr, blocked.Error())
				os.Exit(2)
			}
			logger.Printf("Hook %s: %v", role, err)
		}
		return nil
	}
}
