// Package proc wraps the platform-specific process checks the coordinator
// needs: liveness probes for worker PIDs and best-effort termination.
// Workers are observed through PID files on disk, so every entry point
// revalidates that the PID is a positive integer before touching the OS.
package proc

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePID parses a PID read from a .pid file. Anything that is not a
// positive integer is rejected.
func ParsePID(s string) (int, error) {
	pid, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid pid %q", s)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid pid %d", pid)
	}
	return pid, nil
}

// Alive reports whether pid refers to a running process. Non-positive PIDs
// are never alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return alive(pid)
}

// Kill terminates pid and, where the platform allows, its children.
// Killing an already-dead process is not an error.
func Kill(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	return kill(pid)
}
