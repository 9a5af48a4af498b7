//go:build !windows

package terminal

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own session so it survives the coordinator
// and never holds our controlling terminal.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
}
