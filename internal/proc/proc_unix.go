//go:build !windows

package proc

import (
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

func alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else.
	return errors.Is(err, syscall.EPERM)
}

func kill(pid int) error {
	// Workers start in their own process group; signal the group first so
	// shell wrappers take their children down with them.
	gerr := syscall.Kill(-pid, syscall.SIGTERM)
	if gerr == nil {
		return nil
	}
	err := syscall.Kill(pid, syscall.SIGTERM)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// TTY returns the controlling terminal device of pid ("/dev/ttys003",
// "/dev/pts/1") or "" when the process has none.
func TTY(pid int) string {
	out, err := exec.Command("ps", "-o", "tty=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return ""
	}
	tty := strings.TrimSpace(string(out))
	if tty == "" || tty == "?" || tty == "??" {
		return ""
	}
	return "/dev/" + tty
}

// PPid returns the parent PID of pid, or 0 when it cannot be determined.
func PPid(pid int) int {
	out, err := exec.Command("ps", "-o", "ppid=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return 0
	}
	ppid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil || ppid <= 0 {
		return 0
	}
	return ppid
}

// Comm returns the short command name of pid, or "" when unknown.
func Comm(pid int) string {
	out, err := exec.Command("ps", "-o", "comm=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
