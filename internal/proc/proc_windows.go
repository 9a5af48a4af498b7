//go:build windows

package proc

import (
	"os/exec"
	"strconv"

	"golang.org/x/sys/windows"
)

func alive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == uint32(windows.STILL_ACTIVE)
}

func kill(pid int) error {
	// taskkill /T takes the whole child tree down, which OpenProcess plus
	// TerminateProcess cannot do without walking the snapshot ourselves.
	err := exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T", "/F").Run()
	if err != nil && !alive(pid) {
		return nil
	}
	return err
}

// TTY returns "": Windows consoles have no terminal device path.
func TTY(int) string { return "" }

// PPid returns 0; the ancestor walk that needs it is a Unix probe.
func PPid(int) int { return 0 }
