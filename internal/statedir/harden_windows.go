//go:build windows

package statedir

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/windows"
)

// broadPrincipals are the group ACEs stripped from state directories.
var broadPrincipals = []string{"Everyone", "Users", "Authenticated Users"}

// verifyOwner is covered by the ACL verification below on Windows.
func verifyOwner(string, fs.FileInfo) error { return nil }

// hardenDir strips inherited ACEs and broad principals with icacls, then
// reads the ACL back and fails closed if the current user's ACE is missing,
// inheritance survived, or a broad principal remains.
func hardenDir(path string) error {
	user := currentUserName()
	if user == "" {
		return &HardenError{Path: path, Reason: "cannot determine current user"}
	}

	steps := [][]string{
		{"/inheritance:r"},
		{"/grant:r", user + ":(OI)(CI)F"},
	}
	for _, p := range broadPrincipals {
		steps = append(steps, []string{"/remove:g", p})
	}
	for _, args := range steps {
		if out, err := runICacls(path, args...); err != nil {
			// /remove on an absent principal is a no-op failure; only the
			// readback below decides pass or fail.
			_ = out
		}
	}

	out, err := runICacls(path)
	if err != nil {
		return &HardenError{Path: path, Reason: fmt.Sprintf("icacls readback: %v", err)}
	}
	acl := string(out)
	if !strings.Contains(acl, user) {
		return &HardenError{Path: path, Reason: "user ACE missing after hardening"}
	}
	if strings.Contains(acl, "(I)") {
		return &HardenError{Path: path, Reason: "inherited ACEs remain"}
	}
	for _, p := range broadPrincipals {
		if strings.Contains(acl, p) {
			return &HardenError{Path: path, Reason: "broad principal remains: " + p}
		}
	}
	return nil
}

func runICacls(path string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "icacls", append([]string{path}, args...)...).CombinedOutput()
}

func currentUserName() string {
	if u := os.Getenv("USERNAME"); u != "" {
		return u
	}
	var size uint32 = 256
	buf := make([]uint16, size)
	if err := windows.GetUserNameEx(windows.NameSamCompatible, &buf[0], &size); err == nil {
		name := windows.UTF16ToString(buf[:size])
		if i := strings.LastIndex(name, `\`); i >= 0 {
			name = name[i+1:]
		}
		return name
	}
	return ""
}
