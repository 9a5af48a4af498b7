//go:build !windows

package statedir

import (
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// verifyOwner checks that the directory's owning uid equals the current
// effective uid.
func verifyOwner(path string, info fs.FileInfo) error {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	if int(st.Uid) != os.Geteuid() {
		return &HardenError{Path: path, Reason: fmt.Sprintf("owned by uid %d, not %d", st.Uid, os.Geteuid())}
	}
	return nil
}

// hardenDir is a no-op on Unix; mode 0700 is the whole story.
func hardenDir(string) error { return nil }
