package statedir

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrLockContended is returned when a lock cannot be acquired within the
// caller's timeout. Callers decide whether that is fatal or a skip.
var ErrLockContended = errors.New("lock contended")

// AcquireLock takes an exclusive advisory lock by creating path with
// O_CREATE|O_EXCL. If the file already exists and its mtime is older than
// staleTTL the holder is presumed dead and the file is removed before the
// next attempt. Returns a release func that unlinks the lock file.
func AcquireLock(path string, timeout, staleTTL, retryDelay time.Duration) (func(), error) {
	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			// PID is informational only; staleness is judged by mtime.
			fmt.Fprintf(f, "%s\n", strconv.Itoa(os.Getpid()))
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock %s: %w", path, err)
		}
		if info, serr := os.Stat(path); serr == nil && staleTTL > 0 && time.Since(info.ModTime()) > staleTTL {
			os.Remove(path)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockContended, path)
		}
		time.Sleep(retryDelay)
	}
}

// AcquireDirLock creates path as a lock directory. Mkdir is atomic on every
// platform we run on, so created=true means this caller owns the lock.
// An existing directory is not an error; the caller just doesn't own it.
func AcquireDirLock(path string) (bool, error) {
	err := os.Mkdir(path, 0o700)
	if err == nil {
		return true, nil
	}
	if os.IsExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("create lock dir %s: %w", path, err)
}

// Cooldown reports whether an action gated by path may run now. The file's
// mtime is the last run; if it is younger than window the action is skipped.
// When the action may run the file is touched so the next caller waits.
func Cooldown(path string, window time.Duration) bool {
	if info, err := os.Stat(path); err == nil {
		if time.Since(info.ModTime()) < window {
			return false
		}
	}
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		f, cerr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
		if cerr != nil {
			// Fail open: a broken cooldown file should never block the action.
			return true
		}
		f.Close()
	}
	return true
}
