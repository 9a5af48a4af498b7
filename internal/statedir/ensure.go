// Package statedir implements the on-disk protocol primitives shared by the
// hooks and the coordinator: owner-only directory and file creation, the
// exclusive lock-file primitive, bounded JSONL reads, and locked appends.
package statedir

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// HardenError marks a symlink, ownership, or ACL verification failure during
// directory creation. Callers running in test mode may downgrade it to a
// warning; everywhere else it is fatal.
type HardenError struct {
	Path   string
	Reason string
}

func (e *HardenError) Error() string {
	return fmt.Sprintf("hardening %s: %s", e.Path, e.Reason)
}

// IsHardenError reports whether err is (or wraps) a HardenError.
func IsHardenError(err error) bool {
	var he *HardenError
	return errors.As(err, &he)
}

// EnsureDir creates path with mode 0700 and verifies it: the entry must not
// be a symbolic link and must be owned by the current user. Mode is re-applied
// on every call. On Windows the ACL is additionally stripped of inherited and
// broad-principal entries (see harden_windows.go).
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("create dir %s: %w", path, err)
	}
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("stat dir %s: %w", path, err)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return &HardenError{Path: path, Reason: "is a symbolic link"}
	}
	if !info.IsDir() {
		return &HardenError{Path: path, Reason: "not a directory"}
	}
	if err := os.Chmod(path, 0o700); err != nil {
		return fmt.Errorf("chmod dir %s: %w", path, err)
	}
	if err := verifyOwner(path, info); err != nil {
		return err
	}
	return hardenDir(path)
}

// WriteFileAtomic rewrites path wholesale: write a 0600 temp file in the same
// directory, then rename over the target. A crash mid-write leaves the
// original untouched; the orphaned *.tmp is removed by the sweeper.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// WriteJSON marshals v with indentation and writes it atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// ReadJSON reads path into v. A missing file returns fs.ErrNotExist; corrupt
// JSON returns the parse error so callers can treat it as "no record".
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// OpenAppend opens path for appending, creating it 0600. The mode is
// re-applied on every open.
func OpenAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open append %s: %w", path, err)
	}
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		return nil, fmt.Errorf("chmod %s: %w", path, err)
	}
	return f, nil
}
