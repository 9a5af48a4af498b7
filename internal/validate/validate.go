// Package validate holds the input sanitizers every operation and hook runs
// before touching the state directory. Identifiers are checked strictly and
// never rewritten; only display names are normalized.
package validate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

var (
	idRe    = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	sidRe   = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)
	modelRe = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)
	ttyRe   = regexp.MustCompile(`^(/dev/ttys?\d+|/dev/pts/\d+)$`)

	nameJunkRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// ID accepts task, pipeline and worker identifiers. Matching input is
// returned unchanged; anything else is an error, never a rewrite.
func ID(s string) (string, error) {
	if !idRe.MatchString(s) || strings.Contains(s, "..") {
		return "", fmt.Errorf("invalid id %q: want 1-64 chars of [A-Za-z0-9_-]", s)
	}
	return s, nil
}

// SessionID accepts a full or short session id and returns the 8-character
// short form used in file names.
func SessionID(s string) (string, error) {
	if !sidRe.MatchString(s) || strings.Contains(s, "..") {
		return "", fmt.Errorf("invalid session id %q: want 8-64 chars of [A-Za-z0-9_-]", s)
	}
	return s[:8], nil
}

// Name sanitizes a human-chosen label (task subject slug, team name) into
// something safe to embed in a file name. Runs of disallowed characters
// collapse to a single hyphen; leading and trailing separators are trimmed.
func Name(s string) (string, error) {
	s = nameJunkRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, ".-")
	if len(s) > 64 {
		s = strings.TrimRight(s[:64], ".-")
	}
	if s == "" {
		return "", fmt.Errorf("invalid name: empty after normalization")
	}
	return s, nil
}

// Model checks a model identifier such as "sonnet" or "anthropic:opus".
func Model(s string) (string, error) {
	if !modelRe.MatchString(s) {
		return "", fmt.Errorf("invalid model %q: want 1-64 chars of [A-Za-z0-9._:-]", s)
	}
	return s, nil
}

// Agent checks an agent name. Empty means "no agent" and is allowed.
func Agent(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	if !modelRe.MatchString(s) {
		return "", fmt.Errorf("invalid agent %q: want 1-64 chars of [A-Za-z0-9._:-]", s)
	}
	return s, nil
}

// Directory rejects paths that could break out of a quoted shell string or
// smuggle line breaks into a generated script.
func Directory(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("directory must not be empty")
	}
	if strings.ContainsAny(s, "\x00\r\n\"") {
		return "", fmt.Errorf("directory %q contains forbidden characters", s)
	}
	return s, nil
}

// TTYPath reports whether s is a device path we are willing to write escape
// sequences to. Only plain tty and pts devices qualify.
func TTYPath(s string) bool {
	return ttyRe.MatchString(s)
}

// NormalizePath canonicalizes a file path for cross-session comparison:
// relative paths resolve against cwd, symlinks resolve when the target
// exists, separators become forward slashes, and case folds on Windows.
// Empty input normalizes to the empty string.
func NormalizePath(path, cwd string) string {
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	path = filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	path = filepath.ToSlash(path)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
	}
	return path
}
