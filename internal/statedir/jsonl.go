package statedir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"
)

const (
	// DefaultMaxBytes caps how much of a JSONL file a single read will load.
	DefaultMaxBytes = 256 * 1024
	// DefaultMaxLines caps how many entries a single read will return.
	DefaultMaxLines = 500
)

// BoundedResult is the outcome of a capped JSONL read.
type BoundedResult struct {
	Items      []json.RawMessage
	Truncated  bool
	TotalLines int
}

// ReadBounded reads path under a byte budget, splits it into lines and
// parses each as JSON. Unparseable lines are skipped rather than failing
// the whole read; a half-written tail line falls out the same way.
// Truncated is set when either cap fired. A missing file is an empty result.
func ReadBounded(path string, maxBytes int64, maxLines int) (BoundedResult, error) {
	var res BoundedResult
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > maxBytes {
		res.Truncated = true
		data = data[:maxBytes]
	}
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		res.TotalLines++
		if len(res.Items) >= maxLines {
			res.Truncated = true
			continue
		}
		if !json.Valid(line) {
			continue
		}
		res.Items = append(res.Items, json.RawMessage(bytes.Clone(line)))
	}
	return res, nil
}

// ReadTail returns up to n parsed entries from the end of path. It seeks
// so that at most DefaultMaxBytes are read regardless of file size; a
// partial first line after the seek is discarded.
func ReadTail(path string, n int) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	var skipFirst bool
	if info.Size() > DefaultMaxBytes {
		if _, err := f.Seek(info.Size()-DefaultMaxBytes, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek %s: %w", path, err)
		}
		skipFirst = true
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	lines := bytes.Split(data, []byte{'\n'})
	if skipFirst && len(lines) > 0 {
		lines = lines[1:]
	}
	var items []json.RawMessage
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		items = append(items, json.RawMessage(bytes.Clone(line)))
	}
	if len(items) > n {
		items = items[len(items)-n:]
	}
	return items, nil
}

// AppendLocked appends one line to path while holding an exclusive lock on
// the path+".lock" sidecar, so concurrent writers never interleave bytes.
func AppendLocked(path string, line []byte) error {
	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer fl.Unlock()

	f, err := OpenAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return nil
}

// AppendJSON marshals v compactly and appends it as one line under the
// sidecar lock.
func AppendJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return AppendLocked(path, data)
}

// TruncateTail rewrites path to its last keep lines once the file exceeds
// max lines. The rewrite happens atomically under the sidecar lock. Callers
// must not hold the AppendLocked lock for the same path when calling this.
func TruncateTail(path string, max, keep int) error {
	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer fl.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	lines := splitNonEmpty(data)
	if len(lines) <= max {
		return nil
	}
	if keep > len(lines) {
		keep = len(lines)
	}
	var buf bytes.Buffer
	for _, line := range lines[len(lines)-keep:] {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return WriteFileAtomic(path, buf.Bytes())
}

// ClaimLines removes the lines claim selects and returns them. Selection and
// rewrite run under the sidecar lock with an atomic replacement, so
// concurrent claimers never lose or double-take a line. Lines that do not
// parse for the claimer stay in the file.
func ClaimLines(path string, claim func(json.RawMessage) bool) ([]json.RawMessage, error) {
	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	defer fl.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var claimed []json.RawMessage
	var rest bytes.Buffer
	for _, line := range splitNonEmpty(data) {
		raw := json.RawMessage(append([]byte(nil), line...))
		if claim(raw) {
			claimed = append(claimed, raw)
			continue
		}
		rest.Write(line)
		rest.WriteByte('\n')
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	if err := WriteFileAtomic(path, rest.Bytes()); err != nil {
		return nil, err
	}
	return claimed, nil
}

func splitNonEmpty(data []byte) [][]byte {
	var out [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		out = append(out, line)
	}
	return out
}
