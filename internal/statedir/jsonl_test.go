package statedir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestReadBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inbox.jsonl")
	content := `{"from":"lead","content":"hi"}
not json at all
{"from":"reviewer","content":"done"}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	res, err := ReadBounded(path, 0, 0)
	if err != nil {
		t.Fatalf("ReadBounded: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2 (bad line skipped)", len(res.Items))
	}
	if res.TotalLines != 3 {
		t.Errorf("TotalLines = %d, want 3", res.TotalLines)
	}
	if res.Truncated {
		t.Error("Truncated = true, want false")
	}
	var first struct {
		From string `json:"from"`
	}
	if err := json.Unmarshal(res.Items[0], &first); err != nil {
		t.Fatalf("Unmarshal item: %v", err)
	}
	if first.From != "lead" {
		t.Errorf("Items[0].from = %q, want lead", first.From)
	}
}

func TestReadBounded_missing(t *testing.T) {
	res, err := ReadBounded(filepath.Join(t.TempDir(), "none.jsonl"), 0, 0)
	if err != nil {
		t.Fatalf("ReadBounded(missing) = %v, want nil", err)
	}
	if len(res.Items) != 0 || res.Truncated || res.TotalLines != 0 {
		t.Errorf("ReadBounded(missing) = %+v, want empty", res)
	}
}

func TestReadBounded_lineCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.jsonl")
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&sb, `{"n":%d}`+"\n", i)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	res, err := ReadBounded(path, 0, 5)
	if err != nil {
		t.Fatalf("ReadBounded: %v", err)
	}
	if len(res.Items) != 5 {
		t.Errorf("len(Items) = %d, want 5", len(res.Items))
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if res.TotalLines != 20 {
		t.Errorf("TotalLines = %d, want 20", res.TotalLines)
	}
}

func TestReadBounded_byteCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fat.jsonl")
	line := `{"pad":"` + strings.Repeat("x", 100) + `"}` + "\n"
	if err := os.WriteFile(path, []byte(strings.Repeat(line, 10)), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// Budget covers roughly three lines; the cut line must not surface.
	res, err := ReadBounded(path, 350, 0)
	if err != nil {
		t.Fatalf("ReadBounded: %v", err)
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if len(res.Items) != 3 {
		t.Errorf("len(Items) = %d, want 3", len(res.Items))
	}
}

func TestReadTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, `{"n":%d}`+"\n", i)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	items, err := ReadTail(path, 3)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	var last struct{ N int }
	if err := json.Unmarshal(items[2], &last); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if last.N != 9 {
		t.Errorf("last.N = %d, want 9", last.N)
	}
}

func TestReadTail_missing(t *testing.T) {
	items, err := ReadTail(filepath.Join(t.TempDir(), "none.jsonl"), 5)
	if err != nil {
		t.Fatalf("ReadTail(missing) = %v, want nil", err)
	}
	if items != nil {
		t.Errorf("ReadTail(missing) = %v, want nil", items)
	}
}

func TestAppendLocked_concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := AppendJSON(path, map[string]int{"writer": n, "seq": j}); err != nil {
					t.Errorf("AppendJSON: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	res, err := ReadBounded(path, 0, 0)
	if err != nil {
		t.Fatalf("ReadBounded: %v", err)
	}
	if len(res.Items) != 80 {
		t.Errorf("len(Items) = %d, want 80 (no torn lines)", len(res.Items))
	}
}

func TestTruncateTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.jsonl")
	for i := 0; i < 12; i++ {
		if err := AppendJSON(path, map[string]int{"n": i}); err != nil {
			t.Fatalf("AppendJSON: %v", err)
		}
	}

	if err := TruncateTail(path, 10, 6); err != nil {
		t.Fatalf("TruncateTail: %v", err)
	}
	res, err := ReadBounded(path, 0, 0)
	if err != nil {
		t.Fatalf("ReadBounded: %v", err)
	}
	if len(res.Items) != 6 {
		t.Fatalf("len(Items) = %d, want 6", len(res.Items))
	}
	var first struct{ N int }
	if err := json.Unmarshal(res.Items[0], &first); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if first.N != 6 {
		t.Errorf("oldest kept entry = %d, want 6", first.N)
	}
}

func TestTruncateTail_underLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.jsonl")
	for i := 0; i < 3; i++ {
		if err := AppendJSON(path, map[string]int{"n": i}); err != nil {
			t.Fatalf("AppendJSON: %v", err)
		}
	}
	if err := TruncateTail(path, 10, 6); err != nil {
		t.Fatalf("TruncateTail: %v", err)
	}
	res, err := ReadBounded(path, 0, 0)
	if err != nil {
		t.Fatalf("ReadBounded: %v", err)
	}
	if len(res.Items) != 3 {
		t.Errorf("len(Items) = %d, want 3 (untouched)", len(res.Items))
	}
}

func TestTruncateTail_missing(t *testing.T) {
	if err := TruncateTail(filepath.Join(t.TempDir(), "none.jsonl"), 10, 6); err != nil {
		t.Errorf("TruncateTail(missing) = %v, want nil", err)
	}
}

func TestClaimLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.jsonl")
	content := `{"who":"a","n":1}
{"who":"b","n":2}
garbage line
{"who":"a","n":3}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	claimed, err := ClaimLines(path, func(raw json.RawMessage) bool {
		var v struct{ Who string }
		return json.Unmarshal(raw, &v) == nil && v.Who == "a"
	})
	if err != nil {
		t.Fatalf("ClaimLines: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("len(claimed) = %d, want 2", len(claimed))
	}
	var last struct{ N int }
	if err := json.Unmarshal(claimed[1], &last); err != nil {
		t.Fatalf("Unmarshal claimed: %v", err)
	}
	if last.N != 3 {
		t.Errorf("claimed[1].n = %d, want 3", last.N)
	}

	rest, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := `{"who":"b","n":2}
garbage line
`
	if string(rest) != want {
		t.Errorf("remaining file = %q, want %q", rest, want)
	}
}

func TestClaimLines_nothingClaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.jsonl")
	content := `{"who":"b","n":2}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	claimed, err := ClaimLines(path, func(json.RawMessage) bool { return false })
	if err != nil {
		t.Fatalf("ClaimLines: %v", err)
	}
	if claimed != nil {
		t.Errorf("claimed = %v, want nil", claimed)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != content {
		t.Errorf("file = %q, want untouched %q", data, content)
	}
}

func TestClaimLines_missing(t *testing.T) {
	claimed, err := ClaimLines(filepath.Join(t.TempDir(), "none.jsonl"), func(json.RawMessage) bool { return true })
	if err != nil {
		t.Fatalf("ClaimLines(missing) = %v, want nil", err)
	}
	if claimed != nil {
		t.Errorf("claimed = %v, want nil", claimed)
	}
}
