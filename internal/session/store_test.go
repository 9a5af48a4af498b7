package session

import (
	"os"
	"testing"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/statedir"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	cfg := policy.DefaultConfig()
	cfg.StateRoot = t.TempDir()
	pol := policy.New(cfg)
	if err := statedir.EnsureDir(pol.TerminalsDir()); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	return NewStore(pol)
}

func TestDeriveStatus(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		status domain.SessionStatus
		age    time.Duration
		noTime bool
		want   domain.SessionStatus
	}{
		{"fresh", domain.SessionActive, 10 * time.Second, false, domain.SessionActive},
		{"idle", domain.SessionActive, 5 * time.Minute, false, domain.SessionIdle},
		{"old", domain.SessionActive, 20 * time.Minute, false, domain.SessionStale},
		{"closed sticky", domain.SessionClosed, time.Second, false, domain.SessionClosed},
		{"stale sticky", domain.SessionStale, time.Second, false, domain.SessionStale},
		{"no last_active", domain.SessionActive, 0, true, domain.SessionUnknown},
		{"idle persisted rederives", domain.SessionIdle, 10 * time.Second, false, domain.SessionActive},
	}
	for _, c := range cases {
		rec := &domain.SessionRecord{Session: "abcd1234", Status: c.status}
		if !c.noTime {
			rec.LastActive = now.Add(-c.age)
		}
		if got := DeriveStatus(rec, now); got != c.want {
			t.Errorf("%s: DeriveStatus = %s, want %s", c.name, got, c.want)
		}
	}
}

func TestStoreReadWrite(t *testing.T) {
	st := testStore(t)
	rec := domain.NewSessionRecord("abcd1234", time.Now())
	rec.Project = "switchboard"
	rec.TouchFile("/p/src/a.go")

	if err := st.Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := st.Read("abcd1234")
	if got == nil {
		t.Fatal("Read = nil after Write")
	}
	if got.Project != "switchboard" || got.Session != "abcd1234" {
		t.Errorf("Read = %+v", got)
	}
	if len(got.FilesTouched) != 1 || got.FilesTouched[0] != "/p/src/a.go" {
		t.Errorf("FilesTouched = %v", got.FilesTouched)
	}
}

func TestStoreRead_missingAndCorrupt(t *testing.T) {
	st := testStore(t)
	if got := st.Read("eeee0000"); got != nil {
		t.Errorf("Read(missing) = %+v, want nil", got)
	}

	if err := os.WriteFile(st.pol.SessionFile("ffff0000"), []byte("{broken"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if got := st.Read("ffff0000"); got != nil {
		t.Errorf("Read(corrupt) = %+v, want nil", got)
	}
}

func TestStoreList(t *testing.T) {
	st := testStore(t)
	now := time.Now()
	for _, sid := range []string{"bbbb2222", "aaaa1111"} {
		if err := st.Write(domain.NewSessionRecord(sid, now)); err != nil {
			t.Fatalf("Write(%s): %v", sid, err)
		}
	}
	// Corrupt and mismatched records must be skipped.
	if err := os.WriteFile(st.pol.SessionFile("cccc3333"), []byte("nope"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	liar := domain.NewSessionRecord("dddd4444", now)
	liar.Session = "zzzz9999"
	if err := statedir.WriteJSON(st.pol.SessionFile("dddd4444"), liar); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	recs := st.List()
	if len(recs) != 2 {
		t.Fatalf("List len = %d, want 2", len(recs))
	}
	if recs[0].Session != "aaaa1111" || recs[1].Session != "bbbb2222" {
		t.Errorf("List order = %s, %s", recs[0].Session, recs[1].Session)
	}
}

func TestStoreRemove(t *testing.T) {
	st := testStore(t)
	if err := st.Write(domain.NewSessionRecord("abcd1234", time.Now())); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := st.Remove("abcd1234"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := st.Read("abcd1234"); got != nil {
		t.Error("Read after Remove != nil")
	}
	if err := st.Remove("abcd1234"); err != nil {
		t.Errorf("Remove(missing) = %v, want nil", err)
	}
}
