// Package session is the file-backed store of per-session records and the
// status derivation every other component trusts.
package session

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/statedir"
)

// Age thresholds for derived status.
const (
	activeWithin = 180 * time.Second
	idleWithin   = 600 * time.Second
)

// DeriveStatus classifies a record against the clock. The persisted status
// is a sticky override for closed and stale; everything else is purely a
// function of last_active age.
func DeriveStatus(rec *domain.SessionRecord, now time.Time) domain.SessionStatus {
	switch rec.Status {
	case domain.SessionClosed:
		return domain.SessionClosed
	case domain.SessionStale:
		return domain.SessionStale
	}
	if rec.LastActive.IsZero() {
		return domain.SessionUnknown
	}
	age := now.Sub(rec.LastActive)
	switch {
	case age < activeWithin:
		return domain.SessionActive
	case age < idleWithin:
		return domain.SessionIdle
	default:
		return domain.SessionStale
	}
}

// Store reads and rewrites session records under the terminals directory.
// Reads never fail: a missing or unparseable record is simply absent, and
// the next writer heals the file. Only writes report errors.
type Store struct {
	pol *policy.Policy
}

func NewStore(pol *policy.Policy) *Store {
	return &Store{pol: pol}
}

// Read loads one session record, or nil if it does not exist in a readable
// form.
func (s *Store) Read(sid8 string) *domain.SessionRecord {
	var rec domain.SessionRecord
	if err := statedir.ReadJSON(s.pol.SessionFile(sid8), &rec); err != nil {
		return nil
	}
	if rec.Session == "" {
		rec.Session = sid8
	}
	return &rec
}

// Write rewrites a record wholesale and atomically.
func (s *Store) Write(rec *domain.SessionRecord) error {
	return statedir.WriteJSON(s.pol.SessionFile(rec.Session), rec)
}

// List returns every parseable session record, sorted by session id.
// Records whose embedded id contradicts their filename are skipped.
func (s *Store) List() []*domain.SessionRecord {
	entries, err := os.ReadDir(s.pol.TerminalsDir())
	if err != nil {
		return nil
	}
	var recs []*domain.SessionRecord
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "session-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		sid8 := strings.TrimSuffix(strings.TrimPrefix(name, "session-"), ".json")
		var rec domain.SessionRecord
		if err := statedir.ReadJSON(filepath.Join(s.pol.TerminalsDir(), name), &rec); err != nil {
			continue
		}
		if rec.Session == "" {
			rec.Session = sid8
		}
		if rec.Session != sid8 {
			continue
		}
		recs = append(recs, &rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Session < recs[j].Session })
	return recs
}

// Remove deletes a session record file. Missing files are not an error.
func (s *Store) Remove(sid8 string) error {
	err := os.Remove(s.pol.SessionFile(sid8))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
