// Package mailbox implements the per-session inboxes: crash-safe draining,
// size-capped sends, broadcasts and the sliding-window rate limit that
// protects every target.
package mailbox

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/session"
	"github.com/jaakkos/switchboard/internal/statedir"
)

// MaxContentBytes caps a single message body.
const MaxContentBytes = 8 * 1024

// Service owns inbox files and the rate window.
type Service struct {
	pol      *policy.Policy
	sessions *session.Store
	limiter  *RateLimiter
}

func NewService(pol *policy.Policy, sessions *session.Store) *Service {
	return &Service{pol: pol, sessions: sessions, limiter: NewRateLimiter(pol)}
}

// Limiter exposes the shared per-target rate limiter (the wake service uses
// the same window as sends).
func (s *Service) Limiter() *RateLimiter { return s.limiter }

// DrainResult is what check_inbox returns.
type DrainResult struct {
	Messages  []domain.Message
	Truncated bool
}

// Drain empties a session's inbox crash-safely: the inbox is renamed aside
// first, so a crash mid-read never double-surfaces messages, and a crash
// before the rename leaves them for the next call. Clears the session's
// has_messages hint.
func (s *Service) Drain(sid8 string) (DrainResult, error) {
	var res DrainResult
	inbox := s.pol.InboxFile(sid8)
	drain := fmt.Sprintf("%s.drain.%d", strings.TrimSuffix(inbox, ".jsonl"), time.Now().UnixMilli())

	readPath := drain
	switch err := os.Rename(inbox, drain); {
	case err == nil:
	case os.IsNotExist(err):
		s.clearHint(sid8)
		return res, nil
	default:
		// Rename refused (e.g. cross-device inbox symlink cleaned away from
		// under us). Read in place and best-effort truncate.
		readPath = inbox
	}

	bounded, err := statedir.ReadBounded(readPath, 0, 0)
	if err != nil {
		return res, err
	}
	res.Truncated = bounded.Truncated
	for _, raw := range bounded.Items {
		var m domain.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		res.Messages = append(res.Messages, m)
	}
	os.Remove(readPath)
	s.clearHint(sid8)
	return res, nil
}

func (s *Service) clearHint(sid8 string) {
	rec := s.sessions.Read(sid8)
	if rec == nil || !rec.HasMessages {
		return
	}
	rec.HasMessages = false
	s.sessions.Write(rec)
}

// Append writes one message line to a session's inbox without rate or
// existence checks. Wake and worker-completion notifications use it.
func (s *Service) Append(to string, msg domain.Message) error {
	if msg.TS.IsZero() {
		msg.TS = time.Now()
	}
	if msg.Priority == "" {
		msg.Priority = domain.PriorityNormal
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	f, err := statedir.OpenAppend(s.pol.InboxFile(to))
	if err != nil {
		return err
	}
	defer f.Close()
	// One write call per message keeps concurrent appends line-atomic.
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append inbox %s: %w", to, err)
	}
	return nil
}

// Send validates and delivers one message. Unknown targets are rejected
// unless allowOffline queues for a session that has not registered yet.
func (s *Service) Send(from, to, content string, priority domain.Priority, allowOffline bool) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("message content must not be empty")
	}
	if len(content) > MaxContentBytes {
		return fmt.Errorf("message content exceeds %d bytes", MaxContentBytes)
	}
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !domain.ValidMessagePriority(priority) {
		return fmt.Errorf("invalid priority %q: want normal or urgent", priority)
	}
	if !s.limiter.Allow(to, time.Now()) {
		return fmt.Errorf("Rate limit exceeded for %s", to)
	}

	rec := s.sessions.Read(to)
	if rec == nil && !allowOffline {
		return fmt.Errorf("no session %s (use allow_offline to queue anyway)", to)
	}
	if err := s.Append(to, domain.Message{TS: time.Now(), From: from, Priority: priority, Content: content}); err != nil {
		return err
	}
	if rec != nil && !rec.HasMessages {
		rec.HasMessages = true
		s.sessions.Write(rec)
	}
	return nil
}

// Broadcast delivers content to every non-closed session except the sender.
// Rate-limited recipients are skipped, not fatal. Returns the number of
// recipients reached.
func (s *Service) Broadcast(from, content string, priority domain.Priority) (int, error) {
	if strings.TrimSpace(content) == "" {
		return 0, fmt.Errorf("message content must not be empty")
	}
	if len(content) > MaxContentBytes {
		return 0, fmt.Errorf("message content exceeds %d bytes", MaxContentBytes)
	}
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !domain.ValidMessagePriority(priority) {
		return 0, fmt.Errorf("invalid priority %q: want normal or urgent", priority)
	}

	var senderSid string
	if len(from) >= 8 {
		senderSid = from[:8]
	}
	now := time.Now()
	delivered := 0
	for _, rec := range s.sessions.List() {
		if session.DeriveStatus(rec, now) == domain.SessionClosed {
			continue
		}
		if rec.Session == senderSid {
			continue
		}
		if !s.limiter.Allow(rec.Session, now) {
			continue
		}
		msg := domain.Message{TS: now, From: from, Priority: priority, Content: "[BROADCAST] " + content}
		if err := s.Append(rec.Session, msg); err != nil {
			continue
		}
		if !rec.HasMessages {
			rec.HasMessages = true
			s.sessions.Write(rec)
		}
		delivered++
	}
	return delivered, nil
}

// StripControl removes C0 and C1 control characters from message text so
// inbox content can never smuggle escape sequences to a terminal. Newlines
// and tabs survive.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f) {
			return -1
		}
		return r
	}, s)
}
