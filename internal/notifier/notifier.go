// Package notifier watches the inbox directory and prods idle sessions when
// their mailbox grows. It is an optional serve-time helper: the file protocol
// works without it, queued messages just wait for the session's next hook
// drain instead of being announced.
package notifier

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/session"
	"github.com/jaakkos/switchboard/internal/statedir"
)

const defaultDebounce = 200 * time.Millisecond

// Waker queues an urgent inbox message for the session and raises its
// terminal. The wake service provides the real one; tests stub it.
type Waker func(sid8 string) error

// Notifier wakes idle and stale sessions when their inbox file grows.
// fsnotify drives it where the platform cooperates; a poll pass covers
// missed events and filesystems without change notification.
type Notifier struct {
	pol      *policy.Policy
	sessions *session.Store
	wake     Waker
	logger   *log.Logger
	debounce time.Duration
	poll     time.Duration

	mu            sync.Mutex
	sizes         map[string]int64
	pending       map[string]struct{}
	debounceTimer *time.Timer

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	sweepMu  sync.Mutex // serializes debounce sweeps against the poll loop
}

// Option configures the notifier.
type Option func(*Notifier)

// WithPollInterval overrides the fallback poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(n *Notifier) { n.poll = d }
}

// WithDebounce overrides the event debounce window.
func WithDebounce(d time.Duration) Option {
	return func(n *Notifier) { n.debounce = d }
}

func New(pol *policy.Policy, sessions *session.Store, wake Waker, logger *log.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		pol:      pol,
		sessions: sessions,
		wake:     wake,
		logger:   logger,
		debounce: defaultDebounce,
		poll:     time.Duration(pol.NotifierPollSeconds()) * time.Second,
		sizes:    make(map[string]int64),
		pending:  make(map[string]struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Start watches the inbox directory until ctx is cancelled or Stop is called.
// If fsnotify cannot watch the directory, the poll loop carries it alone.
func (n *Notifier) Start(ctx context.Context) {
	defer close(n.doneCh)

	inboxDir := n.pol.InboxDir()
	if err := statedir.EnsureDir(inboxDir); err != nil {
		n.logger.Printf("Notifier: ensure %s: %v", inboxDir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		n.logger.Printf("Notifier: fsnotify init failed (%v), using poll-only", err)
	} else if err := watcher.Add(inboxDir); err != nil {
		n.logger.Printf("Notifier: watch %s failed (%v), using poll-only", inboxDir, err)
		watcher.Close()
	} else {
		n.watcher = watcher
		defer watcher.Close()
		go n.watchLoop(ctx)
	}

	n.pollLoop(ctx)
}

// Stop ends the loops and waits for Start to return. Call after Start; safe
// to call more than once.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() { close(n.stopCh) })
	<-n.doneCh
}

// CheckOnce runs one full scan synchronously (manual trigger and tests).
func (n *Notifier) CheckOnce() {
	n.scan()
}

func (n *Notifier) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			// Drain renames the file aside; only appends matter here.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ".jsonl") {
				continue
			}
			n.markPending(strings.TrimSuffix(name, ".jsonl"))
		case _, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (n *Notifier) markPending(sid8 string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending[sid8] = struct{}{}
	if n.debounceTimer != nil {
		n.debounceTimer.Stop()
	}
	n.debounceTimer = time.AfterFunc(n.debounce, n.sweepPending)
}

func (n *Notifier) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.scan()
		}
	}
}

func (n *Notifier) sweepPending() {
	n.sweepMu.Lock()
	defer n.sweepMu.Unlock()

	n.mu.Lock()
	batch := n.pending
	n.pending = make(map[string]struct{})
	n.mu.Unlock()

	for sid8 := range batch {
		n.check(sid8)
	}
}

func (n *Notifier) scan() {
	n.sweepMu.Lock()
	defer n.sweepMu.Unlock()

	entries, err := os.ReadDir(n.pol.InboxDir())
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		n.check(strings.TrimSuffix(e.Name(), ".jsonl"))
	}
}

// check wakes the session behind one inbox file if the file grew since the
// last look and the session is not paying attention. Active sessions drain
// on their own next tool call; closed and unknown ones have no terminal to
// prod.
func (n *Notifier) check(sid8 string) {
	path := n.pol.InboxFile(sid8)
	fi, err := os.Stat(path)
	if err != nil {
		n.mu.Lock()
		delete(n.sizes, sid8)
		n.mu.Unlock()
		return
	}
	size := fi.Size()
	n.mu.Lock()
	last, seen := n.sizes[sid8]
	n.sizes[sid8] = size
	n.mu.Unlock()
	if size == 0 || (seen && size <= last) {
		return
	}

	rec := n.sessions.Read(sid8)
	if rec == nil {
		return
	}
	switch session.DeriveStatus(rec, time.Now()) {
	case domain.SessionIdle, domain.SessionStale:
	default:
		return
	}

	if err := n.wake(sid8); err != nil {
		n.logger.Printf("Notifier: wake %s: %v", sid8, err)
		return
	}
	// The wake itself appended to the inbox; absorb that growth so the next
	// event does not immediately re-trigger.
	if fi, err := os.Stat(path); err == nil {
		n.mu.Lock()
		n.sizes[sid8] = fi.Size()
		n.mu.Unlock()
	}
	n.logger.Printf("Notifier: woke %s (inbox %d bytes)", sid8, size)
}
