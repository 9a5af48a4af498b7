package mailbox

import (
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/statedir"
)

const (
	rateWindow    = time.Minute
	rateLockWait  = 2 * time.Second
	rateLockStale = 15 * time.Second
	rateLockRetry = 50 * time.Millisecond
)

// RateLimiter keeps a sliding window of send timestamps per target in
// rate-<sid8>.json, mutated strictly read-modify-write under a lock.
type RateLimiter struct {
	pol *policy.Policy
}

func NewRateLimiter(pol *policy.Policy) *RateLimiter {
	return &RateLimiter{pol: pol}
}

// Allow records an event against target and reports whether it fits the
// per-minute cap. Failures fail open: a wedged lock or unreadable window
// must never block every sender on the machine.
func (l *RateLimiter) Allow(target string, now time.Time) bool {
	path := l.pol.RateFile(target)
	release, err := statedir.AcquireLock(path+".lock", rateLockWait, rateLockStale, rateLockRetry)
	if err != nil {
		return true
	}
	defer release()

	var win domain.RateWindow
	if err := statedir.ReadJSON(path, &win); err != nil {
		win = domain.RateWindow{}
	}
	kept := win.Timestamps[:0]
	for _, ts := range win.Timestamps {
		if now.Sub(ts) < rateWindow {
			kept = append(kept, ts)
		}
	}
	win.Timestamps = kept

	if len(win.Timestamps) >= l.pol.MessagesPerMinute() {
		// The prune still gets persisted; the rejection does not count
		// against the window.
		statedir.WriteJSON(path, &win)
		return false
	}
	win.Timestamps = append(win.Timestamps, now)
	statedir.WriteJSON(path, &win)
	return true
}
