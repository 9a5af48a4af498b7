package coord

import (
	"fmt"
	"strings"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/mailbox"
)

// age renders a duration the way a session list reads: seconds under a
// minute, then whole minutes, then whole hours.
func age(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}

// renderMessages renders drained inbox messages, one line each.
func renderMessages(msgs []domain.Message, truncated bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d message(s):\n", len(msgs))
	for _, m := range msgs {
		priority := m.Priority
		if priority == "" {
			priority = domain.PriorityNormal
		}
		stamp := ""
		if !m.TS.IsZero() {
			stamp = m.TS.Format("15:04:05") + " "
		}
		fmt.Fprintf(&b, "[%s] %sfrom %s: %s\n", priority, stamp, m.From, mailbox.StripControl(m.Content))
	}
	if truncated {
		b.WriteString("(inbox truncated; oldest messages were dropped)\n")
	}
	return b.String()
}

// workerStatusLabel renders a derived worker status. A cancel marker is a
// normal terminal outcome, not a distinct lifecycle.
func workerStatusLabel(st domain.WorkerStatus) string {
	if st == domain.WorkerCancelled {
		return "completed (cancelled)"
	}
	return string(st)
}
