// Package wake prods a session's terminal back to attention. Message content
// never reaches the terminal: the text always lands in the target's inbox as
// an urgent [WAKE] message, and the platform injection is at most an Enter
// keystroke or an empty device write.
package wake

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/mailbox"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/session"
	"github.com/jaakkos/switchboard/internal/terminal"
	"github.com/jaakkos/switchboard/internal/validate"
)

const (
	appleScriptTimeout = 10 * time.Second
	probeTimeout       = 5 * time.Second
)

// Service delivers wakes. The platform is fixed at construction so the
// dispatch stays testable.
type Service struct {
	pol      *policy.Policy
	sessions *session.Store
	mail     *mailbox.Service
	platform string
	logger   *log.Logger
}

func NewService(pol *policy.Policy, sessions *session.Store, mail *mailbox.Service, logger *log.Logger) *Service {
	return &Service{
		pol:      pol,
		sessions: sessions,
		mail:     mail,
		platform: policy.Platform(runtime.GOOS),
		logger:   logger,
	}
}

// Result reports how a wake landed. The message is queued on every success;
// Attention reports whether a terminal was actually prodded.
type Result struct {
	Session   string
	Attention bool
	Method    string // tty, applescript, sendkeys, none
}

// Wake queues the message for the target and then attempts a platform
// attention signal. Attention failure is not an error; the inbox already
// carries the content.
func (w *Service) Wake(from, sessionID, message string) (Result, error) {
	var res Result
	sid8, err := validate.SessionID(sessionID)
	if err != nil {
		return res, err
	}
	res.Session = sid8
	res.Method = "none"

	if !w.mail.Limiter().Allow(sid8, time.Now()) {
		return res, fmt.Errorf("Rate limit exceeded for %s", sid8)
	}
	rec := w.sessions.Read(sid8)
	if rec == nil {
		return res, fmt.Errorf("no session %s", sid8)
	}
	content := strings.TrimSpace(message)
	if content == "" {
		return res, fmt.Errorf("message must not be empty")
	}
	if len(content) > mailbox.MaxContentBytes {
		return res, fmt.Errorf("message too large: %d bytes (max %d)", len(content), mailbox.MaxContentBytes)
	}

	msg := domain.Message{
		TS:       time.Now(),
		From:     from,
		Priority: domain.PriorityUrgent,
		Content:  "[WAKE] " + mailbox.StripControl(content),
	}
	if err := w.mail.Append(sid8, msg); err != nil {
		return res, err
	}
	rec.HasMessages = true
	if err := w.sessions.Write(rec); err != nil {
		w.logger.Printf("Wake: message hint for %s: %v", sid8, err)
	}

	method, err := w.attention(rec)
	if err != nil {
		w.logger.Printf("Wake: attention for %s failed, inbox only: %v", sid8, err)
		return res, nil
	}
	res.Attention = true
	res.Method = method
	w.logger.Printf("Wake: prodded %s via %s", sid8, method)
	return res, nil
}

// attention dispatches the text-free signal for the current platform.
func (w *Service) attention(rec *domain.SessionRecord) (string, error) {
	switch w.platform {
	case "darwin":
		if err := w.runAppleScript(appleWakeScript(rec.TTY, rec.Session)); err != nil {
			return "", err
		}
		return "applescript", nil
	case "windows", "win32":
		if err := w.runSendKeys(sendKeysScript(rec.Session)); err != nil {
			return "", err
		}
		return "sendkeys", nil
	default:
		if !validate.TTYPath(rec.TTY) {
			return "", fmt.Errorf("no usable tty for %s", rec.Session)
		}
		if err := terminal.Nudge(rec.TTY); err != nil {
			return "", err
		}
		return "tty", nil
	}
}

// appleWakeScript locates the session's iTerm2 pane by tty, then by name,
// then a Terminal.app tab by name, and presses Enter on whichever it found.
// The pressed key is the only thing the script ever types.
func appleWakeScript(tty, sid8 string) string {
	title := terminal.AppleQuote("agent-" + sid8)
	ttyLit := terminal.AppleQuote(tty)

	var b strings.Builder
	b.WriteString("set found to false\n")
	b.WriteString("try\n")
	b.WriteString("  tell application \"iTerm2\"\n")
	b.WriteString("    repeat with aWindow in windows\n")
	b.WriteString("      repeat with aTab in tabs of aWindow\n")
	b.WriteString("        repeat with aSession in sessions of aTab\n")
	if tty != "" {
		b.WriteString("          if (tty of aSession is \"" + ttyLit + "\") or (name of aSession contains \"" + title + "\") then\n")
	} else {
		b.WriteString("          if name of aSession contains \"" + title + "\" then\n")
	}
	b.WriteString("            select aWindow\n")
	b.WriteString("            select aSession\n")
	b.WriteString("            set found to true\n")
	b.WriteString("          end if\n")
	b.WriteString("        end repeat\n")
	b.WriteString("      end repeat\n")
	b.WriteString("    end repeat\n")
	b.WriteString("    if found then activate\n")
	b.WriteString("  end tell\n")
	b.WriteString("end try\n")
	b.WriteString("if not found then\n")
	b.WriteString("  try\n")
	b.WriteString("    tell application \"Terminal\"\n")
	b.WriteString("      repeat with aWindow in windows\n")
	b.WriteString("        repeat with aTab in tabs of aWindow\n")
	b.WriteString("          if custom title of aTab contains \"" + title + "\" then\n")
	b.WriteString("            set selected tab of aWindow to aTab\n")
	b.WriteString("            set frontmost of aWindow to true\n")
	b.WriteString("            set found to true\n")
	b.WriteString("          end if\n")
	b.WriteString("        end repeat\n")
	b.WriteString("      end repeat\n")
	b.WriteString("      if found then activate\n")
	b.WriteString("    end tell\n")
	b.WriteString("  end try\n")
	b.WriteString("end if\n")
	b.WriteString("if not found then error \"session terminal not found\"\n")
	b.WriteString("tell application \"System Events\" to key code 36\n")
	return b.String()
}

func (w *Service) runAppleScript(script string) error {
	ctx, cancel := context.WithTimeout(context.Background(), appleScriptTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("osascript: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// sendKeysScript activates the window titled agent-<sid8> and sends a lone
// Enter. The script takes no message text at all.
func sendKeysScript(sid8 string) string {
	title := terminal.PSQuote("agent-" + sid8)
	var b strings.Builder
	b.WriteString("$shell = New-Object -ComObject WScript.Shell\n")
	b.WriteString("if ($shell.AppActivate(" + title + ")) {\n")
	b.WriteString("  Start-Sleep -Milliseconds 200\n")
	b.WriteString("  $shell.SendKeys('{ENTER}')\n")
	b.WriteString("  exit 0\n")
	b.WriteString("}\n")
	b.WriteString("exit 1\n")
	return b.String()
}

// runSendKeys writes the one-shot script, executes it and removes it.
func (w *Service) runSendKeys(script string) error {
	f, err := os.CreateTemp("", "switchboard-wake-*.ps1")
	if err != nil {
		return fmt.Errorf("wake script: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.WriteString(script); err != nil {
		f.Close()
		return fmt.Errorf("wake script: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("wake script: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-ExecutionPolicy", "Bypass", "-File", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("powershell wake: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
