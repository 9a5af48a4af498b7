package terminal

import (
	"fmt"
	"os"
)

// SetTitle writes the OSC 0 escape to a terminal device so the tab title
// becomes findable by title-based wake. Callers must validate ttyPath first.
func SetTitle(ttyPath, title string) error {
	f, err := os.OpenFile(ttyPath, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open tty %s: %w", ttyPath, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "\x1b]0;%s\x07", title); err != nil {
		return fmt.Errorf("write tty %s: %w", ttyPath, err)
	}
	return nil
}

// Nudge appends a bare newline to a terminal device. The visible scroll is
// the whole point: it draws the user's eye without injecting any input.
func Nudge(ttyPath string) error {
	f, err := os.OpenFile(ttyPath, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("open tty %s: %w", ttyPath, err)
	}
	defer f.Close()
	if _, err := f.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write tty %s: %w", ttyPath, err)
	}
	return nil
}
