// Package terminal turns "open a new agent in a terminal" into concrete
// process invocations for macOS, Windows and Linux. Building the invocation
// is a pure function so every platform branch is testable anywhere; only
// Run touches the OS.
package terminal

import (
	"fmt"
	"strings"
)

// Layout selects where a spawned command lands relative to the current
// terminal window.
type Layout string

const (
	LayoutTab   Layout = "tab"
	LayoutSplit Layout = "split"
)

// Terminal applications the launcher knows how to drive. Detect returns
// one of these; the config may force one.
const (
	AppITerm2          = "iTerm2"
	AppAppleTerminal   = "Terminal.app"
	AppWindowsTerminal = "Windows Terminal"
	AppCmd             = "cmd"
	AppGnomeTerminal   = "gnome-terminal"
	AppKonsole         = "konsole"
	AppAlacritty       = "alacritty"
	AppKitty           = "kitty"
	AppNone            = "none"
)

// Launch is a ready-to-exec invocation. Args never pass through a shell;
// where a platform needs one (bash -c, cmd /c) the shell is the program
// and the command is a single argv element.
type Launch struct {
	Program  string
	Args     []string
	Detached bool
}

// Command maps (platform, app, layout) to the invocation that opens a new
// terminal surface running command. Unknown apps degrade to a detached
// headless launch on darwin/linux and to a plain cmd window on Windows.
func Command(platform, app, command string, layout Layout) (Launch, error) {
	if command == "" {
		return Launch{}, fmt.Errorf("empty command")
	}
	if platform == "win32" {
		platform = "windows"
	}
	if layout != LayoutSplit {
		layout = LayoutTab
	}

	switch platform {
	case "darwin":
		switch app {
		case AppITerm2:
			write := `tell application "iTerm2" to tell current session of current window to write text "` + AppleQuote(command) + `"`
			open := `tell application "iTerm2" to tell current window to create tab with default profile`
			if layout == LayoutSplit {
				open = `tell application "iTerm2" to tell current session of current window to split vertically with default profile`
			}
			return Launch{Program: "osascript", Args: []string{"-e", open, "-e", write}}, nil
		case AppAppleTerminal:
			script := `tell application "Terminal" to do script "` + AppleQuote(command) + `"`
			return Launch{Program: "osascript", Args: []string{"-e", script}}, nil
		default:
			return Launch{Program: "bash", Args: []string{"-lc", command}, Detached: true}, nil
		}

	case "windows":
		if app == AppWindowsTerminal {
			if layout == LayoutSplit {
				return Launch{Program: "wt", Args: []string{"-w", "0", "sp", "-V", "cmd", "/c", command}}, nil
			}
			return Launch{Program: "wt", Args: []string{"-w", "0", "nt", "cmd", "/c", command}}, nil
		}
		return Launch{Program: "cmd", Args: []string{"/c", "start", "", "cmd", "/c", command}}, nil

	case "linux":
		switch app {
		case AppGnomeTerminal:
			return Launch{Program: "gnome-terminal", Args: []string{"--", "bash", "-c", command}}, nil
		case AppKonsole:
			return Launch{Program: "konsole", Args: []string{"-e", "bash", "-c", command}}, nil
		case AppAlacritty:
			return Launch{Program: "alacritty", Args: []string{"-e", "bash", "-c", command}}, nil
		case AppKitty:
			kind := "--type=tab"
			if layout == LayoutSplit {
				kind = "--type=window"
			}
			return Launch{Program: "kitty", Args: []string{"@", "launch", kind, "bash", "-c", command}}, nil
		default:
			return Launch{Program: "bash", Args: []string{"-lc", command}, Detached: true}, nil
		}
	}
	return Launch{}, fmt.Errorf("unsupported platform %q", platform)
}

// AppleQuote escapes a string for embedding in an AppleScript string literal.
func AppleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// ShQuote single-quotes s for a POSIX shell script. Embedded single quotes
// use the close-escape-reopen form.
func ShQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// PSQuote single-quotes s for PowerShell, doubling embedded single quotes.
func PSQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// BatQuote double-quotes s for a cmd.exe batch script, caret-escaping the
// metacharacters cmd interprets and doubling percent signs.
func BatQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '%':
			b.WriteString("%%")
		case '^', '&', '|', '>', '<', '!':
			b.WriteByte('^')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
