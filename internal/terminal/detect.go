package terminal

import "os"

// Detect guesses which terminal application the current process is running
// inside. Environment markers are checked first, then the parent process
// chain. Returns AppNone when nothing recognizable is found, which maps to
// a detached headless launch.
func Detect(platform string) string {
	if platform == "win32" {
		platform = "windows"
	}
	switch platform {
	case "darwin":
		switch os.Getenv("TERM_PROGRAM") {
		case "iTerm.app":
			return AppITerm2
		case "Apple_Terminal":
			return AppAppleTerminal
		}
		return walkParents(map[string]string{
			"iTerm2":   AppITerm2,
			"iTerm":    AppITerm2,
			"Terminal": AppAppleTerminal,
		})

	case "windows":
		if os.Getenv("WT_SESSION") != "" {
			return AppWindowsTerminal
		}
		return AppCmd

	case "linux":
		switch {
		case os.Getenv("KITTY_WINDOW_ID") != "":
			return AppKitty
		case os.Getenv("KONSOLE_VERSION") != "":
			return AppKonsole
		case os.Getenv("GNOME_TERMINAL_SCREEN") != "":
			return AppGnomeTerminal
		case os.Getenv("ALACRITTY_WINDOW_ID") != "" || os.Getenv("ALACRITTY_SOCKET") != "":
			return AppAlacritty
		}
		return walkParents(map[string]string{
			"gnome-terminal":        AppGnomeTerminal,
			"gnome-terminal-server": AppGnomeTerminal,
			"konsole":               AppKonsole,
			"alacritty":             AppAlacritty,
			"kitty":                 AppKitty,
		})
	}
	return AppNone
}
