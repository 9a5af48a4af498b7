//go:build !windows

package terminal

import (
	"os"

	"github.com/jaakkos/switchboard/internal/proc"
)

// walkParents climbs the parent process chain looking for a known terminal
// emulator. Bounded so a weird chain cannot spin.
func walkParents(names map[string]string) string {
	pid := os.Getppid()
	for i := 0; i < 12 && pid > 1; i++ {
		if app, ok := names[proc.Comm(pid)]; ok {
			return app
		}
		pid = proc.PPid(pid)
	}
	return AppNone
}
