package terminal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jaakkos/switchboard/internal/policy"
)

const launchTimeout = 15 * time.Second

// Run executes a Launch. Detached launches are started in their own session
// and reaped in the background; foreground launchers (osascript, wt) are
// waited on so a refusal surfaces as an error with the tool's output.
func Run(l Launch) error {
	if l.Detached {
		cmd := exec.Command(l.Program, l.Args...)
		cmd.Env = scrubEnv(os.Environ())
		detach(cmd)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start %s: %w", l.Program, err)
		}
		go cmd.Wait()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), launchTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, l.Program, l.Args...)
	cmd.Env = scrubEnv(os.Environ())
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %v: %s", l.Program, err, msg)
		}
		return fmt.Errorf("%s: %w", l.Program, err)
	}
	return nil
}

// scrubEnv removes the nesting marker so children launched from inside an
// agent session behave like top-level agents.
func scrubEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, e := range env {
		if strings.HasPrefix(e, policy.EnvNested+"=") {
			continue
		}
		out = append(out, e)
	}
	return out
}
