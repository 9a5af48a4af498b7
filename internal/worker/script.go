package worker

import (
	"fmt"
	"os"
	"strings"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/terminal"
)

// promptPreambleMax bounds how much of session-cache/coder-context.md is
// prepended to a worker prompt.
const promptPreambleMax = 3 * 1024

const interactiveHeader = `You are a worker agent steered by a coordinating session. While you work,
new directives may be appended to your transcript as
"--- INCOMING MESSAGES FROM COORDINATOR ---" blocks. Read every such block
when it appears and follow its instructions, even if it changes your task.

`

const reportPostscript = `

When finished, report your findings: what you did, which files you changed,
and anything the coordinator should follow up on.`

// PriorContext returns up to promptPreambleMax bytes of the shared context
// preamble, or empty when none exists. Pipelines prepend the same block.
func PriorContext(pol *policy.Policy) string {
	data, err := os.ReadFile(pol.ContextPreamble())
	if err != nil || len(data) == 0 {
		return ""
	}
	if len(data) > promptPreambleMax {
		data = data[:promptPreambleMax]
	}
	return string(data)
}

// assemblePrompt builds the prompt file contents: bounded prior context,
// the interactive header when the worker is steerable, the task prompt, and
// the report postscript.
func (s *Supervisor) assemblePrompt(prompt string, mode domain.WorkerMode) string {
	var b strings.Builder
	if pre := PriorContext(s.pol); pre != "" {
		b.WriteString(pre)
		b.WriteString("\n\n---\n\n")
	}
	if mode == domain.ModeInteractive {
		b.WriteString(interactiveHeader)
	}
	b.WriteString(prompt)
	b.WriteString(reportPostscript)
	return b.String()
}

// writeScript synthesizes the wrapper script for the platform and returns
// the launcher command that runs it.
func (s *Supervisor) writeScript(platform, taskID, dir, model, agent string) (string, error) {
	if platform == "windows" || platform == "win32" {
		path := strings.TrimSuffix(s.pol.ResultMeta(taskID), ".meta.json") + ".ps1"
		if err := os.WriteFile(path, []byte(s.powershellScript(taskID, dir, model, agent)), 0o600); err != nil {
			return "", fmt.Errorf("write wrapper script: %w", err)
		}
		return "powershell -NoProfile -ExecutionPolicy Bypass -File " + terminal.BatQuote(path), nil
	}
	path := strings.TrimSuffix(s.pol.ResultMeta(taskID), ".meta.json") + ".sh"
	if err := os.WriteFile(path, []byte(s.posixScript(taskID, dir, model, agent)), 0o700); err != nil {
		return "", fmt.Errorf("write wrapper script: %w", err)
	}
	return terminal.ShQuote(path), nil
}

// posixScript runs the agent as a child of the wrapper shell so the shell
// can write the done marker and unlink the PID file after it exits.
func (s *Supervisor) posixScript(taskID, dir, model, agent string) string {
	q := terminal.ShQuote
	text := q(s.pol.ResultText(taskID))
	agentCmd := q(s.pol.AgentBinary()) + " -p"
	if model != "" {
		agentCmd += " --model " + q(model)
	}
	if agent != "" {
		agentCmd += " --agent " + q(agent)
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("cd " + q(dir) + " || exit 1\n")
	b.WriteString(`echo "=== worker ` + taskID + ` started $(date) ===" >> ` + text + "\n")
	b.WriteString("echo $$ > " + q(s.pol.ResultPID(taskID)) + "\n")
	b.WriteString("unset " + policy.EnvNested + "\n")
	b.WriteString(agentCmd + " < " + q(s.pol.ResultPrompt(taskID)) + " >> " + text + " 2>&1\n")
	b.WriteString("status=$?\n")
	b.WriteString(`printf '{"status":"completed","finished":"%s","exit_code":%d}\n' "$(date -u +%Y-%m-%dT%H:%M:%SZ)" "$status" > ` + q(s.pol.ResultDone(taskID)) + "\n")
	b.WriteString("rm -f " + q(s.pol.ResultPID(taskID)) + "\n")
	return b.String()
}

// powershellScript is the Windows equivalent. $PID is the PowerShell host;
// tree kill takes the agent child down with it.
func (s *Supervisor) powershellScript(taskID, dir, model, agent string) string {
	q := terminal.PSQuote
	text := q(s.pol.ResultText(taskID))
	agentCmd := "& " + q(s.pol.AgentBinary()) + " -p"
	if model != "" {
		agentCmd += " --model " + q(model)
	}
	if agent != "" {
		agentCmd += " --agent " + q(agent)
	}

	var b strings.Builder
	b.WriteString("Set-Location -LiteralPath " + q(dir) + "\n")
	b.WriteString("Add-Content -LiteralPath " + text + ` -Value "=== worker ` + taskID + ` started $(Get-Date) ==="` + "\n")
	b.WriteString("Set-Content -LiteralPath " + q(s.pol.ResultPID(taskID)) + " -Value $PID\n")
	b.WriteString("Remove-Item Env:" + policy.EnvNested + " -ErrorAction SilentlyContinue\n")
	b.WriteString("Get-Content -LiteralPath " + q(s.pol.ResultPrompt(taskID)) + " -Raw | " + agentCmd + " 2>&1 | Add-Content -LiteralPath " + text + "\n")
	b.WriteString("$code = $LASTEXITCODE\n")
	b.WriteString(`$finished = (Get-Date).ToUniversalTime().ToString("yyyy-MM-ddTHH:mm:ssZ")` + "\n")
	b.WriteString("Set-Content -LiteralPath " + q(s.pol.ResultDone(taskID)) +
		` -Value ('{"status":"completed","finished":"' + $finished + '","exit_code":' + $code + '}')` + "\n")
	b.WriteString("Remove-Item -LiteralPath " + q(s.pol.ResultPID(taskID)) + " -ErrorAction SilentlyContinue\n")
	return b.String()
}
