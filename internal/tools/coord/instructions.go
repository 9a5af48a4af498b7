package coord

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// InstructionsText returns the static instruction string sent to MCP clients
// during initialization. The coordinator is a single agent session; the text
// tells it how to drive the other sessions on this machine.
func InstructionsText() string {
	return `You are the coordinator for the interactive agent sessions running on this machine.

## Startup Checklist

1. list_sessions                      -- which sessions are live and what they work on
2. list_tasks status='pending'        -- unassigned work on the task board
3. get_stats                          -- session, worker and message totals

## Core Workflow

### Inspecting sessions
    - list_sessions shows every live session with status, project and current task
    - get_session session_id='<id>' shows one session in detail (files touched, plan, inbox flag)
    - Sessions go idle after 3 minutes without tool use and stale after 10

### Messaging sessions
    - send_message from='coordinator' to='<session>' content='...' queues a message
    - Messages are delivered when the target session runs its next tool
    - check_inbox session_id='<id>' drains a session's queue by hand (messages are returned once)
    - broadcast content='...' reaches every active and idle session
    - send_directive is send_message plus a wake when the target looks inactive
    - wake_session session_id='<id>' message='...' forces attention via the terminal
    - Delivery is rate limited per target; 'Rate limit exceeded' means back off

### Checking for conflicts
    - detect_conflicts session_id='<you>' files=['path1','path2'] before editing shared files
    - The report lists sessions claiming the same files and recent edits to them

### Spawning work
    - spawn_terminal directory='<path>' opens a fresh interactive session there
    - spawn_worker directory='<path>' prompt='...' runs a one-shot background worker
    - get_result task_id='<id>' tail_lines=100 shows a worker's status and output tail
    - kill_worker task_id='<id>' cancels a running worker
    - run_pipeline directory='<path>' tasks=[{name,prompt},...] chains workers sequentially
    - get_pipeline pipeline_id='<id>' shows per-step progress

### Task board
    - create_task subject='...' assignee='<session>' files=['...'] records work
    - update_task task_id='<id>' status='in_progress' moves it along
      (statuses: pending, in_progress, completed, cancelled)
    - Blocked tasks list open blockers; completing a blocker unblocks dependents
    - list_tasks / get_task to inspect the board

### Teams
    - create_team team_name='...' members=[{name,role,session_id},...] groups sessions
    - get_team / list_teams to inspect rosters

## Rules

- ALWAYS list_sessions before messaging; session ids come from there
- ALWAYS detect_conflicts before directing two sessions at the same files
- NEVER spam wake_session; a queued message reaches the session on its next tool call
- Workers are fire-and-forget: spawn, then poll get_result
- State lives under the switchboard state directory and survives coordinator restarts`
}

// registerPrompts registers reusable prompt templates with the mcp-go server.
func registerPrompts(s *server.MCPServer) {
	s.AddPrompt(
		mcp.NewPrompt("triage-sessions",
			mcp.WithPromptDescription("Survey all live sessions and the task board, then report what needs attention."),
		),
		func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return &mcp.GetPromptResult{
				Description: "Survey sessions and surface anything stuck",
				Messages: []mcp.PromptMessage{
					{
						Role: mcp.RoleUser,
						Content: mcp.TextContent{
							Type: "text",
							Text: `Triage the sessions on this machine:

1. Call list_sessions and get_stats for the current picture.
2. For each stale session, call get_session to see its last activity.
3. Call list_tasks and flag tasks that are in_progress but assigned to a stale session.
4. Summarise: which sessions are healthy, which look stuck, and which tasks need reassignment.
5. Do not send messages or kill anything yet; report findings first.`,
						},
					},
				},
			}, nil
		},
	)

	s.AddPrompt(
		mcp.NewPrompt("delegate-task",
			mcp.WithPromptDescription("Pick an idle session or spawn a worker for a described piece of work."),
			mcp.WithArgument("work", mcp.ArgumentDescription("What needs doing"), mcp.RequiredArgument()),
		),
		func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			work := req.Params.Arguments["work"]
			if work == "" {
				work = "the requested work"
			}
			return &mcp.GetPromptResult{
				Description: "Delegate work to a session or worker",
				Messages: []mcp.PromptMessage{
					{
						Role: mcp.RoleUser,
						Content: mcp.TextContent{
							Type: "text",
							Text: fmt.Sprintf(`Delegate this work: %s

1. Call detect_conflicts with the files involved to avoid overlapping an active session.
2. Call list_sessions; prefer an idle session in the right project over spawning something new.
3. If a session fits: create_task with the session as assignee, then send_directive with the task details.
4. If nothing fits: spawn_worker with a self-contained prompt, or spawn_terminal for interactive work.
5. Record the delegation on the task board either way.`, work),
						},
					},
				},
			}, nil
		},
	)
}
