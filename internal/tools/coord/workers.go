package coord

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/switchboard/internal/app"
	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/terminal"
	"github.com/jaakkos/switchboard/internal/validate"
	"github.com/jaakkos/switchboard/internal/worker"
)

// registerSpawnTerminal registers the spawn_terminal tool.
func registerSpawnTerminal(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("spawn_terminal",
			mcp.WithDescription("Open a new interactive agent session in a terminal window or tab at the given directory."),
			mcp.WithString("directory", mcp.Required(), mcp.Description("Project directory to start in")),
			mcp.WithString("initial_prompt", mcp.Description("Prompt handed to the agent on startup")),
			mcp.WithString("layout", mcp.Description("tab or split (default: tab)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			args := req.GetArguments()
			dir, err := requireString(args, "directory")
			if err != nil {
				return "", err
			}
			prompt, _ := args["initial_prompt"].(string)
			layout, _ := args["layout"].(string)
			res, err := coord.SpawnTerminal(app.TerminalRequest{
				Directory:     dir,
				InitialPrompt: prompt,
				Layout:        terminal.Layout(layout),
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Terminal opened in %s (app=%s)", res.Directory, res.App), nil
		})
}

// registerSpawnWorker registers the spawn_worker tool.
func registerSpawnWorker(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("spawn_worker",
			mcp.WithDescription("Spawn a headless agent worker in a new terminal. Output is captured; check it with get_result."),
			mcp.WithString("directory", mcp.Required(), mcp.Description("Project directory the worker runs in")),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("Task prompt piped to the worker")),
			mcp.WithString("model", mcp.Description("Model override for the worker")),
			mcp.WithString("agent", mcp.Description("Agent persona override")),
			mcp.WithString("task_id", mcp.Description("Explicit task id (default: generated W<millis>)")),
			mcp.WithString("notify_session_id", mcp.Description("Session to notify when the worker finishes (alias: session_id)")),
			mcp.WithArray("files", mcp.Description("Files the worker will edit, for conflict checking")),
			mcp.WithString("layout", mcp.Description("tab or split (default: tab)")),
			mcp.WithString("mode", mcp.Description("pipe or interactive (default: pipe)")),
			mcp.WithBoolean("isolate", mcp.Description("Run in a dedicated git worktree on branch worker/<task_id>")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			args := req.GetArguments()
			dir, err := requireString(args, "directory")
			if err != nil {
				return "", err
			}
			prompt, err := requireString(args, "prompt")
			if err != nil {
				return "", err
			}
			notify, _ := args["notify_session_id"].(string)
			if notify == "" {
				notify, _ = args["session_id"].(string)
			}
			if notify != "" {
				if notify, err = validate.SessionID(notify); err != nil {
					return "", err
				}
			}
			files, err := stringList(args, "files")
			if err != nil {
				return "", err
			}
			model, _ := args["model"].(string)
			agent, _ := args["agent"].(string)
			taskID, _ := args["task_id"].(string)
			layout, _ := args["layout"].(string)
			mode, _ := args["mode"].(string)

			res, err := coord.Workers().Spawn(worker.SpawnRequest{
				Directory:       dir,
				Prompt:          prompt,
				Model:           model,
				Agent:           agent,
				TaskID:          taskID,
				NotifySessionID: notify,
				Files:           files,
				Layout:          terminal.Layout(layout),
				Mode:            domain.WorkerMode(mode),
				Isolate:         optionalBool(args, "isolate"),
			})
			if err != nil {
				return "", err
			}
			text := fmt.Sprintf("Worker %s spawned in %s", res.TaskID, res.Directory)
			if res.Branch != "" {
				text += fmt.Sprintf(" on branch %s", res.Branch)
			}
			return text, nil
		})
}

// registerGetResult registers the get_result tool.
func registerGetResult(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("get_result",
			mcp.WithDescription("Show a worker's status and the tail of its captured output."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Worker task id")),
			mcp.WithNumber("tail_lines", mcp.Description("Output lines to return (default: 100, max 500)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			args := req.GetArguments()
			taskID, err := requireString(args, "task_id")
			if err != nil {
				return "", err
			}
			tail := int(optionalFloat64(args, "tail_lines", 0))
			view, err := coord.Workers().Result(taskID, tail)
			if err != nil {
				return "", err
			}
			return renderResult(view), nil
		})
}

func renderResult(view worker.ResultView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Worker %s: %s\n", view.Meta.TaskID, workerStatusLabel(view.Status))
	fmt.Fprintf(&b, "directory: %s\n", view.Meta.Directory)
	if view.Meta.Model != "" {
		fmt.Fprintf(&b, "model: %s\n", view.Meta.Model)
	}
	if view.Meta.WorktreeBranch != "" {
		fmt.Fprintf(&b, "branch: %s\n", view.Meta.WorktreeBranch)
	}
	if view.Meta.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", view.Meta.Error)
	}
	if view.TotalLines == 0 {
		b.WriteString("\nNo output captured.")
		return b.String()
	}
	fmt.Fprintf(&b, "\nOutput (last %d of %d lines):\n", len(view.Lines), view.TotalLines)
	for _, line := range view.Lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// registerKillWorker registers the kill_worker tool.
func registerKillWorker(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("kill_worker",
			mcp.WithDescription("Cancel a running worker. The cancellation is recorded even when no live process is found."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Worker task id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			taskID, err := requireString(req.GetArguments(), "task_id")
			if err != nil {
				return "", err
			}
			kr, err := coord.Workers().Kill(taskID)
			if err != nil {
				return "", err
			}
			if kr.AlreadyDone {
				return fmt.Sprintf("Worker %s already finished", kr.TaskID), nil
			}
			if kr.Signalled {
				return fmt.Sprintf("Worker %s cancelled (pid %d signalled)", kr.TaskID, kr.PID), nil
			}
			return fmt.Sprintf("Worker %s cancelled (no live process)", kr.TaskID), nil
		})
}
