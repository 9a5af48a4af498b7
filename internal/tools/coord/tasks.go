package coord

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/switchboard/internal/app"
	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/taskboard"
)

// registerCreateTask registers the create_task tool.
func registerCreateTask(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("create_task",
			mcp.WithDescription("Create a task on the shared board. Dependencies are kept symmetric: blocked_by entries gain a matching blocks edge."),
			mcp.WithString("subject", mcp.Required(), mcp.Description("One-line task summary")),
			mcp.WithString("task_id", mcp.Description("Explicit task id (default: generated T-<hex>)")),
			mcp.WithString("description", mcp.Description("Longer task body")),
			mcp.WithString("assignee", mcp.Description("Session id the task is assigned to")),
			mcp.WithString("priority", mcp.Description("low, normal or high (default: normal)")),
			mcp.WithArray("files", mcp.Description("Files the task touches")),
			mcp.WithArray("blocked_by", mcp.Description("Task ids this task waits on")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			args := req.GetArguments()
			subject, err := requireString(args, "subject")
			if err != nil {
				return "", err
			}
			files, err := stringList(args, "files")
			if err != nil {
				return "", err
			}
			blockedBy, err := stringList(args, "blocked_by")
			if err != nil {
				return "", err
			}
			taskID, _ := args["task_id"].(string)
			description, _ := args["description"].(string)
			assignee, _ := args["assignee"].(string)
			priority, _ := args["priority"].(string)

			rec, err := coord.Tasks().Create(taskboard.CreateRequest{
				Subject:     subject,
				Description: description,
				TaskID:      taskID,
				Assignee:    assignee,
				Priority:    domain.Priority(priority),
				Files:       files,
				BlockedBy:   blockedBy,
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Task %s created: %s", rec.TaskID, rec.Subject), nil
		})
}

// registerUpdateTask registers the update_task tool.
func registerUpdateTask(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("update_task",
			mcp.WithDescription("Update task fields. Omitted fields are left alone; an update with no fields reports no changes."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("status", mcp.Description("pending, in_progress, completed or cancelled")),
			mcp.WithString("assignee", mcp.Description("Session id the task is assigned to")),
			mcp.WithString("subject", mcp.Description("New one-line summary")),
			mcp.WithString("description", mcp.Description("New task body")),
			mcp.WithString("priority", mcp.Description("low, normal or high")),
			mcp.WithArray("add_blocked_by", mcp.Description("Task ids to add as dependencies")),
			mcp.WithArray("add_blocks", mcp.Description("Task ids this task should block")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			args := req.GetArguments()
			taskID, err := requireString(args, "task_id")
			if err != nil {
				return "", err
			}
			addBlockedBy, err := stringList(args, "add_blocked_by")
			if err != nil {
				return "", err
			}
			addBlocks, err := stringList(args, "add_blocks")
			if err != nil {
				return "", err
			}
			rec, changed, err := coord.Tasks().Update(taskboard.UpdateRequest{
				TaskID:       taskID,
				Status:       optionalStringPtr(args, "status"),
				Assignee:     optionalStringPtr(args, "assignee"),
				Subject:      optionalStringPtr(args, "subject"),
				Description:  optionalStringPtr(args, "description"),
				Priority:     optionalStringPtr(args, "priority"),
				AddBlockedBy: addBlockedBy,
				AddBlocks:    addBlocks,
			})
			if err != nil {
				return "", err
			}
			if !changed {
				return fmt.Sprintf("Task %s: no changes", rec.TaskID), nil
			}
			return fmt.Sprintf("Task %s updated", rec.TaskID), nil
		})
}

// registerListTasks registers the list_tasks tool.
func registerListTasks(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List board tasks, optionally filtered by status or assignee. Open blockers are flagged."),
			mcp.WithString("status", mcp.Description("pending, in_progress, completed or cancelled")),
			mcp.WithString("assignee", mcp.Description("Only tasks assigned to this session")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			args := req.GetArguments()
			status, _ := args["status"].(string)
			assignee, _ := args["assignee"].(string)

			items, err := coord.Tasks().List(status, assignee)
			if err != nil {
				return "", err
			}
			if len(items) == 0 {
				return "No tasks.", nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "%d task(s):\n", len(items))
			for _, it := range items {
				fmt.Fprintf(&b, "- %s [%s/%s] %s", it.Task.TaskID, it.Task.Status, it.Task.Priority, it.Task.Subject)
				if it.Task.Assignee != "" {
					fmt.Fprintf(&b, " (assignee %s)", it.Task.Assignee)
				}
				if len(it.OpenBlockers) > 0 {
					fmt.Fprintf(&b, " blocked by %s", strings.Join(it.OpenBlockers, ", "))
				}
				b.WriteByte('\n')
			}
			return b.String(), nil
		})
}

// registerGetTask registers the get_task tool.
func registerGetTask(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("get_task",
			mcp.WithDescription("Show one task's full record including both dependency directions."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			taskID, err := requireString(req.GetArguments(), "task_id")
			if err != nil {
				return "", err
			}
			rec, err := coord.Tasks().Get(taskID)
			if err != nil {
				return "", err
			}
			return renderTask(rec), nil
		})
}

func renderTask(rec *domain.TaskRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s: %s\n", rec.TaskID, rec.Subject)
	fmt.Fprintf(&b, "status: %s\n", rec.Status)
	fmt.Fprintf(&b, "priority: %s\n", rec.Priority)
	if rec.Assignee != "" {
		fmt.Fprintf(&b, "assignee: %s\n", rec.Assignee)
	}
	if rec.Description != "" {
		fmt.Fprintf(&b, "description: %s\n", rec.Description)
	}
	if len(rec.Files) > 0 {
		fmt.Fprintf(&b, "files: %s\n", strings.Join(rec.Files, ", "))
	}
	if len(rec.BlockedBy) > 0 {
		fmt.Fprintf(&b, "blocked_by: %s\n", strings.Join(rec.BlockedBy, ", "))
	}
	if len(rec.Blocks) > 0 {
		fmt.Fprintf(&b, "blocks: %s\n", strings.Join(rec.Blocks, ", "))
	}
	fmt.Fprintf(&b, "created: %s\n", rec.Created.Format(time.RFC3339))
	fmt.Fprintf(&b, "updated: %s\n", rec.Updated.Format(time.RFC3339))
	return b.String()
}
