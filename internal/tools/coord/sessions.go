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
	"github.com/jaakkos/switchboard/internal/session"
	"github.com/jaakkos/switchboard/internal/validate"
)

// registerListSessions registers the list_sessions tool.
func registerListSessions(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("list_sessions",
			mcp.WithDescription("List registered agent sessions on this machine with their liveness status."),
			mcp.WithBoolean("include_closed", mcp.Description("Include sessions that have ended (default: false)")),
			mcp.WithString("project", mcp.Description("Only sessions whose project matches this name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			args := req.GetArguments()
			includeClosed := optionalBool(args, "include_closed")
			project, _ := args["project"].(string)

			now := time.Now()
			var b strings.Builder
			count := 0
			for _, rec := range coord.Sessions().List() {
				status := session.DeriveStatus(rec, now)
				if status == domain.SessionClosed && !includeClosed {
					continue
				}
				if project != "" && rec.Project != project {
					continue
				}
				count++
				fmt.Fprintf(&b, "- %s [%s]", rec.Session, status)
				if rec.Project != "" {
					fmt.Fprintf(&b, " project=%s", rec.Project)
				}
				if rec.CurrentTask != "" {
					fmt.Fprintf(&b, " task=%s", rec.CurrentTask)
				}
				if !rec.LastActive.IsZero() {
					fmt.Fprintf(&b, " last_active=%s ago", age(now.Sub(rec.LastActive)))
				}
				if rec.HasMessages {
					b.WriteString(" has_messages")
				}
				b.WriteByte('\n')
			}
			if count == 0 {
				return "No sessions.", nil
			}
			return fmt.Sprintf("%d session(s):\n%s", count, b.String()), nil
		})
}

// registerGetSession registers the get_session tool.
func registerGetSession(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("get_session",
			mcp.WithDescription("Show one session's full record: project, branch, activity, touched files."),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id (short 8-char form or full)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			raw, err := requireString(req.GetArguments(), "session_id")
			if err != nil {
				return "", err
			}
			sid8, err := validate.SessionID(raw)
			if err != nil {
				return "", err
			}
			rec := coord.Sessions().Read(sid8)
			if rec == nil {
				return "", fmt.Errorf("no session %s", sid8)
			}
			return renderSession(rec, time.Now()), nil
		})
}

func renderSession(rec *domain.SessionRecord, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s [%s]\n", rec.Session, session.DeriveStatus(rec, now))
	if rec.Project != "" {
		fmt.Fprintf(&b, "project: %s\n", rec.Project)
	}
	if rec.Branch != "" {
		fmt.Fprintf(&b, "branch: %s\n", rec.Branch)
	}
	if rec.CWD != "" {
		fmt.Fprintf(&b, "cwd: %s\n", rec.CWD)
	}
	if rec.TTY != "" {
		fmt.Fprintf(&b, "tty: %s\n", rec.TTY)
	}
	if !rec.Started.IsZero() {
		fmt.Fprintf(&b, "started: %s\n", rec.Started.Format(time.RFC3339))
	}
	if !rec.LastActive.IsZero() {
		fmt.Fprintf(&b, "last_active: %s (%s ago)\n", rec.LastActive.Format(time.RFC3339), age(now.Sub(rec.LastActive)))
	}
	if !rec.Ended.IsZero() {
		fmt.Fprintf(&b, "ended: %s\n", rec.Ended.Format(time.RFC3339))
	}
	if rec.LastTool != "" {
		if rec.LastFile != "" {
			fmt.Fprintf(&b, "last_tool: %s %s\n", rec.LastTool, rec.LastFile)
		} else {
			fmt.Fprintf(&b, "last_tool: %s\n", rec.LastTool)
		}
	}
	if len(rec.FilesTouched) > 0 {
		fmt.Fprintf(&b, "files_touched (%d): %s\n", len(rec.FilesTouched), strings.Join(rec.FilesTouched, ", "))
	}
	if rec.CurrentTask != "" {
		fmt.Fprintf(&b, "current_task: %s\n", rec.CurrentTask)
	}
	if len(rec.CurrentFiles) > 0 {
		fmt.Fprintf(&b, "current_files: %s\n", strings.Join(rec.CurrentFiles, ", "))
	}
	if rec.PlanFile != "" {
		fmt.Fprintf(&b, "plan_file: %s\n", rec.PlanFile)
	}
	if rec.HasMessages {
		b.WriteString("has_messages: true\n")
	}
	return b.String()
}

// registerCheckInbox registers the check_inbox tool.
func registerCheckInbox(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("check_inbox",
			mcp.WithDescription("Drain a session's inbox and return its pending messages. Messages are returned once."),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Session whose inbox to drain")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			raw, err := requireString(req.GetArguments(), "session_id")
			if err != nil {
				return "", err
			}
			sid8, err := validate.SessionID(raw)
			if err != nil {
				return "", err
			}
			res, err := coord.Mail().Drain(sid8)
			if err != nil {
				return "", err
			}
			if len(res.Messages) == 0 {
				return "No messages.", nil
			}
			return renderMessages(res.Messages, res.Truncated), nil
		})
}
