package coord

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/switchboard/internal/app"
	"github.com/jaakkos/switchboard/internal/conflict"
	"github.com/jaakkos/switchboard/internal/validate"
)

// registerDetectConflicts registers the detect_conflicts tool.
func registerDetectConflicts(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("detect_conflicts",
			mcp.WithDescription("Check whether other sessions are working on the same files before editing them."),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Requesting session id")),
			mcp.WithArray("files", mcp.Required(), mcp.Description("File paths to check, absolute or relative to the session's cwd")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			args := req.GetArguments()
			raw, err := requireString(args, "session_id")
			if err != nil {
				return "", err
			}
			sid8, err := validate.SessionID(raw)
			if err != nil {
				return "", err
			}
			files, err := stringList(args, "files")
			if err != nil {
				return "", err
			}
			if len(files) == 0 {
				return "", fmt.Errorf("files is required")
			}
			report, err := coord.Conflicts().Detect(sid8, files)
			if err != nil {
				return "", err
			}
			return renderConflicts(report), nil
		})
}

func renderConflicts(rep conflict.Report) string {
	if rep.Empty() {
		return "No conflicts detected"
	}
	var b strings.Builder
	b.WriteString("CONFLICTS DETECTED\n")
	if len(rep.Overlaps) > 0 {
		b.WriteString("\nSessions working on the same files:\n")
		for _, o := range rep.Overlaps {
			fmt.Fprintf(&b, "- %s", o.Session)
			if o.Project != "" {
				fmt.Fprintf(&b, " (project %s)", o.Project)
			}
			if o.Task != "" {
				fmt.Fprintf(&b, " task %s", o.Task)
			}
			fmt.Fprintf(&b, ": %s\n", strings.Join(o.Files, ", "))
		}
	}
	if len(rep.Recent) > 0 {
		b.WriteString("\nRecent edits on requested files:\n")
		for _, r := range rep.Recent {
			fmt.Fprintf(&b, "- %s %s %s (%s ago)\n", r.Session, r.Tool, r.File, age(r.Age))
		}
	}
	return b.String()
}
