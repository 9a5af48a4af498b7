package coord

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/switchboard/internal/app"
	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/session"
	"github.com/jaakkos/switchboard/internal/validate"
)

// directiveWakeAge is how stale a directive target's last activity may be
// before the directive also prods the terminal.
const directiveWakeAge = 120 * time.Second

// registerSendMessage registers the send_message tool.
func registerSendMessage(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("send_message",
			mcp.WithDescription("Queue a message for another session's inbox. The target sees it on its next tool call or inbox check."),
			mcp.WithString("from", mcp.Required(), mcp.Description("Sender identity (session id or role name)")),
			mcp.WithString("to", mcp.Required(), mcp.Description("Target session id")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Message body (max 8 KiB)")),
			mcp.WithString("priority", mcp.Description("normal or urgent (default: normal)")),
			mcp.WithBoolean("allow_offline", mcp.Description("Queue even when the target session is not registered")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			args := req.GetArguments()
			from, err := requireString(args, "from")
			if err != nil {
				return "", err
			}
			to, err := requireString(args, "to")
			if err != nil {
				return "", err
			}
			content, err := requireString(args, "content")
			if err != nil {
				return "", err
			}
			sid8, err := validate.SessionID(to)
			if err != nil {
				return "", err
			}
			priority, _ := args["priority"].(string)
			if err := coord.Mail().Send(from, sid8, content, domain.Priority(priority), optionalBool(args, "allow_offline")); err != nil {
				return "", err
			}
			return fmt.Sprintf("Message queued for %s", sid8), nil
		})
}

// registerBroadcast registers the broadcast tool.
func registerBroadcast(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("broadcast",
			mcp.WithDescription("Queue a message for every non-closed session except the sender."),
			mcp.WithString("from", mcp.Required(), mcp.Description("Sender identity (session id or role name)")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Message body (max 8 KiB)")),
			mcp.WithString("priority", mcp.Description("normal or urgent (default: normal)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			args := req.GetArguments()
			from, err := requireString(args, "from")
			if err != nil {
				return "", err
			}
			content, err := requireString(args, "content")
			if err != nil {
				return "", err
			}
			priority, _ := args["priority"].(string)
			n, err := coord.Mail().Broadcast(from, content, domain.Priority(priority))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Broadcast queued for %d session(s)", n), nil
		})
}

// registerSendDirective registers the send_directive tool.
func registerSendDirective(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("send_directive",
			mcp.WithDescription("Queue a message and, when the target looks inattentive, prod its terminal so the directive is acted on promptly."),
			mcp.WithString("from", mcp.Required(), mcp.Description("Sender identity (session id or role name)")),
			mcp.WithString("to", mcp.Required(), mcp.Description("Target session id")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Directive body (max 8 KiB)")),
			mcp.WithString("priority", mcp.Description("normal or urgent (default: normal)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			args := req.GetArguments()
			from, err := requireString(args, "from")
			if err != nil {
				return "", err
			}
			to, err := requireString(args, "to")
			if err != nil {
				return "", err
			}
			content, err := requireString(args, "content")
			if err != nil {
				return "", err
			}
			sid8, err := validate.SessionID(to)
			if err != nil {
				return "", err
			}
			priority, _ := args["priority"].(string)
			if err := coord.Mail().Send(from, sid8, content, domain.Priority(priority), false); err != nil {
				return "", err
			}

			// The directive is already queued; the wake is best-effort.
			now := time.Now()
			if rec := coord.Sessions().Read(sid8); rec != nil && needsWake(rec, now) {
				if _, err := coord.Waker().Wake(from, sid8, "New directive from "+from); err != nil {
					logger.Printf("Coordinator: directive wake %s: %v", sid8, err)
				}
			}
			return fmt.Sprintf("Directive queued for %s", sid8), nil
		})
}

// needsWake reports whether a directive target is inattentive: derived
// idle/stale, or no activity inside the wake window.
func needsWake(rec *domain.SessionRecord, now time.Time) bool {
	switch session.DeriveStatus(rec, now) {
	case domain.SessionIdle, domain.SessionStale:
		return true
	}
	return rec.LastActive.IsZero() || now.Sub(rec.LastActive) > directiveWakeAge
}

// registerWakeSession registers the wake_session tool.
func registerWakeSession(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("wake_session",
			mcp.WithDescription("Queue an urgent message for a session and prod its terminal. Falls back to inbox-only when no attention channel works."),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session id")),
			mcp.WithString("message", mcp.Required(), mcp.Description("What the session should know when it wakes")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			args := req.GetArguments()
			sessionID, err := requireString(args, "session_id")
			if err != nil {
				return "", err
			}
			message, err := requireString(args, "message")
			if err != nil {
				return "", err
			}
			res, err := coord.Waker().Wake("coordinator", sessionID, message)
			if err != nil {
				return "", err
			}
			if res.Attention {
				return fmt.Sprintf("Woke %s via %s", res.Session, res.Method), nil
			}
			return fmt.Sprintf("Wake queued for %s; message delivered to inbox", res.Session), nil
		})
}
