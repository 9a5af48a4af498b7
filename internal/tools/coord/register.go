// Package coord exposes the coordinator's operations as MCP tools. Every
// handler returns a text response: validation and execution failures render
// as "Invalid arguments for <op>: <message>" rather than protocol errors, so
// a misbehaving argument never kills the agent's tool call.
package coord

import (
	"context"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/switchboard/internal/app"
)

// handlerFunc is one tool implementation. The registration wrapper owns the
// lazy boot, panic recovery and error rendering around it.
type handlerFunc func(ctx context.Context, req mcp.CallToolRequest) (string, error)

// Register wires every coordinator operation onto the MCP server.
func Register(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	// Session tools (3)
	registerListSessions(s, coord, logger)
	registerGetSession(s, coord, logger)
	registerCheckInbox(s, coord, logger)

	// Messaging tools (4)
	registerSendMessage(s, coord, logger)
	registerBroadcast(s, coord, logger)
	registerSendDirective(s, coord, logger)
	registerWakeSession(s, coord, logger)

	// Conflict tool (1)
	registerDetectConflicts(s, coord, logger)

	// Worker tools (4)
	registerSpawnTerminal(s, coord, logger)
	registerSpawnWorker(s, coord, logger)
	registerGetResult(s, coord, logger)
	registerKillWorker(s, coord, logger)

	// Pipeline tools (2)
	registerRunPipeline(s, coord, logger)
	registerGetPipeline(s, coord, logger)

	// Task board tools (4)
	registerCreateTask(s, coord, logger)
	registerUpdateTask(s, coord, logger)
	registerListTasks(s, coord, logger)
	registerGetTask(s, coord, logger)

	// Team tools (3)
	registerCreateTeam(s, coord, logger)
	registerGetTeam(s, coord, logger)
	registerListTeams(s, coord, logger)

	// Stats tool (1)
	registerGetStats(s, coord, logger)

	registerPrompts(s)
}

// register adds one tool with the shared dispatch contract: ensure the state
// tree and boot sweep have run, call the handler, and fold every failure
// mode into a text response.
func register(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger, tool mcp.Tool, h handlerFunc) {
	op := tool.Name
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult, _ error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Printf("Coordinator: %s panicked: %v", op, r)
				result = errorText(op, fmt.Errorf("%v", r))
			}
		}()
		if err := coord.Boot(); err != nil {
			logger.Printf("Coordinator: boot: %v", err)
			return errorText(op, err), nil
		}
		text, err := h(ctx, req)
		if err != nil {
			return errorText(op, err), nil
		}
		return mcp.NewToolResultText(text), nil
	})
}

func errorText(op string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultText(fmt.Sprintf("Invalid arguments for %s: %v", op, err))
}
