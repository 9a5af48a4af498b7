package coord

import (
	"context"
	"log"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/switchboard/internal/app"
)

// registerGetStats registers the get_stats tool.
func registerGetStats(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("get_stats",
			mcp.WithDescription("Summarise live sessions, workers, recent message volume and archive totals."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			return coord.StatsReport(time.Now()), nil
		})
}
