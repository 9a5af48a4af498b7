package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/jaakkos/switchboard/internal/app"
	"github.com/jaakkos/switchboard/internal/notifier"
	"github.com/jaakkos/switchboard/internal/tools/coord"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP coordination server on stdio",
	Long: `Run the coordination server in the foreground, speaking MCP over
stdin/stdout. The coordinating agent registers this command as an MCP
server. Logs go to the configured log file, never stdout.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	pol, warn := loadPolicy()
	logger := setupLogger(pol.LogFile())
	if warn != "" {
		logger.Printf("Warning: %s", warn)
	}
	logger.Println("Starting switchboard server...")
	logger.Printf("Log file: %s", pol.LogFile())
	logger.Printf("State root: %s", pol.StateRoot())

	// The state tree and boot sweep are created lazily by the first tool
	// call, so a configured-but-unused server touches nothing.
	coordinator := app.NewCoordinator(pol, logger)

	hooks := &server.Hooks{}
	hooks.AddAfterCallTool(func(ctx context.Context, id any, message *mcp.CallToolRequest, result *mcp.CallToolResult) {
		if message != nil {
			logger.Printf("Tool call: %s", message.Params.Name)
		}
	})

	mcpServer := server.NewMCPServer(
		"switchboard",
		Version,
		server.WithInstructions(coord.InstructionsText()),
		server.WithHooks(hooks),
	)
	coord.Register(mcpServer, coordinator, logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Keep running when the launching terminal goes away (nohup, launchd).
	signal.Ignore(syscall.SIGHUP)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	var watcher *notifier.Notifier
	if pol.NotifierEnabled() {
		watcher = notifier.New(pol, coordinator.Sessions(), func(sid8 string) error {
			_, err := coordinator.Waker().Wake("notifier", sid8, "You have unread messages in your inbox.")
			return err
		}, logger)
		go watcher.Start(ctx)
		logger.Printf("Notifier enabled (poll=%ds)", pol.NotifierPollSeconds())
	}

	logger.Println("Stdio ready (agent connection)")
	stdio := server.NewStdioServer(mcpServer)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Printf("Stdio server stopped: %v", err)
	}

	// The agent disconnected or a signal landed; wind everything down.
	cancel()
	if watcher != nil {
		watcher.Stop()
	}
	logger.Println("Server stopped")
	return nil
}
