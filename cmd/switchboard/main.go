// switchboard coordinates the interactive agent sessions on one developer
// workstation. One binary serves the coordination tools over MCP stdio,
// provides the hook entry points the host agent calls around its own tool
// use, and carries the maintenance commands for the shared state root.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
