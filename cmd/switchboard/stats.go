package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaakkos/switchboard/internal/app"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print session, worker and message counters",
	Long: `Read the state root and print the same report the get_stats tool
returns, without needing a running server.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	pol, warn := loadPolicy()
	logger := stderrLogger()
	if warn != "" {
		logger.Printf("Warning: %s", warn)
	}
	fmt.Print(app.NewCoordinator(pol, logger).StatsReport(time.Now()))
	return nil
}
