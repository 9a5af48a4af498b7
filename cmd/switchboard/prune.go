package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaakkos/switchboard/internal/prune"
)

var pruneTTLHours int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Sweep expired state from the state root",
	Long: `Remove session records, worker artifacts and pipeline directories whose
work finished longer than the TTL ago, plus the temp and lock files a
crashed process leaves behind, and cap the append-only logs. The server
runs the same sweep at boot; prune exists for cron and for reclaiming
space without a running server.`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().IntVar(&pruneTTLHours, "ttl-hours", 0, "age cutoff in hours (default: configured prune_ttl_hours)")
}

func runPrune(cmd *cobra.Command, _ []string) error {
	pol, warn := loadPolicy()
	logger := stderrLogger()
	if warn != "" {
		logger.Printf("Warning: %s", warn)
	}
	res := prune.NewSweeper(pol, logger).Sweep(time.Duration(pruneTTLHours) * time.Hour)
	fmt.Println("Pruned:", res)
	return nil
}
