package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	historyGroup string
	historyLimit int
)

// historyCmd lists recent check/repair runs from the advisory run index.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs from the run-history index",
	RunE: func(cmd *cobra.Command, args []string) error {
		index := openIndex()
		if index == nil {
			return fmt.Errorf("run index unavailable at %s", cfg.Run.IndexPath)
		}
		defer func() { _ = index.Close() }()

		runs, err := index.RecentRuns(cmd.Context(), historyGroup, historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}
		for _, r := range runs {
			finished := "running"
			if r.FinishedAt != nil {
				finished = r.FinishedAt.Format(time.RFC3339)
			}
			fmt.Printf("%s  %-16s  started %s  finished %s  logs %d/%d completed\n",
				r.ID[:8], r.Group, r.StartedAt.Format(time.RFC3339), finished,
				r.LogsCompleted, r.LogsScanned)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyGroup, "group", "", "limit to one group")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to list")
}
