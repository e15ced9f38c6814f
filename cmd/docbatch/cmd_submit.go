package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/structmine/docbatch/internal/submit"
	"github.com/structmine/docbatch/internal/tracking"
)

var (
	submitRequests string
	submitLogPath  string
)

// submitCmd splits a prepared requests file into size-bounded batches and
// submits each, appending tracking records as it goes. A failure partway
// leaves earlier submissions live; check/repair reconcile them later.
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Split and submit a prepared requests file as remote batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		if submitRequests == "" {
			return fmt.Errorf("--requests is required")
		}
		api, err := newAPIClient()
		if err != nil {
			return err
		}

		requests, err := submit.ReadRequestsFile(submitRequests)
		if err != nil {
			return err
		}
		if len(requests) == 0 {
			fmt.Println("No requests in file; nothing to submit.")
			return nil
		}

		logPath := submitLogPath
		if logPath == "" {
			stem := strings.TrimSuffix(filepath.Base(submitRequests), filepath.Ext(submitRequests))
			logPath = filepath.Join(filepath.Dir(submitRequests), stem+tracking.LogSuffix)
		}
		log := tracking.OpenLog(logPath, logger)

		submitter := submit.NewSubmitter(api, cfg.Batch, logger)
		res, err := submitter.Submit(cmd.Context(), log, requests)
		if res != nil {
			fmt.Printf("Submitted %d/%d parts (%d requests) -> %s\n",
				res.PartsSubmitted, res.PartsTotal, res.Requests, logPath)
			for _, id := range res.BatchIDs {
				fmt.Printf("  batch %s\n", id)
			}
		}
		if err != nil {
			return fmt.Errorf("submission incomplete (earlier parts remain live): %w", err)
		}
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitRequests, "requests", "", "requests file (newline-delimited JSON, one request per line)")
	submitCmd.Flags().StringVar(&submitLogPath, "log", "", "tracking log path (default next to the requests file)")
}
