package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/structmine/docbatch/internal/common"
	"github.com/structmine/docbatch/internal/core"
	"github.com/structmine/docbatch/internal/poll"
	"github.com/structmine/docbatch/internal/repair"
	"github.com/structmine/docbatch/internal/retrieve"
)

var repairSelect string

// repairCmd lists repair candidates across all groups and re-runs the
// poll/retrieve/reconcile pipeline for the operator's selection. It never
// resubmits work.
var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Re-run reconciliation for selected tracking logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		groups, err := common.LoadGroups(cfg.Run.GroupsFile)
		if err != nil {
			return err
		}

		index := openIndex()
		if index != nil {
			defer func() { _ = index.Close() }()
		}

		proc := core.NewProcessor(
			logger,
			poll.NewPoller(api, logger),
			retrieve.NewRetriever(api, logger),
			index,
			cfg.Run.PersistRecovery,
			cfg.Run.Parallelism,
		)
		tool := repair.NewTool(proc, logger)

		candidates := tool.ScanCandidates(groups)
		if len(candidates) == 0 {
			fmt.Println("No tracking logs found; nothing to repair.")
			return nil
		}

		fmt.Println("Repair candidates:")
		for i, c := range candidates {
			fmt.Println("  " + c.Describe(i+1))
		}

		selection := repairSelect
		if selection == "" {
			fmt.Printf("Select logs to repair (comma-separated, %q to exit): ", repair.ExitToken)
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return nil
			}
			selection = strings.TrimSpace(line)
		}

		indices, quit, err := repair.ParseSelection(selection, len(candidates))
		if quit {
			return nil
		}
		if err != nil {
			if errors.Is(err, common.ErrInvalidInput) {
				fmt.Printf("Invalid selection: %v\n", err)
				return nil
			}
			return err
		}

		outcomes := tool.Repair(cmd.Context(), candidates, indices)
		for _, o := range outcomes {
			switch {
			case o.Unrepairable:
				fmt.Printf("  %s: unrepairable (no batch ids recoverable)\n", o.Candidate.LogPath)
			case o.Err != nil:
				fmt.Printf("  %s: error: %v\n", o.Candidate.LogPath, o.Err)
			case o.OutputPath != "":
				fmt.Printf("  %s -> %s (%d responses)\n", o.Candidate.LogPath, o.OutputPath, o.Responses)
			default:
				fmt.Printf("  %s: no responses yet\n", o.Candidate.LogPath)
			}
		}
		return nil
	},
}

func init() {
	repairCmd.Flags().StringVar(&repairSelect, "select", "", "non-interactive selection (e.g. \"1,3\")")
}
