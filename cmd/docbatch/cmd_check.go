package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/structmine/docbatch/internal/common"
	"github.com/structmine/docbatch/internal/core"
	"github.com/structmine/docbatch/internal/poll"
	"github.com/structmine/docbatch/internal/retrieve"
)

var checkGroup string

// checkCmd polls every tracked batch across all configured groups and
// writes reconciled results for logs with at least one response.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Poll tracked batches and reconcile completed results",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		groups, err := common.LoadGroups(cfg.Run.GroupsFile)
		if err != nil {
			return err
		}
		groups = filterGroups(groups, checkGroup)
		if len(groups) == 0 {
			return fmt.Errorf("no group named %q in %s", checkGroup, cfg.Run.GroupsFile)
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

		ctx := cmd.Context()
		for _, g := range groups {
			summary, err := proc.CheckGroup(ctx, g)
			if err != nil {
				return err
			}
			fmt.Printf("Group %s: %d logs scanned, %d fully completed\n",
				summary.Group, summary.LogsScanned, summary.LogsCompleted)
			for _, o := range summary.Outcomes {
				switch {
				case o.Unrepairable:
					fmt.Printf("  %s: unrepairable (no batch ids, no debug artifact)\n", o.LogPath)
				case o.Err != nil:
					fmt.Printf("  %s: error: %v\n", o.LogPath, o.Err)
				case o.OutputPath != "":
					fmt.Printf("  %s -> %s (%d responses, fully_completed=%t)\n",
						o.LogPath, o.OutputPath, len(o.Result.Responses), o.Result.Metadata.FullyCompleted)
				default:
					fmt.Printf("  %s: no responses yet\n", o.LogPath)
				}
			}
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkGroup, "group", "", "limit the scan to one group")
}

func filterGroups(groups []common.Group, name string) []common.Group {
	if name == "" {
		return groups
	}
	var out []common.Group
	for _, g := range groups {
		if g.Name == name {
			out = append(out, g)
		}
	}
	return out
}
