package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/structmine/docbatch/internal/batchapi"
	"github.com/structmine/docbatch/internal/common"
	"github.com/structmine/docbatch/internal/runindex"
)

var (
	// Global flags
	verbose    bool
	groupsPath string

	logger *slog.Logger
	cfg    *common.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "docbatch",
	Short: "docbatch - asynchronous batch lifecycle manager for document extraction",
	Long: `docbatch manages the asynchronous batch-job lifecycle for LLM-based
structured extraction over chunked documents: it submits size-bounded
request batches, durably tracks their ids in append-only logs, polls for
completion, recovers lost tracking state, reconciles responses into ordered
output, and supports operator-driven repair of incomplete runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		cfg = common.LoadConfig()
		if groupsPath != "" {
			cfg.Run.GroupsFile = groupsPath
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&groupsPath, "groups", "", "path to the document group registry (default $DOCBATCH_GROUPS or groups.yaml)")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(historyCmd)
}

// newAPIClient builds the remote client after config validation.
func newAPIClient() (*batchapi.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return batchapi.NewClient(batchapi.Config{
		BaseURL:          cfg.API.BaseURL,
		APIKey:           cfg.API.APIKey,
		Endpoint:         cfg.API.Endpoint,
		CompletionWindow: cfg.API.CompletionWindow,
		Timeout:          cfg.API.Timeout,
		Retry:            batchapi.DefaultRetryPolicy(cfg.API.MaxAttempts),
	}, logger), nil
}

// openIndex opens the advisory run-history index. Failure is not fatal:
// the index only feeds listings.
func openIndex() *runindex.Store {
	store, err := runindex.Open(cfg.Run.IndexPath)
	if err != nil {
		logger.Warn("run index unavailable", "path", cfg.Run.IndexPath, "error", err)
		return nil
	}
	return store
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
