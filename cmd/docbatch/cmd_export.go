package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/structmine/docbatch/internal/export"
	"github.com/structmine/docbatch/internal/tracking"
)

var exportOut string

// exportCmd renders a final result JSON file into an XLSX workbook.
var exportCmd = &cobra.Command{
	Use:   "export <final-results.json>",
	Short: "Render a reconciled final result to XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inPath := args[0]
		raw, err := os.ReadFile(inPath)
		if err != nil {
			return fmt.Errorf("read final result: %w", err)
		}
		var result tracking.FinalResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return fmt.Errorf("parse final result: %w", err)
		}

		out := exportOut
		if out == "" {
			out = strings.TrimSuffix(inPath, filepath.Ext(inPath)) + ".xlsx"
		}

		svc := export.NewService(logger)
		xlsxBytes, err := svc.ExportXLSX(&result)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, xlsxBytes, 0o644); err != nil {
			return fmt.Errorf("write workbook: %w", err)
		}
		fmt.Printf("Exported %d records -> %s\n", len(result.Responses), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output XLSX path (default alongside the input)")
}
