package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/structmine/docbatch/internal/reconcile"
	"github.com/structmine/docbatch/internal/tracking"
)

// Service renders reconciled extraction records into an XLSX workbook.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ExportXLSX returns an XLSX workbook (as bytes) for a final result.
// Each response contributes one row; columns are the sorted union of the
// extracted records' top-level keys, with custom_id first. Responses whose
// output text is not a JSON object land in a single "raw_text" column.
func (s *Service) ExportXLSX(result *tracking.FinalResult) ([]byte, error) {
	start := time.Now()

	rows, headers := flatten(result.Responses)

	f := excelize.NewFile()
	const sheet = "Records"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	// Drop the default sheet excelize creates.
	if idx, _ := f.GetSheetIndex("Sheet1"); idx != -1 && sheet != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for rowIdx, row := range rows {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, rowIdx+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
		for colIdx, h := range headers {
			if v, ok := row[h]; ok {
				write(colIdx+1, v)
			}
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 24) // custom_id
	if len(headers) > 1 {
		last, _ := excelize.ColumnNumberToName(len(headers))
		_ = f.SetColWidth(sheet, "B", last, 32)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"columns", len(headers),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// flatten turns responses into cell maps plus the ordered header union.
func flatten(responses []tracking.ResponseRecord) ([]map[string]any, []string) {
	rows := make([]map[string]any, 0, len(responses))
	keySet := map[string]struct{}{}

	for _, rec := range responses {
		row := map[string]any{"custom_id": rec.CustomID}
		if text, ok := reconcile.Text(rec.Response); ok {
			var obj map[string]any
			if err := json.Unmarshal([]byte(text), &obj); err == nil {
				for k, v := range obj {
					if k == "custom_id" {
						// request identity wins over whatever the model emitted
						continue
					}
					row[k] = cellValue(v)
					keySet[k] = struct{}{}
				}
			} else {
				row["raw_text"] = text
				keySet["raw_text"] = struct{}{}
			}
		}
		rows = append(rows, row)
	}

	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return rows, append([]string{"custom_id"}, keys...)
}

// cellValue renders nested structures as compact JSON so they survive a
// spreadsheet cell.
func cellValue(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return v
	}
}
