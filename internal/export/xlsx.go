// Package export renders a batch result as an XLSX workbook.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/shpitdev/review-insight-pipeline/internal/batch"
)

const (
	ResultsSheet = "Results"
	SummarySheet = "Summary"
)

// XLSX returns the workbook bytes: a Results sheet mirroring the CSV artifact
// and a Summary sheet with the aggregate counts.
func XLSX(res *batch.Result) ([]byte, error) {
	f, err := build(res)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteXLSX writes the workbook to w.
func WriteXLSX(w io.Writer, res *batch.Result) error {
	f, err := build(res)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func build(res *batch.Result) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		f.Close()
		return nil, err
	}

	for r, rec := range res.Records() {
		for c, v := range rec {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue(ResultsSheet, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("set %s: %w", cell, err)
			}
		}
	}
	if n := len(res.Header); n > 0 {
		last, _ := excelize.ColumnNumberToName(n)
		_ = f.SetColWidth(ResultsSheet, "A", last, 18)
	}
	_ = f.SetPanes(ResultsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	total := res.Aggregate.Total() + res.Skipped
	rows := [][]any{{"Bucket", "Count", "Share"}}
	for _, b := range batch.Buckets {
		rows = append(rows, []any{b, res.Aggregate.Count(b), share(res.Aggregate.Count(b), total)})
	}
	rows = append(rows,
		[]any{"SKIPPED", res.Skipped, share(res.Skipped, total)},
		[]any{"TOTAL", total, share(total, total)},
	)
	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+1)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("summary row %d: %w", r+1, err)
		}
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 14)

	f.SetActiveSheet(0)
	return f, nil
}

func share(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
