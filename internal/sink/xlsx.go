package sink

import (
	"context"
	"fmt"
	"os"

	"summons-lookup/internal/record"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Results"

// XLSX writes the results as a workbook with one row per result, the header
// is the union of every record's keys.
type XLSX struct {
	Path string
	// defaults to "Results"
	Sheet string
}

func (s XLSX) Write(_ context.Context, results []record.Result) error {
	sheet := s.Sheet
	if sheet == "" {
		sheet = defaultSheet
	}
	rows, header := flatten(results)

	f := excelize.NewFile()
	defer f.Close()

	err := f.SetSheetName(f.GetSheetName(0), sheet)
	if err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	err = f.SetSheetRow(sheet, "A1", &headerRow)
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		values := make([]any, len(header))
		for c, h := range header {
			values[c] = row.Value(h)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		err = f.SetSheetRow(sheet, cell, &values)
		if err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if len(header) > 0 {
		err = f.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
		if err != nil {
			return fmt.Errorf("freeze header: %w", err)
		}
	}

	return writeAtomic(s.Path, func(out *os.File) error {
		_, err := f.WriteTo(out)
		return err
	})
}
