// Package input reads the ordered list of identifiers for a batch.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"summons-lookup/internal/record"

	"github.com/xuri/excelize/v2"
)

const (
	// identifiers in the tracking spreadsheet live in column B from row 5
	DefaultColumn   = "B"
	DefaultStartRow = 5
)

var headerNames = map[string]bool{
	"identifier":       true,
	"summons":          true,
	"summons_number":   true,
	"violation":        true,
	"violation_number": true,
	"ticket":           true,
	"ticket_number":    true,
}

var floatSuffix = regexp.MustCompile(`^(\d+)\.0+$`)

// clean trims a raw cell and reports whether it holds an identifier.
func clean(raw string) (string, bool) {
	v := strings.TrimSpace(strings.ReplaceAll(raw, "\u00a0", " "))
	if v == "" || strings.EqualFold(v, "nan") || strings.EqualFold(v, "none") {
		return "", false
	}
	// numeric cells exported as floats
	if m := floatSuffix.FindStringSubmatch(v); m != nil {
		v = m[1]
	}
	return v, true
}

// FromArgs reads identifiers from command line arguments, each argument may
// hold several comma separated identifiers.
func FromArgs(args []string) []record.Entry {
	var out []record.Entry
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			if id, ok := clean(part); ok {
				out = append(out, record.Entry{Identifier: id})
			}
		}
	}
	return out
}

// FromText reads one identifier per line, only the first column of CSV
// lines is used. Lines starting with '#' and a header line are skipped.
func FromText(r io.Reader) ([]record.Entry, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	var out []record.Entry
	first := true
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read identifiers: %w", err)
		}
		line, _ := reader.FieldPos(0)

		if len(fields) == 0 {
			continue
		}
		id, ok := clean(fields[0])
		if !ok {
			continue
		}
		if first {
			first = false
			if headerNames[record.NormalizeKey(id)] {
				continue
			}
		}
		out = append(out, record.Entry{Identifier: id, Row: line})
	}
	return out, nil
}

// FromFile is FromText over a file.
func FromFile(path string) ([]record.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return FromText(f)
}

type SheetOptions struct {
	// defaults to the first sheet
	Sheet string
	// defaults to DefaultColumn
	Column string
	// 1-based, defaults to DefaultStartRow
	StartRow int
}

// FromXLSX reads a column of a workbook from StartRow down, entries keep the
// spreadsheet row they came from.
func FromXLSX(path string, opts SheetOptions) ([]record.Entry, error) {
	if opts.Column == "" {
		opts.Column = DefaultColumn
	}
	if opts.StartRow <= 0 {
		opts.StartRow = DefaultStartRow
	}
	column, err := excelize.ColumnNameToNumber(strings.ToUpper(opts.Column))
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", opts.Column, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	var out []record.Entry
	for i := opts.StartRow - 1; i < len(rows); i++ {
		row := rows[i]
		if column-1 >= len(row) {
			continue
		}
		id, ok := clean(row[column-1])
		if !ok {
			continue
		}
		out = append(out, record.Entry{Identifier: id, Row: i + 1})
	}
	return out, nil
}
