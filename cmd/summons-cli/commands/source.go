package commands

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"summons-lookup/internal/input"
	"summons-lookup/internal/record"
)

const (
	SOURCE_ARGS = "args"
	SOURCE_FILE = "file"
	SOURCE_XLSX = "xlsx"
)

// source is where the identifiers of a run come from, it is stored with
// the run so that a resumed run can re-read the same input.
type source struct {
	Kind  string
	Value string
	Sheet input.SheetOptions
}

// storedSource is the form a source is kept in with its run.
type storedSource struct {
	Kind     string `json:"kind"`
	Value    string `json:"value"`
	Sheet    string `json:"sheet,omitempty"`
	Column   string `json:"column,omitempty"`
	StartRow int    `json:"start_row,omitempty"`
}

func (s source) String() string {
	stored := storedSource{Kind: s.Kind, Value: s.Value}
	if s.Kind == SOURCE_XLSX {
		stored.Sheet = s.Sheet.Sheet
		stored.Column = s.Sheet.Column
		stored.StartRow = s.Sheet.StartRow
	}
	buff, err := json.Marshal(stored)
	if err != nil {
		panic(err)
	}
	return string(buff)
}

func parseSource(text string) (source, error) {
	var stored storedSource
	err := json.Unmarshal([]byte(text), &stored)
	if err != nil {
		return source{}, fmt.Errorf("malformed input source %q: %w", text, err)
	}

	switch stored.Kind {
	case SOURCE_ARGS, SOURCE_FILE:
		return source{Kind: stored.Kind, Value: stored.Value}, nil
	case SOURCE_XLSX:
		return source{
			Kind:  stored.Kind,
			Value: stored.Value,
			Sheet: input.SheetOptions{
				Sheet:    stored.Sheet,
				Column:   stored.Column,
				StartRow: stored.StartRow,
			},
		}, nil
	default:
		return source{}, fmt.Errorf("unknown input source %q", stored.Kind)
	}
}

// resolveSource picks the input given on the command line, at most one of
// a file, a workbook or positional identifiers may be given.
func resolveSource(args []string, file, xlsx string, sheet input.SheetOptions) (source, bool, error) {
	given := 0
	out := source{}
	if len(args) > 0 {
		given++
		out = source{Kind: SOURCE_ARGS, Value: strings.Join(args, ",")}
	}
	if file != "" {
		given++
		out = source{Kind: SOURCE_FILE, Value: file}
	}
	if xlsx != "" {
		given++
		out = source{Kind: SOURCE_XLSX, Value: xlsx, Sheet: sheet}
	}
	if given > 1 {
		return source{}, false, fmt.Errorf("give identifiers as arguments, --file or --xlsx, not several")
	}
	if given == 0 {
		return source{}, false, nil
	}

	if out.Kind != SOURCE_ARGS {
		abs, err := filepath.Abs(out.Value)
		if err != nil {
			return source{}, false, err
		}
		out.Value = abs
	}
	return out, true, nil
}

func (s source) Entries() ([]record.Entry, error) {
	switch s.Kind {
	case SOURCE_ARGS:
		return input.FromArgs(strings.Split(s.Value, ",")), nil
	case SOURCE_FILE:
		return input.FromFile(s.Value)
	case SOURCE_XLSX:
		return input.FromXLSX(s.Value, s.Sheet)
	default:
		return nil, fmt.Errorf("unknown input source %q", s.Kind)
	}
}
