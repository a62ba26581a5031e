package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"summons-lookup/internal/record"
)

// JSON writes the results as an indented array of flat records.
type JSON struct {
	Path string
}

func (s JSON) Write(_ context.Context, results []record.Result) error {
	rows, _ := flatten(results)
	if rows == nil {
		rows = []record.Fields{}
	}

	return writeAtomic(s.Path, func(f *os.File) error {
		encoder := json.NewEncoder(f)
		encoder.SetIndent("", "  ")
		encoder.SetEscapeHTML(false)
		err := encoder.Encode(rows)
		if err != nil {
			return fmt.Errorf("encode results: %w", err)
		}
		return nil
	})
}

// ReadJSON reads a file written by the JSON sink back into results,
// positions follow the order of the file.
func ReadJSON(path string, loc *time.Location) ([]record.Result, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rows []record.Fields
	err = json.Unmarshal(contents, &rows)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	out := make([]record.Result, len(rows))
	for i, row := range rows {
		out[i] = record.Unflatten(row, i, loc)
	}
	return out, nil
}
