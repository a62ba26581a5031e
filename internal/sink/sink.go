// Package sink writes classified results out, as files at the end of a run
// and to a sqlite store as each result comes in.
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"summons-lookup/internal/record"
)

// Sink receives the ordered results of a run.
type Sink interface {
	Write(ctx context.Context, results []record.Result) error
}

// OutputPath builds <dir>/<prefix>_<YYYYMMDD_HHMMSS>.<ext>.
func OutputPath(dir, prefix, ext string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", prefix, now.Format("20060102_150405"), ext))
}

// writeAtomic writes through a temp file in the same directory so readers
// never see a partial file.
func writeAtomic(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	err = write(tmp)
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// flatten returns the flat records and the union of their keys in
// first-seen order.
func flatten(results []record.Result) ([]record.Fields, []string) {
	rows := make([]record.Fields, len(results))
	seen := map[string]bool{}
	var header []string
	for i, r := range results {
		rows[i] = r.Flatten()
		for _, k := range rows[i].Keys() {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	return rows, header
}
