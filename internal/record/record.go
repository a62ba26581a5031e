// Package record holds the data that flows between the lookup stages: the
// request sent to a transport, the raw page it returns and the classified
// result written to the sinks.
package record

import (
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	STATUS_SUCCESS   Status = "SUCCESS"
	STATUS_NOT_FOUND Status = "NOT_FOUND"
	STATUS_NO_DATA   Status = "NO_DATA"
	STATUS_ERROR     Status = "ERROR"
	STATUS_UNKNOWN   Status = "UNKNOWN"
)

// Statuses lists every status in report order.
var Statuses = []Status{
	STATUS_SUCCESS,
	STATUS_NOT_FOUND,
	STATUS_NO_DATA,
	STATUS_UNKNOWN,
	STATUS_ERROR,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Entry is an identifier read from the batch input.
type Entry struct {
	Identifier string
	// spreadsheet row the identifier was read from, 0 when unknown
	Row int
}

// Request is a single query against the lookup service.
type Request struct {
	Identifier string
	// 1-based, incremented on every throttled retry
	Attempt int
	// 0-based index of the identifier in the batch
	Position int
}

// RawResponse is the page returned by a transport, it is never persisted.
type RawResponse struct {
	Body       string
	URL        string
	StatusCode int
}

// TimestampLayout is the layout of Result.Timestamp in flat records.
const TimestampLayout = "2006-01-02 15:04:05"

// Result is the classified outcome of looking up one identifier.
// It is not modified after classification.
type Result struct {
	Identifier string
	Position   int
	// spreadsheet row the identifier was read from, 0 when unknown
	Row       int
	Timestamp time.Time
	Status    Status
	Fields    Fields
	Error     string
	Note      string
	Attempts  int
}

const (
	KEY_IDENTIFIER = "identifier"
	KEY_ROW_NUMBER = "row_number"
	KEY_TIMESTAMP  = "timestamp"
	KEY_STATUS     = "status"
	KEY_ERROR      = "error"
	KEY_NOTE       = "note"

	// prefix given to extracted keys that collide with bookkeeping keys
	collisionPrefix = "field_"
)

var bookkeepingKeys = map[string]bool{
	KEY_IDENTIFIER: true,
	KEY_ROW_NUMBER: true,
	KEY_TIMESTAMP:  true,
	KEY_STATUS:     true,
	KEY_ERROR:      true,
	KEY_NOTE:       true,
}

// Flatten returns the record written to sinks: bookkeeping keys first, then
// every extracted key in extraction order.
func (r Result) Flatten() Fields {
	out := Fields{}
	out.Set(KEY_IDENTIFIER, r.Identifier)
	if r.Row > 0 {
		out.Set(KEY_ROW_NUMBER, strconv.Itoa(r.Row))
	}
	out.Set(KEY_TIMESTAMP, r.Timestamp.Format(TimestampLayout))
	out.Set(KEY_STATUS, string(r.Status))
	if r.Error != "" {
		out.Set(KEY_ERROR, r.Error)
	}
	if r.Note != "" {
		out.Set(KEY_NOTE, r.Note)
	}

	r.Fields.Each(func(key, value string) {
		if bookkeepingKeys[key] {
			key = collisionPrefix + key
		}
		out.Set(key, value)
	})
	return out
}

// Unflatten is the inverse of Flatten, the position is not part of a flat
// record so it must be supplied.
func Unflatten(flat Fields, position int, loc *time.Location) Result {
	if loc == nil {
		loc = time.Local
	}

	r := Result{
		Identifier: flat.Value(KEY_IDENTIFIER),
		Position:   position,
		Status:     Status(flat.Value(KEY_STATUS)),
		Error:      flat.Value(KEY_ERROR),
		Note:       flat.Value(KEY_NOTE),
	}
	if row, err := strconv.Atoi(flat.Value(KEY_ROW_NUMBER)); err == nil {
		r.Row = row
	}
	if ts, err := time.ParseInLocation(TimestampLayout, flat.Value(KEY_TIMESTAMP), loc); err == nil {
		r.Timestamp = ts
	}

	flat.Each(func(key, value string) {
		if bookkeepingKeys[key] {
			return
		}
		if stripped, ok := strings.CutPrefix(key, collisionPrefix); ok && bookkeepingKeys[stripped] {
			key = stripped
		}
		r.Fields.Set(key, value)
	})
	return r
}
