// Package report aggregates the results of a run for display.
package report

import (
	"fmt"
	"io"
	"strings"

	"summons-lookup/internal/record"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// balances that mean nothing is owed
var settledBalances = map[string]bool{
	"":      true,
	"0":     true,
	"0.00":  true,
	"$0":    true,
	"$0.00": true,
}

type Failure struct {
	Identifier string
	Row        int
	Error      string
}

// Active is a found case that still has money owed.
type Active struct {
	Identifier  string
	Row         int
	BalanceDue  string
	HearingDate string
	Status      string
}

type Summary struct {
	Total    int
	Counts   map[record.Status]int
	Failures []Failure
	Active   []Active
}

func firstOf(fields record.Fields, keys ...string) string {
	for _, k := range keys {
		if v, ok := fields.Get(k); ok && v != "" {
			return v
		}
	}
	return ""
}

func Summarize(results []record.Result) Summary {
	s := Summary{
		Total:  len(results),
		Counts: map[record.Status]int{},
	}
	for _, status := range record.Statuses {
		s.Counts[status] = 0
	}

	for _, r := range results {
		s.Counts[r.Status]++

		switch r.Status {
		case record.STATUS_ERROR:
			s.Failures = append(s.Failures, Failure{
				Identifier: r.Identifier,
				Row:        r.Row,
				Error:      r.Error,
			})
		case record.STATUS_SUCCESS:
			balance := strings.TrimSpace(r.Fields.Value("balance_due"))
			if settledBalances[strings.ReplaceAll(balance, ",", "")] {
				continue
			}
			s.Active = append(s.Active, Active{
				Identifier:  r.Identifier,
				Row:         r.Row,
				BalanceDue:  balance,
				HearingDate: firstOf(r.Fields, "hearing_date", "hearing_date_time", "scheduled_hearing_date"),
				Status:      firstOf(r.Fields, "hearing_status", "hearing_result", "status"),
			})
		}
	}
	return s
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func rowLabel(row int) string {
	if row <= 0 {
		return "-"
	}
	return fmt.Sprint(row)
}

// Render writes the summary as tables.
func Render(w io.Writer, s Summary) {
	counts := newTable(w)
	counts.SetTitle("Lookup summary")
	counts.AppendHeader(table.Row{"Status", "Count"})
	for _, status := range record.Statuses {
		counts.AppendRow(table.Row{string(status), s.Counts[status]})
	}
	counts.AppendFooter(table.Row{"Total", s.Total})
	counts.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	counts.Render()

	if len(s.Failures) > 0 {
		failures := newTable(w)
		failures.SetTitle("Failed lookups")
		failures.AppendHeader(table.Row{"Identifier", "Row", "Error"})
		for _, f := range s.Failures {
			failures.AppendRow(table.Row{f.Identifier, rowLabel(f.Row), f.Error})
		}
		failures.Render()
	}

	if len(s.Active) > 0 {
		active := newTable(w)
		active.SetTitle("Active summonses")
		active.AppendHeader(table.Row{"Identifier", "Row", "Balance Due", "Hearing Date", "Status"})
		for _, a := range s.Active {
			active.AppendRow(table.Row{a.Identifier, rowLabel(a.Row), a.BalanceDue, a.HearingDate, a.Status})
		}
		active.Render()
	}
}

// RenderResult writes every field of a single result as a two column table.
func RenderResult(w io.Writer, r record.Result) {
	t := newTable(w)
	t.SetTitle(r.Identifier)
	t.AppendHeader(table.Row{"Field", "Value"})
	r.Flatten().Each(func(key, value string) {
		t.AppendRow(table.Row{key, value})
	})
	t.Render()
}
