// Package extract turns a lookup result page into a flat, ordered set of fields.
//
// Pages come in several shapes. Known containers (table#vioContent and
// table#details) are read first; when a page has neither, every table on
// it is scanned for label/value rows. The itemized charges table can be
// broken out into numbered charge fields on top of either pass.
package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"summons-lookup/internal/components/assert"
	"summons-lookup/internal/components/telemetry"
	"summons-lookup/internal/record"
	"summons-lookup/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("summons-lookup/internal/extract")

const (
	report_extractor_extract = "extractor.extract"
)

const (
	DefaultSentinel       = "No Record Available"
	DefaultMaxLabelLength = 100
)

// DefaultBlockList holds captions of navigation boxes that sit inside the
// details tables but are not case data.
var DefaultBlockList = []string{"Hearing Locations", "One Click", "How To Pay"}

const (
	selectorPrimary   = "table#vioContent"
	selectorSecondary = "table#details"
	selectorCharges   = "div#infraDetails table"
	selectorError     = "div#error"
)

type Pass string

const (
	PASS_NONE       Pass = ""
	PASS_STRUCTURAL Pass = "structural"
	PASS_GENERIC    Pass = "generic"
)

type AnomalyKind int

const (
	OVERSIZED_LABEL AnomalyKind = iota
	MALFORMED_ROW
)

func (k AnomalyKind) String() string {
	switch k {
	case OVERSIZED_LABEL:
		return "oversized label"
	case MALFORMED_ROW:
		return "malformed row"
	default:
		return fmt.Sprintf("anomaly(%d)", int(k))
	}
}

// Anomaly is a row that was skipped, it never fails an extraction.
type Anomaly struct {
	Kind  AnomalyKind
	Table string
	// 0-based index of the row in its table
	Row   int
	Label string
}

func (a Anomaly) String() string {
	label := a.Label
	if utf8.RuneCountInString(label) > 40 {
		label = string([]rune(label)[:40]) + "..."
	}
	return fmt.Sprintf("%s in %s row %d: %q", a.Kind, a.Table, a.Row, label)
}

type Extraction struct {
	Fields record.Fields
	// the page says the identifier does not exist
	NotFound bool
	// explanation shown by the page, if any
	Note      string
	Anomalies []Anomaly
	Pass      Pass
}

type Options struct {
	// defaults to DefaultSentinel
	Sentinel string
	// defaults to DefaultBlockList, an empty non-nil slice disables it
	BlockList []string
	// defaults to DefaultMaxLabelLength
	MaxLabelLength  int
	ItemizedCharges bool
}

type Extractor struct {
	opts Options
	tel  telemetry.API
}

func New(opts Options, tel telemetry.API) Extractor {
	assert.NotNil(tel)

	if opts.Sentinel == "" {
		opts.Sentinel = DefaultSentinel
	}
	if opts.BlockList == nil {
		opts.BlockList = DefaultBlockList
	}
	if opts.MaxLabelLength <= 0 {
		opts.MaxLabelLength = DefaultMaxLabelLength
	}
	return Extractor{
		opts: opts,
		tel:  telemetry.NewScopedAPI("extractor", tel),
	}
}

// Extract is deterministic: the same body always yields the same extraction.
func (e Extractor) Extract(ctx context.Context, body string) (Extraction, error) {
	_, span := tracer.Start(ctx, "Extract")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		e.tel.ReportBroken(report_extractor_extract, fmt.Errorf("parse: %w", err))
		return Extraction{}, fmt.Errorf("parse: %w", err)
	}

	out := Extraction{}

	pageText := htmlutil.SelectionText(doc.Selection)
	if strings.Contains(pageText, e.opts.Sentinel) {
		out.NotFound = true
		out.Note = e.opts.Sentinel
		span.SetAttributes(attribute.Bool("not_found", true))
		return out, nil
	}
	if errorText := htmlutil.SelectionText(doc.Find(selectorError)); errorText != "" {
		out.NotFound = true
		out.Note = errorText
		span.SetAttributes(attribute.Bool("not_found", true))
		return out, nil
	}

	containers := doc.Find(selectorPrimary).AddSelection(doc.Find(selectorSecondary))
	if containers.Length() > 0 {
		out.Pass = PASS_STRUCTURAL
		containers.Each(func(_ int, table *goquery.Selection) {
			e.readTable(&out, table, describeTable(table), "td", true)
		})
	} else {
		charges := doc.Find(selectorCharges)
		doc.Find("table").Each(func(i int, table *goquery.Selection) {
			if e.opts.ItemizedCharges && isAmong(table, charges) {
				return
			}
			before := out.Fields.Len()
			e.readTable(&out, table, fmt.Sprintf("table[%d]", i), "td, th", false)
			if out.Fields.Len() > before {
				out.Pass = PASS_GENERIC
			}
		})
	}

	if e.opts.ItemizedCharges {
		e.readCharges(&out, doc.Find(selectorCharges).First())
	}

	for _, a := range out.Anomalies {
		e.tel.ReportWarning(report_extractor_extract, a.String())
	}
	span.SetAttributes(
		attribute.String("pass", string(out.Pass)),
		attribute.Int("fields", out.Fields.Len()),
		attribute.Int("anomalies", len(out.Anomalies)),
	)
	return out, nil
}

func describeTable(table *goquery.Selection) string {
	id, ok := table.Attr("id")
	if !ok || id == "" {
		return "table"
	}
	return "table#" + id
}

func isAmong(table *goquery.Selection, among *goquery.Selection) bool {
	for _, n := range among.Nodes {
		if n == table.Nodes[0] {
			return true
		}
	}
	return false
}

// ownRows returns the rows of table, skipping rows of nested tables.
func ownRows(table *goquery.Selection) []*goquery.Selection {
	if table.Length() == 0 {
		return nil
	}
	tableNode := table.Nodes[0]

	var rows []*goquery.Selection
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if closestTable(row.Nodes[0]) == tableNode {
			rows = append(rows, row)
		}
	})
	return rows
}

func closestTable(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "table" {
			return p
		}
	}
	return nil
}

func (e Extractor) blocked(value string) bool {
	for _, b := range e.opts.BlockList {
		if b != "" && strings.Contains(value, b) {
			return true
		}
	}
	return false
}

func (e Extractor) readTable(out *Extraction, table *goquery.Selection, name, cellSelector string, useBlockList bool) {
	for i, row := range ownRows(table) {
		cells := row.ChildrenFiltered(cellSelector)
		if cells.Length() < 2 {
			continue
		}

		label := htmlutil.SelectionText(cells.Eq(0))
		value := htmlutil.SelectionText(cells.Eq(1))
		if label == "" && value == "" {
			continue
		}
		if label == "" || record.NormalizeKey(label) == "" {
			out.Anomalies = append(out.Anomalies, Anomaly{
				Kind:  MALFORMED_ROW,
				Table: name,
				Row:   i,
				Label: value,
			})
			continue
		}
		if value == "" {
			continue
		}
		if utf8.RuneCountInString(label) >= e.opts.MaxLabelLength {
			out.Anomalies = append(out.Anomalies, Anomaly{
				Kind:  OVERSIZED_LABEL,
				Table: name,
				Row:   i,
				Label: label,
			})
			continue
		}
		if useBlockList && e.blocked(value) {
			continue
		}

		out.Fields.Set(record.NormalizeKey(label), value)
	}
}

var chargeColumns = []string{"code", "section", "description", "face_amount"}

func (e Extractor) readCharges(out *Extraction, table *goquery.Selection) {
	rows := ownRows(table)
	if len(rows) <= 1 {
		return
	}

	var charges [][]string
	for i, row := range rows[1:] {
		cells := row.ChildrenFiltered("td")
		if cells.Length() == 0 {
			continue
		}
		if cells.Length() < 3 {
			out.Anomalies = append(out.Anomalies, Anomaly{
				Kind:  MALFORMED_ROW,
				Table: selectorCharges,
				Row:   i + 1,
				Label: htmlutil.SelectionText(cells),
			})
			continue
		}

		values := make([]string, 0, len(chargeColumns))
		for c := 0; c < len(chargeColumns) && c < cells.Length(); c++ {
			values = append(values, htmlutil.SelectionText(cells.Eq(c)))
		}
		charges = append(charges, values)
	}

	for n, values := range charges {
		prefix := "charge_"
		if len(charges) > 1 {
			prefix = fmt.Sprintf("charge_%d_", n+1)
		}
		for c, v := range values {
			out.Fields.Set(prefix+chargeColumns[c], v)
		}
	}
}
