// Package export renders view records and matrices as display tables for
// CSV downloads and spreadsheet tabs.
package export

import (
	"fmt"
	"strings"
	"time"

	"opsconsole/internal/aggregate"
	"opsconsole/internal/core"
)

// Table is a header plus rows of display strings.
type Table struct {
	Header []string
	Rows   [][]string
}

// Values returns header and rows as one grid.
func (t Table) Values() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Header)
	return append(out, t.Rows...)
}

var recordHeader = []string{"Date", "Category", "Description", "Vendor", "Receipt", "Amount (INR)", "Approved", "Asset", "Source"}

// RecordsTable lists records in their current order.
func RecordsTable(recs []core.NormalizedRecord) Table {
	t := Table{Header: recordHeader, Rows: make([][]string, 0, len(recs))}
	for _, r := range recs {
		t.Rows = append(t.Rows, []string{
			displayDate(r),
			string(r.Category),
			r.Description,
			r.Vendor,
			r.Receipt,
			core.FormatCurrencyINR(r.AmountNum),
			yesNo(r.Approval == core.Approved),
			yesNo(r.Asset),
			r.Origin,
		})
	}
	return t
}

// displayDate falls back to the raw value so unparseable dates stay
// visible to whoever fixes the source data.
func displayDate(r core.NormalizedRecord) string {
	if !r.DateParsed.IsEmpty() {
		return r.DateParsed.Display()
	}
	if r.DateRaw == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(r.DateRaw))
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// MatrixTable renders a year matrix with a trailing totals row.
func MatrixTable(m aggregate.Matrix) Table {
	header := make([]string, 0, 14)
	header = append(header, "Category")
	for i := time.January; i <= time.December; i++ {
		header = append(header, i.String()[:3])
	}
	header = append(header, "Total")

	t := Table{Header: header, Rows: make([][]string, 0, len(m.Rows)+1)}
	for _, r := range m.Rows {
		row := make([]string, 0, 14)
		row = append(row, string(r.Category))
		for _, v := range r.Months {
			row = append(row, core.FormatCurrencyINR(v))
		}
		t.Rows = append(t.Rows, append(row, core.FormatCurrencyINR(r.Grand)))
	}

	totals := make([]string, 0, 14)
	totals = append(totals, "Total")
	for _, v := range m.MonthTotals() {
		totals = append(totals, core.FormatCurrencyINR(v))
	}
	t.Rows = append(t.Rows, append(totals, core.FormatCurrencyINR(m.YearTotal)))
	return t
}
