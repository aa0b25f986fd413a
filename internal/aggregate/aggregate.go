// Package aggregate buckets records by year, month and category and builds
// the fixed category x month report grid.
package aggregate

import (
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"opsconsole/internal/classify"
	"opsconsole/internal/core"
)

// MonthBucket accumulates one month of one year.
type MonthBucket struct {
	Total      decimal.Decimal
	Count      int
	Categories map[core.Category]decimal.Decimal
}

// YearBucket accumulates one year. Month keys are "0".."11" or
// core.UnknownBucket.
type YearBucket struct {
	Total  decimal.Decimal
	Count  int
	Months map[string]*MonthBucket
}

// Buckets is years -> months -> categories.
type Buckets struct {
	Years map[string]*YearBucket
}

// Row is one category line of a matrix. Months[0] is January.
type Row struct {
	Category core.Category `json:"category"`
	Months   [12]float64   `json:"months"`
	Grand    float64       `json:"grand"`
}

// Matrix is the category x month grid for one year.
type Matrix struct {
	Year      string  `json:"year"`
	Rows      []Row   `json:"rows"`
	YearTotal float64 `json:"yearTotal"`
	YearCount int     `json:"yearCount"`
}

// BuildBuckets groups records by the year and month of DateParsed and by
// their classified category. Undated records land in the Unknown bucket.
func BuildBuckets(records []core.NormalizedRecord, categories []core.Category) *Buckets {
	b := &Buckets{Years: make(map[string]*YearBucket)}
	for _, rec := range records {
		yearKey, monthKey := bucketKeys(rec.DateParsed)
		cat := classify.CategoryOf(rec.CategoryNormalized, categories)
		amount := decimal.NewFromFloat(rec.AmountNum)

		yb, ok := b.Years[yearKey]
		if !ok {
			yb = &YearBucket{Months: make(map[string]*MonthBucket)}
			b.Years[yearKey] = yb
		}
		mb, ok := yb.Months[monthKey]
		if !ok {
			mb = &MonthBucket{Categories: make(map[core.Category]decimal.Decimal)}
			yb.Months[monthKey] = mb
		}

		mb.Categories[cat] = mb.Categories[cat].Add(amount)
		mb.Total = mb.Total.Add(amount)
		mb.Count++
		yb.Total = yb.Total.Add(amount)
		yb.Count++
	}
	return b
}

func bucketKeys(d core.Date) (string, string) {
	if d.IsEmpty() {
		return core.UnknownBucket, core.UnknownBucket
	}
	return d.YearKey(), strconv.Itoa(int(d.Month()) - 1)
}

// SortedYears returns year keys newest first, Unknown last.
func (b *Buckets) SortedYears() []string {
	keys := make([]string, 0, len(b.Years))
	for k := range b.Years {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y string) int {
		return compareKeys(x, y, true)
	})
	return keys
}

// ResolveYear picks requested when set, else the newest year with data,
// else the current year.
func (b *Buckets) ResolveYear(requested string, now time.Time) string {
	if requested != "" {
		return requested
	}
	if years := b.SortedYears(); len(years) > 0 {
		return years[0]
	}
	return strconv.Itoa(now.UTC().Year())
}

// SortedMonths returns the month keys of year in calendar order, Unknown
// last. A year with no data has no months.
func (b *Buckets) SortedMonths(year string) []string {
	yb, ok := b.Years[year]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(yb.Months))
	for k := range yb.Months {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y string) int {
		return compareKeys(x, y, false)
	})
	return keys
}

// compareKeys orders numeric keys ascending or descending and always puts
// non-numeric keys such as Unknown after them.
func compareKeys(x, y string, descending bool) int {
	xn, xErr := strconv.Atoi(x)
	yn, yErr := strconv.Atoi(y)
	switch {
	case xErr != nil && yErr != nil:
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case xErr != nil:
		return 1
	case yErr != nil:
		return -1
	}
	if descending {
		xn, yn = yn, xn
	}
	switch {
	case xn < yn:
		return -1
	case xn > yn:
		return 1
	}
	return 0
}

// BuildYearMonthMatrix returns one row per category, in the given order,
// for year. Others is always present. Rows with no data are zero valued.
func BuildYearMonthMatrix(records []core.NormalizedRecord, categories []core.Category, year string) Matrix {
	return BuildBuckets(records, categories).Matrix(year, categories)
}

// Matrix renders the grid for year from already built buckets. YearCount
// counts the records placed in the twelve month columns, so undated records
// in the Unknown bucket count as zero just like their amounts.
func (b *Buckets) Matrix(year string, categories []core.Category) Matrix {
	m := Matrix{Year: year}
	yb := b.Years[year]
	if yb != nil {
		for i := 0; i < 12; i++ {
			if mb, ok := yb.Months[strconv.Itoa(i)]; ok {
				m.YearCount += mb.Count
			}
		}
	}

	yearTotal := decimal.Zero
	for _, cat := range rowCategories(categories) {
		row := Row{Category: cat}
		grand := decimal.Zero
		if yb != nil {
			for i := 0; i < 12; i++ {
				mb, ok := yb.Months[strconv.Itoa(i)]
				if !ok {
					continue
				}
				v := mb.Categories[cat]
				row.Months[i] = v.InexactFloat64()
				grand = grand.Add(v)
			}
		}
		row.Grand = grand.InexactFloat64()
		yearTotal = yearTotal.Add(grand)
		m.Rows = append(m.Rows, row)
	}
	m.YearTotal = yearTotal.InexactFloat64()
	return m
}

func rowCategories(categories []core.Category) []core.Category {
	out := make([]core.Category, 0, len(categories)+1)
	for _, c := range categories {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	if !slices.Contains(out, core.CategoryOthers) {
		out = append(out, core.CategoryOthers)
	}
	return out
}

// MonthTotals sums every row per month.
func (m Matrix) MonthTotals() [12]float64 {
	var totals [12]decimal.Decimal
	for _, r := range m.Rows {
		for i, v := range r.Months {
			totals[i] = totals[i].Add(decimal.NewFromFloat(v))
		}
	}
	var out [12]float64
	for i, t := range totals {
		out[i] = t.InexactFloat64()
	}
	return out
}
