package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsconsole/internal/core"
)

func record(category string, amount float64, d core.Date) core.NormalizedRecord {
	return core.NormalizedRecord{CategoryNormalized: category, AmountNum: amount, DateParsed: d}
}

func sample() []core.NormalizedRecord {
	return []core.NormalizedRecord{
		record("Food", 100, core.NewDate(2024, time.January, 3)),
		record("food court", 50.5, core.NewDate(2024, time.March, 9)),
		record("Local Travel", 20, core.NewDate(2024, time.January, 20)),
		record("Misc", 7, core.NewDate(2024, time.November, 1)),
		record("Food", 999, core.Date{}),
		record("Stationery", 30, core.NewDate(2023, time.December, 31)),
	}
}

func TestBuildYearMonthMatrixEmpty(t *testing.T) {
	m := BuildYearMonthMatrix(nil, core.CanonicalCategories(), "2024")
	require.Len(t, m.Rows, len(core.CanonicalCategories()))
	assert.Equal(t, core.CategoryOthers, m.Rows[len(m.Rows)-1].Category)
	for _, r := range m.Rows {
		assert.Zero(t, r.Grand)
		assert.Equal(t, [12]float64{}, r.Months)
	}
	assert.Zero(t, m.YearTotal)
	assert.Zero(t, m.YearCount)
}

func TestBuildYearMonthMatrixAddsOthersRow(t *testing.T) {
	m := BuildYearMonthMatrix(nil, []core.Category{core.CategoryFood}, "2024")
	require.Len(t, m.Rows, 2)
	assert.Equal(t, core.CategoryFood, m.Rows[0].Category)
	assert.Equal(t, core.CategoryOthers, m.Rows[1].Category)
}

func TestBuildYearMonthMatrixTotals(t *testing.T) {
	m := BuildYearMonthMatrix(sample(), core.CanonicalCategories(), "2024")

	byCat := map[core.Category]Row{}
	grandSum := 0.0
	for _, r := range m.Rows {
		byCat[r.Category] = r
		grandSum += r.Grand
	}

	food := byCat[core.CategoryFood]
	assert.Equal(t, 100.0, food.Months[0])
	assert.Equal(t, 50.5, food.Months[2])
	assert.Equal(t, 150.5, food.Grand)
	assert.Equal(t, 20.0, byCat[core.CategoryTravel].Months[0])
	assert.Equal(t, 7.0, byCat[core.CategoryOthers].Months[10])
	assert.Zero(t, byCat[core.CategoryStationery].Grand)

	assert.Equal(t, 177.5, m.YearTotal)
	assert.InDelta(t, grandSum, m.YearTotal, 1e-9)
	assert.Equal(t, 4, m.YearCount)

	totals := m.MonthTotals()
	assert.Equal(t, 120.0, totals[0])
}

func TestBucketOrdering(t *testing.T) {
	recs := append(sample(), record("Food", 1, core.NewDate(2024, time.October, 1)))
	b := BuildBuckets(recs, core.CanonicalCategories())

	assert.Equal(t, []string{"2024", "2023", core.UnknownBucket}, b.SortedYears())
	assert.Equal(t, []string{"0", "2", "9", "10"}, b.SortedMonths("2024"))
	assert.Equal(t, []string{core.UnknownBucket}, b.SortedMonths(core.UnknownBucket))
	assert.Nil(t, b.SortedMonths("1999"))

	unknown := b.Years[core.UnknownBucket]
	require.NotNil(t, unknown)
	assert.Equal(t, 1, unknown.Count)
	assert.True(t, unknown.Total.Equal(unknown.Months[core.UnknownBucket].Total))
}

func TestMatrixForUnknownYearIsZeroGrid(t *testing.T) {
	m := BuildYearMonthMatrix(sample(), core.CanonicalCategories(), core.UnknownBucket)
	assert.Zero(t, m.YearTotal)
	assert.Zero(t, m.YearCount, "undated records have no month column to land in")

	b := BuildBuckets(sample(), core.CanonicalCategories())
	assert.Equal(t, 1, b.Years[core.UnknownBucket].Count, "the bucket itself still counts them")
}

func TestResolveYear(t *testing.T) {
	now := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	b := BuildBuckets(sample(), core.CanonicalCategories())

	assert.Equal(t, "2023", b.ResolveYear("2023", now))
	assert.Equal(t, "2024", b.ResolveYear("", now))
	assert.Equal(t, "2026", BuildBuckets(nil, nil).ResolveYear("", now))
}
