package core

import (
	"encoding/json"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceNumber(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{nil, 0},
		{"", 0},
		{"abc", 0},
		{"₹1,200", 1200},
		{"1200.00", 1200},
		{"Rs 500", 500},
		{"-15.5", -15.5},
		{"12.5.7", 12.5},
		{42, 42},
		{int64(7), 7},
		{3.75, 3.75},
		{json.Number("3.25"), 3.25},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{true, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CoerceNumber(tc.in), "CoerceNumber(%#v)", tc.in)
	}
}

func TestCoerceNumberIdempotent(t *testing.T) {
	inputs := []any{"₹1,20,000", "1200.50", "-3", "abc", nil, 17, 0.1, "1e5", "₹ 99.99 only"}
	for _, in := range inputs {
		first := CoerceNumber(in)
		assert.Equal(t, first, CoerceNumber(strconv.FormatFloat(first, 'f', -1, 64)), "not idempotent for %#v", in)
	}
}

func TestParseDateFlexible(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want time.Time
	}{
		{"day first slash", "15/03/2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"ambiguous numeric reads day first", "03/04/2024", time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC)},
		{"day first dash", "5-1-2023", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"iso", "2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"rfc3339", "2024-02-10T10:30:00Z", time.Date(2024, 2, 10, 10, 30, 0, 0, time.UTC)},
		{"browser string", "Fri Mar 15 2024 10:00:00 GMT+0530 (India Standard Time)", time.Date(2024, 3, 15, 4, 30, 0, 0, time.UTC)},
		{"month year", "March 2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"short month year", "Sept 2023", time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)},
		{"epoch seconds", "1700000000", time.Unix(1700000000, 0).UTC()},
		{"epoch millis", "1700000000000", time.UnixMilli(1700000000000).UTC()},
		{"epoch seconds number", float64(1700000000), time.Unix(1700000000, 0).UTC()},
		{"zero is epoch", 0, time.Unix(0, 0).UTC()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseDateFlexible(tc.in)
			require.False(t, got.IsEmpty(), "ParseDateFlexible(%#v) returned empty", tc.in)
			assert.True(t, got.Equal(tc.want), "ParseDateFlexible(%#v) = %v, want %v", tc.in, got.Time, tc.want)
		})
	}
}

func TestParseDateFlexibleUnparseable(t *testing.T) {
	for _, in := range []any{nil, "", "   ", "not a date", "31/02/2024", "13/13/2024", "12/31/2024", false, "foo 2024"} {
		got := ParseDateFlexible(in)
		assert.True(t, got.IsEmpty(), "ParseDateFlexible(%#v) = %v, want empty", in, got.Time)
	}
}

func TestParseDateFlexibleEpochYearRange(t *testing.T) {
	for _, in := range []string{"1700000000", "1700000000000"} {
		y := ParseDateFlexible(in).Year()
		assert.True(t, y >= 2000 && y <= 2100, "%s parsed to implausible year %d", in, y)
	}
}

func TestFormatCurrencyINR(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "₹0"},
		{100, "₹100"},
		{1200, "₹1,200"},
		{120000, "₹1,20,000"},
		{12345678, "₹1,23,45,678"},
		{999.5, "₹1,000"},
		{1200.4, "₹1,200"},
		{-1200, "-₹1,200"},
		{-0.4, "₹0"},
		{math.NaN(), "₹0"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatCurrencyINR(tc.in), "FormatCurrencyINR(%v)", tc.in)
	}
}

func TestDateKeys(t *testing.T) {
	d := NewDate(2024, time.March, 15)
	assert.Equal(t, "2024", d.YearKey())
	assert.Equal(t, "2024-03-15", d.ISO())
	assert.Equal(t, "15 Mar 2024", d.Display())

	var empty Date
	assert.Equal(t, UnknownBucket, empty.YearKey())
	assert.Empty(t, empty.ISO())
}
