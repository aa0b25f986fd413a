package core

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	leadingFloat     = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)`)
	epochPattern     = regexp.MustCompile(`^\d{10,13}$`)
	dayFirstPattern  = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})$`)
	monthYearPattern = regexp.MustCompile(`^([A-Za-z]{3,9})\.?[\s,/-]*(\d{4})$`)
)

// Layouts accepted before the day-first and month-year fallbacks.
// Month-first numeric dates are deliberately absent.
var nativeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"Mon Jan 02 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
}

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// Largest magnitude, in milliseconds, a browser Date accepts.
const maxEpochMillis = 8.64e15

// CoerceNumber converts an arbitrary value to a finite float64.
// nil and "" yield 0. Numbers are returned as-is. Anything else is
// stringified, stripped of every rune that is not a digit, '.' or '-',
// and the leading float literal is parsed. Failures yield 0.
//
// Examples:
//
//	"₹1,200"  -> 1200
//	"1200.00" -> 1200
//	"abc"     -> 0
func CoerceNumber(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case json.Number:
		return coerceString(n.String())
	case string:
		return coerceString(n)
	default:
		return coerceString(fmt.Sprint(v))
	}
}

func coerceString(s string) float64 {
	if s == "" {
		return 0
	}
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	lit := leadingFloat.FindString(cleaned)
	if lit == "" {
		return 0
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ParseDateFlexible makes a best-effort attempt at turning v into a date.
// An empty Date is returned for anything it cannot interpret; callers must
// treat that as a normal outcome.
//
// Ambiguous numeric dates are always read day first: "03/04/2024" is
// 3 April 2024, never 4 March. Month-first input such as "12/31/2024" is
// rejected rather than guessed. All results are UTC.
func ParseDateFlexible(v any) Date {
	switch t := v.(type) {
	case nil, bool:
		return Date{}
	case Date:
		return t
	case time.Time:
		return Date{Time: t}
	case *time.Time:
		if t == nil {
			return Date{}
		}
		return Date{Time: *t}
	case float64:
		return dateFromNumber(t)
	case float32:
		return dateFromNumber(float64(t))
	case int:
		return dateFromNumber(float64(t))
	case int64:
		return dateFromNumber(float64(t))
	case int32:
		return dateFromNumber(float64(t))
	case json.Number:
		return parseDateString(t.String())
	case string:
		return parseDateString(t)
	default:
		return parseDateString(fmt.Sprint(v))
	}
}

func dateFromNumber(f float64) Date {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxEpochMillis {
		return Date{}
	}
	if f >= 0 && f == math.Trunc(f) {
		if epochPattern.MatchString(strconv.FormatFloat(f, 'f', -1, 64)) {
			return fromEpoch(int64(f))
		}
	}
	return Date{Time: time.UnixMilli(int64(f)).UTC()}
}

// fromEpoch reads n as seconds below 1e12 and as milliseconds otherwise.
func fromEpoch(n int64) Date {
	if n < 1e12 {
		return Date{Time: time.Unix(n, 0).UTC()}
	}
	return Date{Time: time.UnixMilli(n).UTC()}
}

func parseDateString(s string) Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}
	}

	if epochPattern.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return fromEpoch(n)
		}
	}

	native := s
	if i := strings.Index(native, " ("); i > 0 && strings.HasSuffix(native, ")") {
		native = native[:i]
	}
	for _, layout := range nativeLayouts {
		if t, err := time.Parse(layout, native); err == nil {
			return Date{Time: t.UTC()}
		}
	}

	if m := dayFirstPattern.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if d, ok := calendarDate(year, month, day); ok {
			return d
		}
	}

	if m := monthYearPattern.FindStringSubmatch(s); m != nil {
		name := strings.ToLower(m[1])
		year, _ := strconv.Atoi(m[2])
		for i, full := range monthNames {
			if strings.HasPrefix(full, name) {
				return NewDate(year, time.Month(i+1), 1)
			}
		}
	}

	return Date{}
}

// calendarDate rejects dates that time.Date would silently normalize,
// such as 31/02.
func calendarDate(year, month, day int) (Date, bool) {
	if month < 1 || month > 12 || day < 1 {
		return Date{}, false
	}
	d := NewDate(year, time.Month(month), day)
	if d.Day() != day || int(d.Month()) != month {
		return Date{}, false
	}
	return d, true
}

// FormatCurrencyINR renders n as Indian Rupees with Indian digit grouping
// and no fraction digits, e.g. 120000 -> "₹1,20,000".
func FormatCurrencyINR(n float64) string {
	d := decimal.NewFromFloat(finite(n)).Round(0)
	grouped := groupIndian(d.Abs().String())
	if d.IsNegative() {
		return "-₹" + grouped
	}
	return "₹" + grouped
}

// groupIndian groups the last three digits, then every two.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return strings.Join(parts, ",") + "," + tail
}
