package core

import (
	"errors"
	"strings"
	"time"
)

type (
	// Date is a calendar date. The zero value means "no parseable date".
	Date struct {
		time.Time
	}

	// Category is one of the canonical business categories.
	Category string

	// ApprovalState is the closed result of the approval heuristic.
	ApprovalState uint8

	// NormalizedRecord is the canonical unit every view operates on.
	// It is a projection of Raw and is rebuilt on every change notification.
	NormalizedRecord struct {
		ID            string
		IDSynthesized bool

		DateRaw    any
		DateParsed Date
		AmountNum  float64

		CategoryNormalized string
		Category           Category
		Approval           ApprovalState
		Asset              bool

		Description string
		Vendor      string
		Receipt     string

		Raw    map[string]any
		Origin string
	}
)

const (
	CategoryFood              Category = "Food"
	CategoryTravel            Category = "Travel"
	CategoryStationery        Category = "Stationery"
	CategoryOfficeMaintenance Category = "Office Maintenance"
	CategoryUtilities         Category = "Utilities"
	CategoryRepairs           Category = "Repairs"
	CategoryAssets            Category = "Assets"
	CategoryOthers            Category = "Others"
)

const (
	NotApproved ApprovalState = iota
	Approved
)

// UnknownBucket labels records whose date could not be parsed.
const UnknownBucket = "Unknown"

var (
	ErrRowLocked     = errors.New("row is locked")
	ErrRowIndex      = errors.New("row index out of range")
	ErrInvalidAmount = errors.New("invalid amount")
)

// CanonicalCategories returns the ordered category list used for
// classification and for the rows of every matrix.
func CanonicalCategories() []Category {
	return []Category{
		CategoryFood,
		CategoryTravel,
		CategoryStationery,
		CategoryOfficeMaintenance,
		CategoryUtilities,
		CategoryRepairs,
		CategoryAssets,
		CategoryOthers,
	}
}

func (c Category) String() string { return string(c) }

// ParseCategory maps a label onto a canonical category, case-insensitively.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range CanonicalCategories() {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

func (a ApprovalState) String() string {
	if a == Approved {
		return "approved"
	}
	return "not_approved"
}

// NewDate returns a UTC date at midnight.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// IsEmpty reports whether the date is the "unparseable" zero value.
func (d Date) IsEmpty() bool {
	return d.Time.IsZero()
}

// YearKey returns the year bucket label, or UnknownBucket.
func (d Date) YearKey() string {
	if d.IsEmpty() {
		return UnknownBucket
	}
	return d.Format("2006")
}

// ISO returns the date as YYYY-MM-DD, or "" when empty.
func (d Date) ISO() string {
	if d.IsEmpty() {
		return ""
	}
	return d.Format("2006-01-02")
}

// Display returns the date as shown in tables and exports.
func (d Date) Display() string {
	if d.IsEmpty() {
		return ""
	}
	return d.Format("02 Jan 2006")
}

// Field returns a raw field value, nil when absent.
func (r NormalizedRecord) Field(name string) any {
	if r.Raw == nil {
		return nil
	}
	return r.Raw[name]
}
