// Package classify holds the heuristic predicates that map free-text
// status and category values onto closed variants.
//
// Matching is substring based and case-insensitive. The results are turned
// into core.Category, core.ApprovalState and a plain bool right away, so
// nothing downstream looks at the raw strings again.
package classify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"opsconsole/internal/core"
)

var (
	approvalFields = []string{
		"approval", "approvalStatus", "approved", "status", "state",
		"paymentStatus", "action", "adminAction", "verification",
		"verified", "acknowledged",
	}

	// TODO: confirm with operations whether statusCode/code == 1 really
	// means approved; it matches unrelated producers too.
	approvalNumericFields = []string{"status", "approvalStatus", "statusCode", "code", "approved"}

	approvalPattern = regexp.MustCompile(`approved|approve|acknowledged?|confirmed|paid`)

	assetTagFields      = []string{"assetTag", "assetId", "assetCode"}
	assetCategoryFields = []string{"category", "categoryName", "categoryNormalized", "type", "expenseType", "head", "group"}
	assetTextFields     = []string{"description", "desc", "details", "particulars", "item", "itemName", "name", "remarks", "purpose"}

	assetCategoryPattern = regexp.MustCompile(`asset|capex|capital`)
	assetVocabulary      = regexp.MustCompile(`\b(furniture|electronics?|computers?|laptops?|desktops?|printers?|scanners?|vehicles?|bikes?|scooters?|chairs?|tables?|desks?|cupboards?|almirahs?|shelves|racks?|fans?|air ?conditioners?|a/?c|refrigerators?|fridges?|monitors?|projectors?|ups|inverters?|cameras?|smartphones?|tablets?|routers?|servers?)\b`)

	categoryFields = []string{"category", "categoryName", "categoryNormalized", "expenseType", "type", "head"}
)

// IsApprovalLike reports whether any status-like field reads as approved.
func IsApprovalLike(fields map[string]any) bool {
	var parts []string
	for _, f := range approvalFields {
		if v, ok := fields[f]; ok && v != nil {
			parts = append(parts, strings.ToLower(stringify(v)))
		}
	}
	if approvalPattern.MatchString(strings.Join(parts, " ")) {
		return true
	}

	for _, f := range approvalNumericFields {
		if isOne(fields[f]) {
			return true
		}
	}
	return false
}

// IsAssetLike reports whether the record describes a capital purchase.
func IsAssetLike(fields map[string]any) bool {
	for _, f := range assetTagFields {
		if s := strings.TrimSpace(stringify(fields[f])); s != "" {
			return true
		}
	}

	for _, f := range assetCategoryFields {
		if assetCategoryPattern.MatchString(strings.ToLower(stringify(fields[f]))) {
			return true
		}
	}

	for _, f := range assetTextFields {
		if assetVocabulary.MatchString(strings.ToLower(stringify(fields[f]))) {
			return true
		}
	}
	return false
}

// ClassifyCategory buckets the record's raw category label.
func ClassifyCategory(fields map[string]any, known []core.Category) core.Category {
	for _, f := range categoryFields {
		if s := strings.TrimSpace(stringify(fields[f])); s != "" {
			return CategoryOf(s, known)
		}
	}
	return core.CategoryOthers
}

// CategoryOf returns the first known category whose name is contained in
// raw, ignoring case. Anything else is Others.
func CategoryOf(raw string, known []core.Category) core.Category {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if lower == "" {
		return core.CategoryOthers
	}
	for _, c := range known {
		name := strings.ToLower(string(c))
		if name != "" && strings.Contains(lower, name) {
			return c
		}
	}
	for _, c := range known {
		if string(c) == raw {
			return c
		}
	}
	return core.CategoryOthers
}

// ApprovalOf is IsApprovalLike as a closed variant.
func ApprovalOf(fields map[string]any) core.ApprovalState {
	if IsApprovalLike(fields) {
		return core.Approved
	}
	return core.NotApproved
}

// Apply fills the classification fields of rec from its raw data.
func Apply(rec core.NormalizedRecord, known []core.Category) core.NormalizedRecord {
	rec.Category = CategoryOf(rec.CategoryNormalized, known)
	rec.Approval = ApprovalOf(rec.Raw)
	rec.Asset = IsAssetLike(rec.Raw) || rec.Category == core.CategoryAssets
	return rec
}

// ApplyAll classifies every record, returning a new slice.
func ApplyAll(recs []core.NormalizedRecord, known []core.Category) []core.NormalizedRecord {
	out := make([]core.NormalizedRecord, len(recs))
	for i, r := range recs {
		out[i] = Apply(r, known)
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// isOne follows loose equality with 1, so true counts.
func isOne(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t == 1
	case int:
		return t == 1
	case int64:
		return t == 1
	case string:
		return strings.TrimSpace(t) == "1"
	}
	return false
}
