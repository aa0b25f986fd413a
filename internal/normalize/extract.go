package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"opsconsole/internal/core"
)

// Field aliases in priority order. Producers disagree on naming, so the
// first present, non-empty alias wins.
var (
	amountKeys      = []string{"amount", "total", "price", "pettyAmount", "cost", "value", "amountPaid"}
	dateKeys        = []string{"date", "dateTime", "createdAt", "timestamp", "paidOn", "purchaseDate", "billDate", "paymentDate"}
	categoryKeys    = []string{"category", "categoryName", "expenseType", "type", "head"}
	descriptionKeys = []string{"description", "desc", "details", "particulars", "item", "itemName", "purpose", "remarks", "name"}
	vendorKeys      = []string{"vendor", "clientName", "shop", "paidTo", "supplier", "vendorName"}
	receiptKeys     = []string{"receipt", "receiptNo", "receiptNumber", "billNo", "invoiceNo", "invoice"}
)

// ToRecord extracts a NormalizedRecord from a candidate. Classification
// fields are left at their zero values; see package classify.
func ToRecord(c Candidate, origin string) core.NormalizedRecord {
	dateRaw := first(c.Fields, dateKeys)
	category := strings.TrimSpace(text(first(c.Fields, categoryKeys)))
	if category == "" {
		category = string(core.CategoryOthers)
	}

	return core.NormalizedRecord{
		ID:                 c.ID,
		IDSynthesized:      c.IDSynthesized,
		DateRaw:            dateRaw,
		DateParsed:         core.ParseDateFlexible(dateRaw),
		AmountNum:          core.CoerceNumber(first(c.Fields, amountKeys)),
		CategoryNormalized: category,
		Description:        strings.TrimSpace(text(first(c.Fields, descriptionKeys))),
		Vendor:             strings.TrimSpace(text(first(c.Fields, vendorKeys))),
		Receipt:            strings.TrimSpace(text(first(c.Fields, receiptKeys))),
		Raw:                c.Fields,
		Origin:             origin,
	}
}

// Records normalizes node and extracts one record per candidate.
func Records(node any, origin string) []core.NormalizedRecord {
	candidates := NormalizeNodeToArray(node)
	out := make([]core.NormalizedRecord, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, ToRecord(c, origin))
	}
	return out
}

func first(fields map[string]any, keys []string) any {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

// text renders scalars for display; nested objects are dropped.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
