// Package merge combines record lists read from several paths into one
// list without duplicates.
package merge

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"opsconsole/internal/core"
)

// MergeAndDedupe concatenates lists in order and keeps the first record
// for every identity. A record is a duplicate when its intrinsic id or
// its signature has been seen before. Only exact signature matches merge,
// so similar but distinct line items survive.
func MergeAndDedupe(lists ...[]core.NormalizedRecord) []core.NormalizedRecord {
	total := 0
	for _, l := range lists {
		total += len(l)
	}

	seen := make(map[string]struct{}, total)
	out := make([]core.NormalizedRecord, 0, total)
	for _, list := range lists {
		for _, rec := range list {
			keys := Keys(rec)
			if anySeen(seen, keys) {
				continue
			}
			for _, k := range keys {
				seen[k] = struct{}{}
			}
			out = append(out, rec)
		}
	}
	return out
}

// Keys returns every key rec is deduplicated on.
func Keys(rec core.NormalizedRecord) []string {
	var keys []string
	if id := strings.TrimSpace(rec.ID); id != "" && !rec.IDSynthesized {
		keys = append(keys, "id:"+id)
	}
	if informative(rec) {
		keys = append(keys, "sig:"+Signature(rec))
	}
	return keys
}

// Signature is receipt|roundedAmount|isoDateOrRaw|description. Receipt and
// description are trimmed but compared exactly, case included.
func Signature(rec core.NormalizedRecord) string {
	return strings.Join([]string{
		strings.TrimSpace(rec.Receipt),
		strconv.FormatFloat(math.Round(rec.AmountNum), 'f', 0, 64),
		dateComponent(rec),
		strings.TrimSpace(rec.Description),
	}, "|")
}

func dateComponent(rec core.NormalizedRecord) string {
	if !rec.DateParsed.IsEmpty() {
		return rec.DateParsed.ISO()
	}
	if rec.DateRaw == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(rec.DateRaw))
}

// informative reports whether the signature says more than an amount.
// Records with no receipt, date or description would otherwise collapse
// on amount alone.
func informative(rec core.NormalizedRecord) bool {
	return strings.TrimSpace(rec.Receipt) != "" ||
		dateComponent(rec) != "" ||
		strings.TrimSpace(rec.Description) != ""
}

func anySeen(seen map[string]struct{}, keys []string) bool {
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			return true
		}
	}
	return false
}
