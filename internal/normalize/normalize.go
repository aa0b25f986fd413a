// Package normalize turns schemaless tree nodes into flat candidate lists
// and extracts canonical records from them.
//
// A node read from the store can be one record, a sequence of records, a
// keyed map of records, or a record wrapping a nested list of children.
// NormalizeNodeToArray decides which shape it is looking at by testing a
// small set of predicates in a fixed order.
package normalize

import (
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Candidate is a flattened node before field extraction.
type Candidate struct {
	ID string
	// IDSynthesized is true when ID was invented or taken from a
	// position rather than carried by the data.
	IDSynthesized bool
	Fields        map[string]any
}

// Keys whose value holds the real list of records inside a wrapper node.
var listKeys = []string{
	"assets",
	"items",
	"payments",
	"purchases",
	"purchaseItems",
	"paymentItems",
	"children",
}

// NormalizeNodeToArray flattens node into candidates. It never fails:
// shapes it does not recognise produce an empty list.
func NormalizeNodeToArray(node any) []Candidate {
	if isEmptyNode(node) {
		return nil
	}

	if m, ok := node.(map[string]any); ok {
		for _, key := range listKeys {
			switch nested := m[key].(type) {
			case []any:
				return fromSequence(nested)
			case map[string]any:
				return fromMapping(nested)
			}
		}
	}

	switch n := node.(type) {
	case []any:
		return fromSequence(n)
	case map[string]any:
		if looksLikeSingleRecord(n) {
			id, synthesized := recordID(n)
			return []Candidate{{ID: id, IDSynthesized: synthesized, Fields: n}}
		}
		return fromMapping(n)
	default:
		return nil
	}
}

func isEmptyNode(node any) bool {
	switch n := node.(type) {
	case nil:
		return true
	case string:
		return n == ""
	case bool:
		return !n
	case map[string]any:
		return len(n) == 0
	case []any:
		return len(n) == 0
	}
	return false
}

// looksLikeSingleRecord applies the majority rule: at least two of
// {amount key, date key, more than two keys}.
func looksLikeSingleRecord(m map[string]any) bool {
	signals := 0
	if hasAnyKey(m, amountKeys) {
		signals++
	}
	if hasAnyKey(m, dateKeys) {
		signals++
	}
	if len(m) > 2 {
		signals++
	}
	return signals >= 2
}

func hasAnyKey(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func fromSequence(seq []any) []Candidate {
	out := make([]Candidate, 0, len(seq))
	for i, elem := range seq {
		if elem == nil {
			continue
		}
		fields := asFields(elem)
		id, synthesized := strconv.Itoa(i), true
		if own := stringID(fields["id"]); own != "" {
			id, synthesized = own, false
		}
		out = append(out, Candidate{ID: id, IDSynthesized: synthesized, Fields: fields})
	}
	return out
}

// fromMapping emits one candidate per key, in key order so results are
// stable across recomputes.
func fromMapping(m map[string]any) []Candidate {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Candidate, 0, len(keys))
	for _, k := range keys {
		child := m[k]
		if child == nil {
			continue
		}
		out = append(out, Candidate{ID: k, Fields: asFields(child)})
	}
	return out
}

func asFields(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": v}
}

func recordID(m map[string]any) (string, bool) {
	if id := stringID(m["id"]); id != "" {
		return id, false
	}
	return synthesizeID(), true
}

func stringID(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	}
	return ""
}

func synthesizeID() string {
	return "rec-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
