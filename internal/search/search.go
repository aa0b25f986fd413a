// Package search finds record-like nodes anywhere in a tree and filters
// them by a free-text query.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	applog "opsconsole/internal/log"
	"opsconsole/internal/store"
)

// DefaultMaxDepth bounds recursion into nested collections.
const DefaultMaxDepth = 4

// Fields that people usually search by. They are checked before the
// whole-record fallback.
var allowlist = []string{
	"name", "fullName", "workerName", "staffName", "description",
	"phone", "mobile", "amount", "date", "category", "vendor",
	"clientName", "email", "designation", "remarks", "receipt", "id",
}

type Options struct {
	// Root labels the tree's own path in results.
	Root     string
	MaxDepth int
}

// Match is a record-like node and where it was found.
type Match struct {
	Path   string         `json:"path"`
	Fields map[string]any `json:"fields"`
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// FindRecordsMatching returns every record-like node in tree that matches
// query. An empty query returns every record found.
func FindRecordsMatching(tree any, query string, opts Options) []Match {
	var found []Match
	if m, ok := tree.(map[string]any); ok && isRecordLike(m) {
		found = []Match{{Path: opts.Root, Fields: m}}
	} else {
		walk(tree, opts.Root, 0, opts.maxDepth(), &found)
	}

	if strings.TrimSpace(query) == "" {
		return found
	}
	out := found[:0]
	for _, m := range found {
		if Matches(m.Fields, query) {
			out = append(out, m)
		}
	}
	return out
}

func walk(node any, path string, depth, maxDepth int, out *[]Match) {
	visit := func(key string, child any) {
		childPath := joinPath(path, key)
		if m, ok := child.(map[string]any); ok && isRecordLike(m) {
			*out = append(*out, Match{Path: childPath, Fields: m})
			return
		}
		switch child.(type) {
		case nil:
			return
		case map[string]any:
			if depth+1 < maxDepth {
				walk(child, childPath, depth+1, maxDepth, out)
			}
		case []any:
			if depth+1 < maxDepth {
				walk(child, childPath, depth+1, maxDepth, out)
				return
			}
			*out = append(*out, Match{Path: childPath, Fields: map[string]any{"value": child}})
		default:
			*out = append(*out, Match{Path: childPath, Fields: map[string]any{"value": child}})
		}
	}

	switch n := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			visit(k, n[k])
		}
	case []any:
		for i, child := range n {
			visit(strconv.Itoa(i), child)
		}
	}
}

// isRecordLike reports whether m has at least one primitive value.
func isRecordLike(m map[string]any) bool {
	for _, v := range m {
		switch v.(type) {
		case string, float64, float32, int, int64, bool, json.Number:
			return true
		}
	}
	return false
}

// Matches tests the allowlisted fields first and falls back to the whole
// record serialized as JSON. Comparison is case-insensitive.
func Matches(fields map[string]any, query string) bool {
	q := fold(strings.TrimSpace(query))
	if q == "" {
		return true
	}

	for _, f := range allowlist {
		v, ok := fields[f]
		if !ok || v == nil {
			continue
		}
		if strings.Contains(fold(scalarText(v)), q) {
			return true
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return false
	}
	return strings.Contains(fold(buf.String()), q)
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func fold(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "/" + key
}

// SearchPaths reads every path and searches each tree. Paths are read
// concurrently; a path that fails to read is logged and contributes no
// results. Results keep the order of paths.
func SearchPaths(ctx context.Context, r store.Reader, paths []string, query string, opts Options, logger *slog.Logger) []Match {
	if logger == nil {
		logger = slog.Default()
	}

	results := make([][]Match, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range paths {
		g.Go(func() error {
			tree, err := r.ReadOnce(gctx, p)
			if err != nil {
				logger.WarnContext(gctx, "Search path read failed",
					applog.FieldComponent, applog.ComponentSearch,
					applog.FieldPath, p,
					applog.FieldError, err)
				return nil
			}
			o := opts
			o.Root = p
			results[i] = FindRecordsMatching(tree, query, o)
			return nil
		})
	}
	_ = g.Wait()

	var out []Match
	for _, res := range results {
		out = append(out, res...)
	}
	return out
}
