package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SplitPath validates a slash separated path and returns its segments.
// "" and "/" address the root and yield no segments.
func SplitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" || strings.ContainsAny(s, ".#$[]") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segs, nil
}

// JoinPath is the inverse of SplitPath.
func JoinPath(segs ...string) string {
	return strings.Join(segs, "/")
}

// Related reports whether a change at one path is visible from the other,
// that is one is a prefix of the other.
func Related(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Canonical converts v to plain JSON types (map[string]any, []any,
// float64, string, bool, nil). The result shares nothing with v.
func Canonical(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

// Get returns the value at segs, or nil when any step is missing.
func Get(root any, segs []string) any {
	node := root
	for _, s := range segs {
		switch n := node.(type) {
		case map[string]any:
			node = n[s]
		case []any:
			i, err := strconv.Atoi(s)
			if err != nil || i < 0 || i >= len(n) {
				return nil
			}
			node = n[i]
		default:
			return nil
		}
	}
	return node
}

// Set returns a new tree with value at segs. Maps along the path are
// copied, so trees handed out earlier are never modified. A nil value
// removes the key.
func Set(root any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}

	var next map[string]any
	if m, ok := root.(map[string]any); ok {
		next = make(map[string]any, len(m)+1)
		for k, v := range m {
			next[k] = v
		}
	} else if arr, ok := root.([]any); ok {
		next = make(map[string]any, len(arr)+1)
		for i, v := range arr {
			if v != nil {
				next[strconv.Itoa(i)] = v
			}
		}
	} else {
		next = make(map[string]any)
	}

	child := Set(next[segs[0]], segs[1:], value)
	if child == nil || isEmptyObject(child) {
		delete(next, segs[0])
	} else {
		next[segs[0]] = child
	}
	if len(next) == 0 {
		return nil
	}
	return next
}

func isEmptyObject(v any) bool {
	m, ok := v.(map[string]any)
	return ok && len(m) == 0
}

// Merge applies every entry of partial below base and returns the new tree
// and the full paths that changed, in key order.
func Merge(root any, base []string, partial map[string]any) (any, [][]string, error) {
	keys := make([]string, 0, len(partial))
	for k := range partial {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	changed := make([][]string, 0, len(keys))
	for _, k := range keys {
		rel, err := SplitPath(k)
		if err != nil {
			return root, nil, err
		}
		if len(rel) == 0 {
			return root, nil, fmt.Errorf("%w: empty update key", ErrInvalidPath)
		}
		full := append(append([]string(nil), base...), rel...)
		root = Set(root, full, partial[k])
		changed = append(changed, full)
	}
	return root, changed, nil
}
