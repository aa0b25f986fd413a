// Package view turns the raw trees under a set of watched store paths into
// one classified, deduplicated record list, and keeps it current.
package view

import (
	"fmt"
	"strings"

	"opsconsole/internal/classify"
	"opsconsole/internal/core"
	"opsconsole/internal/merge"
	"opsconsole/internal/normalize"
)

// Filter narrows a view's merged records.
type Filter string

const (
	FilterNone     Filter = "none"
	FilterAssets   Filter = "assets"
	FilterApproved Filter = "approved"
)

// ParseFilter accepts the filter names used in view definitions. Empty is
// FilterNone.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FilterNone:
		return FilterNone, nil
	case FilterAssets, FilterApproved:
		return f, nil
	default:
		return "", fmt.Errorf("unknown view filter %q", s)
	}
}

func (f Filter) keep(rec core.NormalizedRecord) bool {
	switch f {
	case FilterAssets:
		return rec.Asset
	case FilterApproved:
		return rec.Approval == core.Approved
	default:
		return true
	}
}

// Definition names a view and the store paths it merges, highest
// precedence first.
type Definition struct {
	Name   string   `yaml:"name" json:"name"`
	Paths  []string `yaml:"paths" json:"paths"`
	Filter Filter   `yaml:"filter" json:"filter"`
}

// Validate checks the definition can be started.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("view name is required")
	}
	if len(d.Paths) == 0 {
		return fmt.Errorf("view %q watches no paths", d.Name)
	}
	if _, err := ParseFilter(string(d.Filter)); err != nil {
		return fmt.Errorf("view %q: %w", d.Name, err)
	}
	return nil
}

// PathData holds the latest raw value seen for each watched path. A path
// that failed to load maps to nil.
type PathData map[string]any

// Options controls Recompute.
type Options struct {
	Categories []core.Category
	Filter     Filter
}

// Recompute derives a view's records from its path data. Paths are merged
// in the given order so earlier paths win on duplicates. It does not modify
// data.
func Recompute(paths []string, data PathData, opts Options) []core.NormalizedRecord {
	categories := opts.Categories
	if len(categories) == 0 {
		categories = core.CanonicalCategories()
	}

	lists := make([][]core.NormalizedRecord, 0, len(paths))
	for _, p := range paths {
		recs := normalize.Records(data[p], p)
		lists = append(lists, classify.ApplyAll(recs, categories))
	}

	merged := merge.MergeAndDedupe(lists...)
	out := merged[:0]
	for _, rec := range merged {
		if opts.Filter.keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}
