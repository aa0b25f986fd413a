package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"opsconsole/internal/view"
)

// viewsFile is the layout of VIEWS_FILE.
type viewsFile struct {
	Views []view.Definition `yaml:"views"`
}

// DefaultViews are used when no views file is configured. Paths are in
// precedence order.
func DefaultViews() []view.Definition {
	return []view.Definition{
		{Name: "pettycash", Paths: []string{"PettyCash", "Admin/PettyCash"}, Filter: view.FilterNone},
		{Name: "assets", Paths: []string{"Assets", "PettyCash", "Admin/PettyCash"}, Filter: view.FilterAssets},
		{Name: "approved", Paths: []string{"PettyCash", "Admin/PettyCash"}, Filter: view.FilterApproved},
		{Name: "deleted-workers", Paths: []string{"DeletedWorkers", "Workers/deleted"}, Filter: view.FilterNone},
	}
}

// LoadViews reads view definitions from path, or returns DefaultViews
// when path is empty. Every definition is validated and names must be
// unique.
func LoadViews(path string) ([]view.Definition, error) {
	if path == "" {
		return DefaultViews(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read views file: %w", err)
	}
	return ParseViews(b)
}

// ParseViews decodes a views document.
func ParseViews(b []byte) ([]view.Definition, error) {
	var f viewsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse views file: %w", err)
	}
	if len(f.Views) == 0 {
		return nil, fmt.Errorf("views file defines no views")
	}

	seen := make(map[string]bool, len(f.Views))
	for i, def := range f.Views {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("view %d: %w", i, err)
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("duplicate view %q", def.Name)
		}
		seen[def.Name] = true

		filter, _ := view.ParseFilter(string(def.Filter))
		f.Views[i].Filter = filter
	}
	return f.Views, nil
}
