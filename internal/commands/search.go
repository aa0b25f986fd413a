package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	applog "opsconsole/internal/log"
	"opsconsole/internal/search"
)

type searchFlags struct {
	query string
	paths []string
	depth int
}

func newSearchCommand(a *app) *cobra.Command {
	f := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Find record-like entries whose fields contain the query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.query = args[0]
			}
			paths := f.paths
			if len(paths) == 0 {
				paths = a.cfg.SearchPaths
			}
			depth := f.depth
			if depth == 0 {
				depth = a.cfg.SearchMaxDepth
			}
			if depth < 1 || depth > 16 {
				return fmt.Errorf("invalid depth %d: must be between 1 and 16", depth)
			}

			ctx := cmd.Context()
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			matches := search.SearchPaths(ctx, st, paths, f.query, search.Options{MaxDepth: depth},
				a.logger.WithComponent(applog.ComponentSearch).Slog())

			// One JSON object per line.
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, m := range matches {
				if err := enc.Encode(m); err != nil {
					return err
				}
			}
			a.logger.Debug("Search finished", applog.FieldQuery, f.query, "matches", len(matches))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&f.paths, "path", nil, "store path to search; repeatable (default: SEARCH_PATHS)")
	cmd.Flags().IntVar(&f.depth, "depth", 0, "maximum nesting depth to descend (default: SEARCH_MAX_DEPTH)")
	return cmd
}
