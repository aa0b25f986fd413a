package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"opsconsole/internal/aggregate"
	"opsconsole/internal/core"
	"opsconsole/internal/export"
)

func newViewsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "views",
		Short: "List the configured views with their record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			defs, err := a.views()
			if err != nil {
				return err
			}
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VIEW\tRECORDS\tTOTAL\tFILTER\tPATHS")
			for _, def := range defs {
				recs := a.loadRecords(ctx, st, def)
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
					def.Name, len(recs), core.FormatCurrencyINR(total(recs)), def.Filter, strings.Join(def.Paths, ", "))
			}
			return tw.Flush()
		},
	}
}

func total(recs []core.NormalizedRecord) float64 {
	var sum float64
	for _, r := range recs {
		sum += r.AmountNum
	}
	return sum
}

type matrixFlags struct {
	view   string
	year   string
	format string
}

func newMatrixCommand(a *app) *cobra.Command {
	f := &matrixFlags{}
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Print a view's category by month totals for one year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, recs, err := a.viewRecords(cmd.Context(), f.view)
			if err != nil {
				return err
			}
			m := buildMatrix(recs, f.year)

			out := cmd.OutOrStdout()
			switch f.format {
			case "csv":
				return export.WriteCSV(out, export.MatrixTable(m))
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"matrix": m, "monthTotals": m.MonthTotals()})
			default:
				return fmt.Errorf("unknown format %q: must be csv or json", f.format)
			}
		},
	}
	cmd.Flags().StringVar(&f.view, "view", "pettycash", "view to report on")
	cmd.Flags().StringVar(&f.year, "year", "", "year to report (default: newest year with data)")
	cmd.Flags().StringVar(&f.format, "format", "csv", "output format: csv or json")
	return cmd
}

func buildMatrix(recs []core.NormalizedRecord, year string) aggregate.Matrix {
	categories := core.CanonicalCategories()
	b := aggregate.BuildBuckets(recs, categories)
	return b.Matrix(b.ResolveYear(year, time.Now()), categories)
}
