package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"opsconsole/internal/export"
	"opsconsole/internal/export/sheets"
	applog "opsconsole/internal/log"
)

type exportFlags struct {
	view string
	year string
	kind string
	to   string
	out  string
}

// sheetsWriter is the slice of the spreadsheet exporter the command
// needs. Tests replace newSheetsWriter.
type sheetsWriter interface {
	WriteTable(ctx context.Context, tab string, t export.Table) error
}

var newSheetsWriter = func(ctx context.Context, a *app) (sheetsWriter, error) {
	if !a.cfg.SheetsEnabled() {
		return nil, fmt.Errorf("GOOGLE_SPREADSHEET_ID is not set")
	}
	return sheets.New(ctx, a.cfg.GoogleSpreadsheetID, sheets.Credentials{
		JSON: a.cfg.GoogleServiceAccountJSON,
		File: a.cfg.GoogleServiceAccountFile,
	}, a.logger.WithComponent(applog.ComponentExport).Slog())
}

func newExportCommand(a *app) *cobra.Command {
	f := &exportFlags{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a view's records or yearly matrix as CSV or to a spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, recs, err := a.viewRecords(ctx, f.view)
			if err != nil {
				return err
			}

			var table export.Table
			var tab string
			switch f.kind {
			case "records":
				table = export.RecordsTable(recs)
				tab = sheets.TabName(f.view, "records")
			case "matrix":
				m := buildMatrix(recs, f.year)
				table = export.MatrixTable(m)
				tab = sheets.TabName(f.view, m.Year)
			default:
				return fmt.Errorf("unknown kind %q: must be records or matrix", f.kind)
			}

			switch f.to {
			case "csv":
				return writeCSVTo(cmd.OutOrStdout(), f.out, table)
			case "sheets":
				w, err := newSheetsWriter(ctx, a)
				if err != nil {
					return err
				}
				if err := w.WriteTable(ctx, tab, table); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %q\n", len(table.Rows), tab)
				return nil
			default:
				return fmt.Errorf("unknown target %q: must be csv or sheets", f.to)
			}
		},
	}
	cmd.Flags().StringVar(&f.view, "view", "pettycash", "view to export")
	cmd.Flags().StringVar(&f.year, "year", "", "matrix year (default: newest year with data)")
	cmd.Flags().StringVar(&f.kind, "kind", "records", "what to export: records or matrix")
	cmd.Flags().StringVar(&f.to, "to", "csv", "destination: csv or sheets")
	cmd.Flags().StringVarP(&f.out, "out", "o", "-", "CSV output file, - for stdout")
	return cmd
}

func writeCSVTo(stdout io.Writer, path string, t export.Table) error {
	if path == "" || path == "-" {
		return export.WriteCSV(stdout, t)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.WriteCSV(file, t); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
