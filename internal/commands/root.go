// Package commands is the opsconsole command line: the HTTP console and
// one-shot report, search and export commands over the same store.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"opsconsole/internal/backend"
	"opsconsole/internal/cli"
	"opsconsole/internal/config"
	"opsconsole/internal/core"
	applog "opsconsole/internal/log"
	"opsconsole/internal/store"
	"opsconsole/internal/store/memory"
	"opsconsole/internal/view"
)

// app carries the persistent flags and what PersistentPreRunE derives
// from them.
type app struct {
	envFile   string
	logLevel  string
	dataFile  string
	viewsFile string

	cfg    *config.Config
	logger *applog.Logger
}

// NewRootCommand builds the opsconsole command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "opsconsole",
		Short:         "Admin console over staff, petty cash and asset records",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	flags.StringVar(&a.dataFile, "data", "", "read records from this JSON tree dump instead of the configured backend")
	flags.StringVar(&a.viewsFile, "views", "", "view definitions YAML file; overrides VIEWS_FILE")

	root.AddCommand(
		newServeCommand(a),
		newViewsCommand(a),
		newMatrixCommand(a),
		newSearchCommand(a),
		newExportCommand(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if err := cli.LoadEnvFile(a.envFile); err != nil {
		return fmt.Errorf("load %s: %w", a.envFile, err)
	}
	a.cfg = config.Load()
	if a.viewsFile != "" {
		a.cfg.ViewsFile = a.viewsFile
	}
	level := a.cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	// Logs go to stderr so report output on stdout stays clean.
	a.logger = cli.SetupLogger(level, a.cfg.LogFormat, cmd.ErrOrStderr())
	return nil
}

// openStore returns the tree the one-shot commands read: the --data dump
// when given, the configured backend otherwise.
func (a *app) openStore(ctx context.Context) (store.Store, func() error, error) {
	if a.dataFile != "" {
		b, err := os.ReadFile(a.dataFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read data file: %w", err)
		}
		var tree any
		if err := json.Unmarshal(b, &tree); err != nil {
			return nil, nil, fmt.Errorf("parse data file %s: %w", a.dataFile, err)
		}
		st, err := memory.New(tree, a.logger.WithComponent(applog.ComponentStore).Slog())
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	}

	bcfg, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, nil, err
	}
	res, err := backend.NewFactory(a.logger).Create(ctx, bcfg)
	if err != nil {
		return nil, nil, err
	}
	return res.Store, res.Cleanup, nil
}

func (a *app) views() ([]view.Definition, error) {
	return config.LoadViews(a.cfg.ViewsFile)
}

func (a *app) definition(name string) (view.Definition, error) {
	defs, err := a.views()
	if err != nil {
		return view.Definition{}, err
	}
	for _, d := range defs {
		if d.Name == name {
			return d, nil
		}
	}
	return view.Definition{}, fmt.Errorf("unknown view %q", name)
}

// loadRecords reads a view's watched paths once and derives its records
// the same way a live view does. A path that fails to read contributes
// nothing.
func (a *app) loadRecords(ctx context.Context, r store.Reader, def view.Definition) []core.NormalizedRecord {
	data := make(view.PathData, len(def.Paths))
	for _, p := range def.Paths {
		v, err := r.ReadOnce(ctx, p)
		if err != nil {
			a.logger.WarnContext(ctx, "Watched path failed to load",
				applog.FieldView, def.Name,
				applog.FieldPath, p,
				applog.FieldError, err)
			continue
		}
		data[p] = v
	}
	return view.Recompute(def.Paths, data, view.Options{Filter: def.Filter})
}

// viewRecords opens the store and loads the named view in one step.
func (a *app) viewRecords(ctx context.Context, name string) (view.Definition, []core.NormalizedRecord, error) {
	def, err := a.definition(name)
	if err != nil {
		return view.Definition{}, nil, err
	}
	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return view.Definition{}, nil, err
	}
	defer closeStore()
	return def, a.loadRecords(ctx, st, def), nil
}
