package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"opsconsole/internal/backend"
	"opsconsole/internal/cli"
	"opsconsole/internal/config"
	"opsconsole/internal/export/sheets"
	apphttp "opsconsole/internal/http"
	applog "opsconsole/internal/log"
	"opsconsole/internal/services"
	"opsconsole/internal/view"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP console with live views",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// runtime is everything serve starts, in the order it must be stopped.
type runtime struct {
	server  *apphttp.Server
	views   *view.Manager
	cleanup backend.CleanupFunc
}

func (rt *runtime) shutdown(ctx context.Context, logger *applog.Logger) {
	if err := rt.server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", applog.FieldError, err)
	}
	rt.views.Close()
	if rt.cleanup != nil {
		if err := rt.cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	}
}

// newRuntime opens the backend, starts every view and builds the server
// without listening.
func newRuntime(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*runtime, error) {
	defs, err := config.LoadViews(cfg.ViewsFile)
	if err != nil {
		return nil, err
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).Create(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	manager, err := view.NewManager(defs, nil, res.Store, logger)
	if err != nil {
		res.Cleanup()
		return nil, err
	}
	if err := manager.Start(ctx); err != nil {
		manager.Close()
		res.Cleanup()
		return nil, err
	}

	opts := apphttp.Options{
		Addr:              ":" + cfg.Port,
		Views:             manager,
		Ledger:            services.NewPaymentService(res.Store, logger),
		Reader:            res.Store,
		SearchPaths:       cfg.SearchPaths,
		SearchMaxDepth:    cfg.SearchMaxDepth,
		RequestsPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:    cfg.TrustedProxies,
		Logger:            logger,
	}
	if cfg.SheetsEnabled() {
		exporter, err := sheets.New(ctx, cfg.GoogleSpreadsheetID, sheets.Credentials{
			JSON: cfg.GoogleServiceAccountJSON,
			File: cfg.GoogleServiceAccountFile,
		}, logger.WithComponent(applog.ComponentExport).Slog())
		if err != nil {
			logger.Warn("Spreadsheet export disabled", applog.FieldError, err)
		} else {
			opts.Sheets = exporter
		}
	}

	srv, err := apphttp.NewServer(opts)
	if err != nil {
		manager.Close()
		res.Cleanup()
		return nil, err
	}
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	return &runtime{server: srv, views: manager, cleanup: res.Cleanup}, nil
}

func (a *app) serve(parent context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	logger := a.logger

	rt, err := newRuntime(parent, a.cfg, logger)
	if err != nil {
		return err
	}

	stopCtx, stop := context.WithCancel(parent)
	defer stop()
	ctx, done := cli.GracefulShutdown(stopCtx, logger, a.cfg.ShutdownTimeout, func(ctx context.Context) {
		rt.shutdown(ctx, logger)
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting opsconsole server",
			"port", a.cfg.Port,
			applog.FieldBackend, a.cfg.DataBackend,
			"sheets_enabled", a.cfg.SheetsEnabled())
		serveErr <- rt.server.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
		stop()
	case <-ctx.Done():
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
	return runErr
}
