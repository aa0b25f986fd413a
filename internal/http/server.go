// Package http serves the console's JSON API: computed views, reports,
// exports, search, staff ledgers and live view updates.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opsconsole/internal/aggregate"
	"opsconsole/internal/cache"
	"opsconsole/internal/core"
	"opsconsole/internal/export"
	applog "opsconsole/internal/log"
	"opsconsole/internal/middleware/ratelimit"
	"opsconsole/internal/middleware/security"
	"opsconsole/internal/middleware/trace"
	"opsconsole/internal/store"
	"opsconsole/internal/view"
)

// ViewSource is the read side of the running views.
type ViewSource interface {
	Names() []string
	Definition(name string) (view.Definition, bool)
	Snapshot(name string) (view.Snapshot, bool)
	Watch(name string) (<-chan view.Snapshot, func(), error)
}

// Ledger is the staff payments and work service.
type Ledger interface {
	AddPayment(ctx context.Context, staffID string, p core.PaymentRow) (core.Row[core.PaymentRow], error)
	AddWork(ctx context.Context, staffID string, w core.WorkRow) (core.Row[core.WorkRow], error)
	EditPayment(ctx context.Context, staffID, rowID string, p core.PaymentRow) (core.Row[core.PaymentRow], error)
	EditWork(ctx context.Context, staffID, rowID string, w core.WorkRow) (core.Row[core.WorkRow], error)
	CommitPayments(ctx context.Context, staffID string) ([]core.Row[core.PaymentRow], error)
	CommitWork(ctx context.Context, staffID string) ([]core.Row[core.WorkRow], error)
	ListPayments(ctx context.Context, staffID string) ([]core.Row[core.PaymentRow], error)
	ListWork(ctx context.Context, staffID string) ([]core.Row[core.WorkRow], error)
}

// TableWriter publishes a table to a named tab of an external workbook.
type TableWriter interface {
	WriteTable(ctx context.Context, tab string, t export.Table) error
}

// Options wires the server's collaborators. Sheets may be nil, in which
// case the export endpoint answers 501.
type Options struct {
	Addr   string
	Views  ViewSource
	Ledger Ledger
	Reader store.Reader
	Sheets TableWriter

	Categories        []core.Category
	SearchPaths       []string
	SearchMaxDepth    int
	RequestsPerMinute int
	TrustedProxies    []string
	Logger            *applog.Logger
}

type Server struct {
	http.Server
	opts   Options
	logger *applog.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector

	// Buckets per view version. A new version never reuses an old entry,
	// so nothing has to be invalidated.
	buckets *cache.LRU[*aggregate.Buckets]
	janitor *cache.Janitor

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(opts Options) (*Server, error) {
	if opts.Views == nil {
		return nil, fmt.Errorf("http server: views are required")
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if len(opts.Categories) == 0 {
		opts.Categories = core.CanonicalCategories()
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	logger := opts.Logger.WithComponent(applog.ComponentHTTP)
	s := &Server{
		opts:     opts,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		detector: detector,
		buckets:  cache.NewLRU[*aggregate.Buckets]("buckets", 64, 10*time.Minute),
		janitor:  cache.NewJanitor(logger.WithComponent(applog.ComponentCache).Slog()),
	}
	s.janitor.Register(s.buckets)
	s.janitor.Start(5 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/views", s.handleListViews)
	mux.HandleFunc("GET /api/views/{view}", s.handleViewSummary)
	mux.HandleFunc("GET /api/views/{view}/records", s.handleRecords)
	mux.HandleFunc("GET /api/views/{view}/records.csv", s.handleRecordsCSV)
	mux.HandleFunc("GET /api/views/{view}/years", s.handleYears)
	mux.HandleFunc("GET /api/views/{view}/matrix", s.handleMatrix)
	mux.HandleFunc("GET /api/views/{view}/matrix.csv", s.handleMatrixCSV)
	mux.HandleFunc("POST /api/views/{view}/export/sheets", s.handleExportSheets)

	mux.HandleFunc("GET /api/search", s.handleSearch)

	if opts.Ledger != nil {
		routeLedger(mux, "/api/staff/{id}/payments", s.payments())
		routeLedger(mux, "/api/staff/{id}/work", s.work())
	} else {
		mux.HandleFunc("/api/staff/", notConfigured("staff ledger"))
	}

	mux.HandleFunc("GET /ws/views/{view}", s.handleLive)

	limited := s.limiter.Middleware(detector.ExtractClientIP, exemptFromLimit, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldComponent, applog.ComponentRateLimit,
			applog.FieldClientIP, detector.ExtractClientIP(r),
			applog.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
	})
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(detector.ExtractClientIP, logger)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           tracer.Middleware(detector.Middleware(headers.Middleware(limited(mux)))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// exemptFromLimit reports whether r skips the per-client budget.
func exemptFromLimit(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return len(r.URL.Path) > 4 && r.URL.Path[:4] == "/ws/"
}

// Shutdown gracefully shuts down the server and its background loops.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.janitor.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once every view has computed at least one
// snapshot.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	pending := []string{}
	for _, name := range s.opts.Views.Names() {
		snap, ok := s.opts.Views.Snapshot(name)
		if !ok || snap.Version == 0 {
			pending = append(pending, name)
		}
	}
	if len(pending) > 0 {
		NewResponse().Status(http.StatusServiceUnavailable).
			Body(map[string]any{"status": "starting", "pending": pending}).
			Write(w)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// snapshot resolves the {view} path value, answering 404 itself when the
// view is unknown.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (view.Snapshot, bool) {
	name := r.PathValue("view")
	snap, ok := s.opts.Views.Snapshot(name)
	if !ok {
		NotFoundError(fmt.Sprintf("unknown view %q", name)).Write(w)
		return view.Snapshot{}, false
	}
	return snap, true
}

// bucketsFor returns the year/month buckets of snap, computing them once
// per view version.
func (s *Server) bucketsFor(snap view.Snapshot) *aggregate.Buckets {
	key := snap.View + "|" + strconv.FormatUint(snap.Version, 10)
	return s.buckets.GetOrCompute(key, func() *aggregate.Buckets {
		return aggregate.BuildBuckets(snap.Records, s.opts.Categories)
	})
}
